package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

type DNSClass string

const (
	DNSResolves    DNSClass = "RESOLVES"
	DNSNXDomain    DNSClass = "NXDOMAIN"
	DNSNoARecord   DNSClass = "NO_A_RECORD"
	DNSServfail    DNSClass = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName DNSClass = "INVALID_NAME"
	DNSNotHostname DNSClass = "IP_LITERAL"
)

// DNSStatus explains why a hostname node may be unreachable.
type DNSStatus struct {
	Host          string
	IPs           []net.IP
	CNAME         string
	Nameservers   []string
	Class         DNSClass
	ResolverError string
}

var dnsTimeout = 3 * time.Second

// CheckDNS resolves host with the OS resolver and classifies the result.
func CheckDNS(host string) DNSStatus {
	return checkDNS(context.Background(), net.DefaultResolver, host)
}

func checkDNS(parent context.Context, r *net.Resolver, host string) DNSStatus {
	s := DNSStatus{Host: strings.TrimSpace(host)}
	if s.Host == "" || strings.Contains(s.Host, "://") || strings.ContainsAny(s.Host, " /") {
		s.Class = DNSInvalidName
		return s
	}
	if Classify(s.Host) == CheckIP {
		s.Class = DNSNotHostname
		return s
	}

	ctx, cancel := context.WithTimeout(parent, dnsTimeout)
	defer cancel()

	ips, err := r.LookupIP(ctx, "ip", s.Host)
	switch {
	case err == nil && len(ips) > 0:
		s.IPs = ips
		s.Class = DNSResolves
	case err != nil:
		s.ResolverError = err.Error()
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServfail
			}
		}
	}

	if cname, err := r.LookupCNAME(ctx, s.Host); err == nil && !strings.EqualFold(cname, s.Host+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := r.LookupNS(ctx, s.Host); err == nil && len(ns) > 0 {
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case len(s.Nameservers) > 0:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServfail
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}
