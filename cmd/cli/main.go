package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
)

var (
	apiURL  string
	apiKey  string
	timeout time.Duration
	asJSON  bool
	api     *client
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	root := &cobra.Command{
		Use:   "synthetic",
		Short: "Operate synthetic API tests and node health checks",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			api = newClient(apiURL, apiKey, timeout)
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiURL, "api", envOr("API_BASE", "http://localhost:8080"), "API base URL")
	root.PersistentFlags().StringVar(&apiKey, "key", os.Getenv("API_KEY"), "API key (admin key needed for execute and check)")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	root.AddCommand(executeCmd(), healthCmd(), alertsCmd(), historyCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseParams turns name=value pairs into typed parameters. Values that
// parse as JSON numbers, booleans, objects or arrays keep that type.
func parseParams(pairs []string) (domain.Parameters, error) {
	out := domain.Parameters{}
	for _, p := range pairs {
		name, raw, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("param %q: want name=value", p)
		}
		var v domain.Value
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = domain.StringValue(raw)
		}
		out[name] = v
	}
	return out, nil
}

func executeCmd() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "execute <test-id>",
		Short: "Run a synthetic test once against all of its nodes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			override, err := parseParams(params)
			if err != nil {
				return err
			}
			var body struct {
				domain.ExecutionReport
				Report *domain.ExecutionReport `json:"report"`
			}
			callErr := api.do(http.MethodPost, fmt.Sprintf("/api/tests/%d/execute", id), nil,
				map[string]any{"params": override}, &body)
			rep := &body.ExecutionReport
			if body.Report != nil {
				rep = body.Report
			}
			if callErr != nil && rep.CycleID == "" {
				return callErr
			}
			if asJSON {
				if err := printJSON(rep); err != nil {
					return err
				}
				return callErr
			}
			fmt.Printf("test %d (%s) cycle %s\n", rep.TestID, rep.TestName, rep.CycleID)
			for _, o := range rep.Outcomes {
				mark := "✔"
				if !o.Outcome.Success {
					mark = "✖"
				}
				fmt.Printf("  %s %-20s %3d %6d ms\n", mark, o.NodeName, o.Outcome.StatusCode, o.Outcome.ResponseTimeMs)
			}
			fmt.Printf("total %d, succeeded %d, failed %d\n", rep.Total, rep.Succeeded, rep.Failed)
			if !rep.Persisted {
				fmt.Println("warning: results were not fully recorded")
			}
			return callErr
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "override parameter name=value (repeatable)")
	return cmd
}

func healthCmd() *cobra.Command {
	var cached bool
	cmd := &cobra.Command{
		Use:   "health <node-id>",
		Short: "Probe a node's health endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			var h domain.NodeHealth
			if cached {
				err = api.do(http.MethodGet, fmt.Sprintf("/api/nodes/%d/health", id), nil, nil, &h)
			} else {
				err = api.do(http.MethodPost, fmt.Sprintf("/api/nodes/%d/check", id), nil, nil, &h)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(h)
			}
			fmt.Printf("node %d: %s (%s check, status %d, %d ms)\n", h.NodeID, h.Status, h.CheckType, h.StatusCode, h.ResponseTimeMs)
			if h.Message != "" {
				fmt.Println("  " + h.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&cached, "cached", false, "show the last stored result instead of probing")
	return cmd
}

func alertsCmd() *cobra.Command {
	var window string
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "List slow or failed executions in a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Window string         `json:"window"`
				Count  int            `json:"count"`
				Alerts []domain.Alert `json:"alerts"`
			}
			if err := api.do(http.MethodGet, "/api/alerts", url.Values{"window": {window}}, nil, &out); err != nil {
				return err
			}
			if asJSON {
				return printJSON(out)
			}
			fmt.Printf("%d alerts in the last %s\n", out.Count, out.Window)
			for _, a := range out.Alerts {
				fmt.Printf("  %s  %-18s %-20s %s %s  %d ms (>%d) %s\n",
					a.ExecutedAt.Format(time.RFC3339), a.TestName, a.NodeName,
					a.APIMethod, a.APIURI, a.ResponseTimeMs, a.AlertThresholdMs, a.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&window, "window", "w", "24h", "time window: 1h, 6h, 24h or 7d")
	return cmd
}

func historyCmd() *cobra.Command {
	var (
		testName, nodeName, group, tag, success string
		limit, offset                           int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Search execution history",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			for k, v := range map[string]string{"test_name": testName, "node_name": nodeName, "group": group, "tag": tag, "success": success} {
				if v != "" {
					q.Set(k, v)
				}
			}
			q.Set("limit", strconv.Itoa(limit))
			q.Set("offset", strconv.Itoa(offset))

			var out struct {
				Total int                 `json:"total"`
				Items []domain.HistoryRow `json:"items"`
			}
			if err := api.do(http.MethodGet, "/api/history", q, nil, &out); err != nil {
				return err
			}
			if asJSON {
				return printJSON(out)
			}
			for _, r := range out.Items {
				fmt.Printf("  %s  %-18s %-20s %3d %6d ms success=%v\n",
					r.ExecutedAt.Format(time.RFC3339), r.TestName, r.NodeName, r.StatusCode, r.ResponseTimeMs, r.Success)
			}
			fmt.Printf("showing %d of %d\n", len(out.Items), out.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&testName, "test", "", "test name contains")
	cmd.Flags().StringVar(&nodeName, "node", "", "node name contains")
	cmd.Flags().StringVar(&group, "group", "", "group name contains")
	cmd.Flags().StringVar(&tag, "tag", "", "tag contains")
	cmd.Flags().StringVar(&success, "success", "", "true or false")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}
