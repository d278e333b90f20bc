package repo

import (
	"context"
	"time"
)

// AlertRecord holds notification state for one alert key (test and node).
// LastState is whether the key was alerting on the last scan, LastSentAt is
// the last time a notification went out (used for cooldown).
type AlertRecord struct {
	Key        string
	LastState  bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, key string) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	SetAlert(ctx context.Context, key string, lastState bool, sentAt time.Time) error
}
