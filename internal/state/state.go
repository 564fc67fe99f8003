// Package state persists sync metadata across restarts: when the last
// successful sync finished and how long it took. Losing this state is
// harmless, the next sync simply re-evaluates everything, so the noop
// implementation is an acceptable fallback when redis is unavailable.
package state

import (
	"context"
	"time"
)

// Sample is one persisted entry of the rolling performance window.
type Sample struct {
	Operation  string `json:"operation"`
	DurationMS int64  `json:"duration_ms"`
	Success    bool   `json:"success"`
	Retries    int    `json:"retries"`
}

type Snapshot struct {
	LastSync     time.Time `json:"last_sync"`
	DurationMS   int64     `json:"duration_ms"`
	TotalRetries int       `json:"total_retries"`
	Errors       []string  `json:"errors,omitempty"`
	Samples      []Sample  `json:"samples,omitempty"`
}

type Store interface {
	Load(ctx context.Context, terminalID string) (*Snapshot, bool, error)
	Save(ctx context.Context, terminalID string, snap Snapshot) error
}

type NoopStore struct{}

func (NoopStore) Load(_ context.Context, _ string) (*Snapshot, bool, error) {
	return nil, false, nil
}

func (NoopStore) Save(_ context.Context, _ string, _ Snapshot) error {
	return nil
}
