package engine

import (
	"context"
	"errors"
	"time"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/remote"
)

// probeRecordID is a fixed key that will never exist. The probe reads it so
// that reachability is measured against the products table itself, not a
// separate health endpoint; a not-found answer still proves the table is
// reachable and readable.
const probeRecordID = "00000000-0000-0000-0000-000000000000"

// Probe checks whether the remote store is reachable. Check never returns
// an error; unreachability is data, not a failure.
type Probe struct {
	client  remote.Client
	timeout time.Duration
}

func NewProbe(client remote.Client, timeout time.Duration) *Probe {
	if timeout <= 0 || timeout > 5*time.Second {
		timeout = 5 * time.Second
	}
	return &Probe{client: client, timeout: timeout}
}

func (p *Probe) Check(ctx context.Context) domain.Connectivity {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := p.client.GetProduct(checkCtx, probeRecordID)
		done <- err
	}()

	var err error
	select {
	case err = <-done:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}
	latency := time.Since(start).Milliseconds()

	if err == nil || errors.Is(err, remote.ErrNotFound) {
		return domain.Connectivity{Online: true, LatencyMS: latency}
	}
	return domain.Connectivity{Online: false, LatencyMS: latency, Error: err.Error()}
}
