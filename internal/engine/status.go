package engine

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/state"
)

const (
	sampleWindow = 100
	errorLogCap  = 50
)

type sample struct {
	operation string
	duration  time.Duration
	success   bool
	errMsg    string
	retries   int
}

// Publisher tracks sync health and broadcasts it to observers. All methods
// are safe for concurrent use; an in-progress sync and the polling loop may
// touch it at the same time.
type Publisher struct {
	local  localstore.Store
	probe  *Probe
	logger *logrus.Logger

	mu           sync.Mutex
	samples      []sample
	lastSync     *time.Time
	lastDuration time.Duration
	errorLog     []string
	subscribers  map[int]func(domain.SyncStatus)
	nextSubID    int

	pollInterval time.Duration
}

func NewPublisher(local localstore.Store, probe *Probe, logger *logrus.Logger, pollInterval time.Duration) *Publisher {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	return &Publisher{
		local:        local,
		probe:        probe,
		logger:       logger,
		samples:      make([]sample, 0, sampleWindow),
		subscribers:  make(map[int]func(domain.SyncStatus)),
		pollInterval: pollInterval,
	}
}

// RecordSample keeps a rolling window of the most recent operations.
func (p *Publisher) RecordSample(operation string, duration time.Duration, success bool, errMsg string, retries int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.samples = append(p.samples, sample{
		operation: operation,
		duration:  duration,
		success:   success,
		errMsg:    errMsg,
		retries:   retries,
	})
	if len(p.samples) > sampleWindow {
		p.samples = p.samples[len(p.samples)-sampleWindow:]
	}
}

// CompleteSync records the outcome of a sync cycle and notifies observers.
func (p *Publisher) CompleteSync(ctx context.Context, finished time.Time, duration time.Duration, errs []string) {
	p.mu.Lock()
	if len(errs) == 0 {
		at := finished.UTC()
		p.lastSync = &at
	}
	p.lastDuration = duration
	for _, e := range errs {
		p.appendErrorLocked(e)
	}
	p.mu.Unlock()

	p.Publish(ctx)
}

func (p *Publisher) appendErrorLocked(msg string) {
	for _, existing := range p.errorLog {
		if existing == msg {
			return
		}
	}
	p.errorLog = append(p.errorLog, msg)
	if len(p.errorLog) > errorLogCap {
		p.errorLog = p.errorLog[len(p.errorLog)-errorLogCap:]
	}
}

// RestoreSnapshot seeds metadata persisted by a previous run.
func (p *Publisher) RestoreSnapshot(snap state.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !snap.LastSync.IsZero() {
		at := snap.LastSync.UTC()
		p.lastSync = &at
	}
	p.lastDuration = time.Duration(snap.DurationMS) * time.Millisecond
	for _, e := range snap.Errors {
		p.appendErrorLocked(e)
	}
	for _, s := range snap.Samples {
		p.samples = append(p.samples, sample{
			operation: s.Operation,
			duration:  time.Duration(s.DurationMS) * time.Millisecond,
			success:   s.Success,
			retries:   s.Retries,
		})
	}
	if len(p.samples) > sampleWindow {
		p.samples = p.samples[len(p.samples)-sampleWindow:]
	}
}

// SnapshotState reports what the metadata store persists across restarts.
func (p *Publisher) SnapshotState() (lastSync time.Time, errs []string, samples []state.Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.lastSync != nil {
		lastSync = *p.lastSync
	}
	errs = make([]string, len(p.errorLog))
	copy(errs, p.errorLog)
	samples = make([]state.Sample, 0, len(p.samples))
	for _, s := range p.samples {
		samples = append(samples, state.Sample{
			Operation:  s.operation,
			DurationMS: s.duration.Milliseconds(),
			Success:    s.success,
			Retries:    s.retries,
		})
	}
	return lastSync, errs, samples
}

// Status recomputes the full status. Pending counts come from scanning the
// local stores; connectivity from a fresh probe check.
func (p *Publisher) Status(ctx context.Context) domain.SyncStatus {
	conn := p.probe.Check(ctx)
	pending := p.pendingCount(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()

	var successes, totalRetries int
	var totalLatency time.Duration
	for _, s := range p.samples {
		if s.success {
			successes++
		}
		totalRetries += s.retries
		totalLatency += s.duration
	}
	metrics := domain.SyncMetrics{
		TotalRetries:       totalRetries,
		LastSyncDurationMS: p.lastDuration.Milliseconds(),
	}
	if n := len(p.samples); n > 0 {
		metrics.SuccessRate = float64(successes) / float64(n)
		metrics.AvgLatencyMS = (totalLatency / time.Duration(n)).Milliseconds()
	}

	errs := make([]string, len(p.errorLog))
	copy(errs, p.errorLog)

	return domain.SyncStatus{
		IsOnline:     conn.Online,
		LastSync:     p.lastSync,
		PendingSyncs: pending,
		Errors:       errs,
		Connectivity: conn,
		Metrics:      metrics,
	}
}

func (p *Publisher) pendingCount(ctx context.Context) int {
	pending := 0
	if products, err := p.local.ListProducts(ctx); err == nil {
		for _, r := range products {
			if !r.Synced {
				pending++
			}
		}
	}
	if customers, err := p.local.ListCustomers(ctx); err == nil {
		for _, r := range customers {
			if !r.Synced {
				pending++
			}
		}
	}
	if sales, err := p.local.ListSales(ctx); err == nil {
		for _, r := range sales {
			if !r.Synced {
				pending++
			}
		}
	}
	if txns, err := p.local.ListCreditTransactions(ctx); err == nil {
		for _, r := range txns {
			if !r.Synced {
				pending++
			}
		}
	}
	return pending
}

// Subscribe registers an observer and returns its unsubscribe func.
func (p *Publisher) Subscribe(callback func(domain.SyncStatus)) func() {
	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = callback
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// Publish recomputes status and invokes every subscriber. A panicking
// subscriber is logged and skipped; it never blocks the others.
func (p *Publisher) Publish(ctx context.Context) {
	status := p.Status(ctx)

	p.mu.Lock()
	callbacks := make([]func(domain.SyncStatus), 0, len(p.subscribers))
	for _, cb := range p.subscribers {
		callbacks = append(callbacks, cb)
	}
	p.mu.Unlock()

	for _, cb := range callbacks {
		p.notify(cb, status)
	}
}

func (p *Publisher) notify(cb func(domain.SyncStatus), status domain.SyncStatus) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("status subscriber panicked: ", r)
		}
	}()
	cb(status)
}

// Start runs the periodic status poll until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Publish(ctx)
		}
	}
}
