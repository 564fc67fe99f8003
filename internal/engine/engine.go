// Package engine implements the offline-first synchronization engine: it
// reconciles the terminal-local replica of products, customers, sales and
// credit transactions with the canonical remote store, under unreliable
// connectivity and partial failure.
package engine

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/remote"
	"dukapos/backend/internal/state"
)

type Options struct {
	Local        localstore.Store
	Remote       remote.Client
	State        state.Store
	Logger       *logrus.Logger
	TerminalID   string
	Retry        RetryConfig
	ProbeTimeout time.Duration
	PollInterval time.Duration
}

// Engine drives dependency-ordered sync cycles. At most one cycle runs at a
// time; a concurrent trigger is rejected, not queued.
type Engine struct {
	local    localstore.Store
	remote   remote.Client
	state    state.Store
	logger   *logrus.Logger
	validate *validator.Validate

	probe     *Probe
	publisher *Publisher
	retrier   *Retrier

	products  *productSyncer
	customers *customerSyncer
	sales     *saleSyncer
	credits   *creditSyncer
	auditor   *auditor

	terminalID string
	busy       atomic.Bool
}

func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if opts.Retry == (RetryConfig{}) {
		opts.Retry = DefaultRetryConfig()
	}
	if opts.State == nil {
		opts.State = state.NoopStore{}
	}

	probe := NewProbe(opts.Remote, opts.ProbeTimeout)
	publisher := NewPublisher(opts.Local, probe, logger, opts.PollInterval)
	retrier := NewRetrier(opts.Retry, logger, publisher)

	validate := validator.New()
	validate.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	products := &productSyncer{local: opts.Local, remote: opts.Remote, retrier: retrier, logger: logger}
	customers := &customerSyncer{local: opts.Local, remote: opts.Remote, retrier: retrier, logger: logger}
	sales := &saleSyncer{
		local:      opts.Local,
		remote:     opts.Remote,
		retrier:    retrier,
		products:   products,
		customers:  customers,
		logger:     logger,
		terminalID: opts.TerminalID,
	}
	credits := &creditSyncer{local: opts.Local, remote: opts.Remote, retrier: retrier, customers: customers, logger: logger}

	e := &Engine{
		local:      opts.Local,
		remote:     opts.Remote,
		state:      opts.State,
		logger:     logger,
		validate:   validate,
		probe:      probe,
		publisher:  publisher,
		retrier:    retrier,
		products:   products,
		customers:  customers,
		sales:      sales,
		credits:    credits,
		auditor:    &auditor{local: opts.Local, remote: opts.Remote, retrier: retrier, logger: logger, now: time.Now},
		terminalID: opts.TerminalID,
	}

	if snap, ok, err := opts.State.Load(context.Background(), opts.TerminalID); err == nil && ok {
		publisher.RestoreSnapshot(*snap)
	}

	return e
}

// Publisher exposes the status publisher so the daemon can run its polling
// loop.
func (e *Engine) Publisher() *Publisher {
	return e.publisher
}

// SyncAll runs one full sync cycle. It never returns a Go error; every
// failure mode is folded into the result so callers can keep working
// offline regardless of the outcome.
func (e *Engine) SyncAll(ctx context.Context) domain.SyncResult {
	if !e.busy.CompareAndSwap(false, true) {
		return domain.SyncResult{Success: false, Synced: 0, Errors: []string{"sync already in progress"}}
	}
	defer e.busy.Store(false)

	start := time.Now()
	conn := e.probe.Check(ctx)
	if !conn.Online {
		errs := []string{fmt.Sprintf("remote store unreachable: %s", conn.Error)}
		e.publisher.CompleteSync(ctx, start, time.Since(start), errs)
		return domain.SyncResult{Success: false, Synced: 0, Errors: errs}
	}

	var synced int
	var errs []string

	errs = append(errs, e.preValidate(ctx)...)

	for _, fix := range e.dedupeLocal(ctx) {
		e.logger.WithField("phase", "local-dedupe").Info(fix)
	}

	localReport := e.auditor.ValidateLocal(ctx)
	for _, fix := range localReport.Fixed {
		e.logger.WithField("phase", "local-consistency").Info(fix)
	}
	errs = append(errs, localReport.Issues...)

	phases := []struct {
		name string
		push func(context.Context) (PushOutcome, error)
	}{
		{"push-products-phase", e.products.Push},
		{"push-customers-phase", e.customers.Push},
		{"push-sales-phase", e.sales.Push},
		{"push-credits-phase", e.credits.Push},
	}
	for _, phase := range phases {
		var out PushOutcome
		err := e.retrier.Do(ctx, phase.name, func(ctx context.Context) error {
			var pushErr error
			out, pushErr = phase.push(ctx)
			return pushErr
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", phase.name, err))
			continue
		}
		synced += out.Synced
		errs = append(errs, out.Errors...)
	}

	remoteReport := e.auditor.AuditRemote(ctx)
	for _, fix := range remoteReport.Fixed {
		e.logger.WithField("phase", "remote-audit").Info(fix)
	}
	errs = append(errs, remoteReport.Issues...)

	errs = dedupeStrings(errs)
	duration := time.Since(start)

	e.publisher.CompleteSync(ctx, start, duration, errs)

	lastSync, logged, samples := e.publisher.SnapshotState()
	retries := 0
	for _, s := range samples {
		retries += s.Retries
	}
	snap := state.Snapshot{
		LastSync:     lastSync,
		DurationMS:   duration.Milliseconds(),
		TotalRetries: retries,
		Errors:       logged,
		Samples:      samples,
	}
	if err := e.state.Save(ctx, e.terminalID, snap); err != nil {
		e.logger.Warn("failed to persist sync state: ", err)
	}

	e.logger.WithFields(logrus.Fields{
		"synced":      synced,
		"errors":      len(errs),
		"duration_ms": duration.Milliseconds(),
	}).Info("sync cycle finished")

	return domain.SyncResult{Success: len(errs) == 0, Synced: synced, Errors: errs}
}

// PullFromAll replaces the local stores wholesale with the remote store's
// canonical data. This is the disaster-recovery path, not incremental sync;
// an entity whose pull fails keeps its current local data.
func (e *Engine) PullFromAll(ctx context.Context) domain.PullResult {
	result := domain.PullResult{Errors: []string{}}

	conn := e.probe.Check(ctx)
	if !conn.Online {
		result.Errors = append(result.Errors, fmt.Sprintf("remote store unreachable: %s", conn.Error))
		return result
	}

	if products, pullErrs := e.products.Pull(ctx); len(pullErrs) > 0 {
		result.Errors = append(result.Errors, pullErrs...)
	} else if err := e.local.ReplaceProducts(ctx, products); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("replace products: %v", err))
	} else {
		result.Products = len(products)
	}

	if customers, pullErrs := e.customers.Pull(ctx); len(pullErrs) > 0 {
		result.Errors = append(result.Errors, pullErrs...)
	} else if err := e.local.ReplaceCustomers(ctx, customers); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("replace customers: %v", err))
	} else {
		result.Customers = len(customers)
	}

	if sales, pullErrs := e.sales.Pull(ctx); len(pullErrs) > 0 {
		result.Errors = append(result.Errors, pullErrs...)
	} else if err := e.local.ReplaceSales(ctx, sales); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("replace sales: %v", err))
	} else {
		result.Sales = len(sales)
	}

	if txns, pullErrs := e.credits.Pull(ctx); len(pullErrs) > 0 {
		result.Errors = append(result.Errors, pullErrs...)
	} else if err := e.local.ReplaceCreditTransactions(ctx, txns); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("replace credit transactions: %v", err))
	} else {
		result.CreditTransactions = len(txns)
	}

	result.Errors = dedupeStrings(result.Errors)
	e.publisher.Publish(ctx)
	return result
}

// GetSyncStatus is a pure read; it never blocks beyond the probe timeout.
func (e *Engine) GetSyncStatus(ctx context.Context) domain.SyncStatus {
	return e.publisher.Status(ctx)
}

// OnSyncStatusChange registers an observer and returns its unsubscribe func.
func (e *Engine) OnSyncStatusChange(callback func(domain.SyncStatus)) func() {
	return e.publisher.Subscribe(callback)
}

// preValidate reports unsynced records that would fail remote constraints,
// before any remote call is spent on them.
func (e *Engine) preValidate(ctx context.Context) []string {
	var errs []string

	if products, err := e.local.ListProducts(ctx); err == nil {
		for _, p := range products {
			if p.Synced {
				continue
			}
			if err := e.validate.Struct(p); err != nil {
				errs = append(errs, fmt.Sprintf("product %q failed validation: %v", p.Name, err))
			}
		}
	}
	if customers, err := e.local.ListCustomers(ctx); err == nil {
		for _, c := range customers {
			if c.Synced {
				continue
			}
			if err := e.validate.Struct(c); err != nil {
				errs = append(errs, fmt.Sprintf("customer %q failed validation: %v", c.Name, err))
			}
		}
	}
	if sales, err := e.local.ListSales(ctx); err == nil {
		for _, s := range sales {
			if s.Synced {
				continue
			}
			if err := e.validate.Struct(s); err != nil {
				errs = append(errs, fmt.Sprintf("sale %s failed validation: %v", s.ID, err))
			}
		}
	}
	if txns, err := e.local.ListCreditTransactions(ctx); err == nil {
		for _, t := range txns {
			if t.Synced {
				continue
			}
			if err := e.validate.Struct(t); err != nil {
				errs = append(errs, fmt.Sprintf("credit transaction %s failed validation: %v", t.ID, err))
			}
		}
	}

	return errs
}

// dedupeLocal merges local duplicates before pushing so the remote store
// never sees two copies of the same natural key from one terminal. The
// keeper is the synced copy when one exists, otherwise the oldest.
func (e *Engine) dedupeLocal(ctx context.Context) []string {
	var fixes []string

	products, err := e.local.ListProducts(ctx)
	if err == nil {
		keepers := make(map[string]domain.Product)
		for _, p := range products {
			key := naturalProductKey(p.Name, p.Category)
			keeper, seen := keepers[key]
			if !seen {
				keepers[key] = p
				continue
			}
			keepers[key] = pickProductKeeper(keeper, p)
		}
		// Remap every loser straight to the final keeper. A chain of three
		// or more duplicates must never leave a reference pointing at an
		// intermediate loser that is itself deleted below.
		remap := make(map[string]string)
		for _, p := range products {
			if keeper := keepers[naturalProductKey(p.Name, p.Category)]; p.ID != keeper.ID {
				remap[p.ID] = keeper.ID
			}
		}
		for loserID, winnerID := range remap {
			if err := e.local.DeleteProduct(ctx, loserID); err != nil {
				continue
			}
			fixes = append(fixes, fmt.Sprintf("merged duplicate local product %s into %s", loserID, winnerID))
		}
		if len(remap) > 0 {
			e.remapSaleProducts(ctx, remap)
		}
	}

	customers, err := e.local.ListCustomers(ctx)
	if err == nil {
		keepers := make(map[string]domain.Customer)
		for _, c := range customers {
			key := strings.TrimSpace(c.Phone)
			keeper, seen := keepers[key]
			if !seen {
				keepers[key] = c
				continue
			}
			keepers[key] = pickCustomerKeeper(keeper, c)
		}
		remap := make(map[string]string)
		for _, c := range customers {
			if keeper := keepers[strings.TrimSpace(c.Phone)]; c.ID != keeper.ID {
				remap[c.ID] = keeper.ID
			}
		}
		for loserID, winnerID := range remap {
			if err := e.local.DeleteCustomer(ctx, loserID); err != nil {
				continue
			}
			fixes = append(fixes, fmt.Sprintf("merged duplicate local customer %s into %s", loserID, winnerID))
		}
		if len(remap) > 0 {
			e.remapCustomerRefs(ctx, remap)
		}
	}

	return fixes
}

func (e *Engine) remapSaleProducts(ctx context.Context, remap map[string]string) {
	sales, err := e.local.ListSales(ctx)
	if err != nil {
		return
	}
	for _, sale := range sales {
		changed := false
		for i, item := range sale.Items {
			if winner, ok := remap[item.ProductID]; ok {
				sale.Items[i].ProductID = winner
				changed = true
			}
		}
		if changed {
			if _, err := e.local.SaveSale(ctx, sale); err != nil {
				e.logger.Warn("failed to remap sale product references: ", err)
			}
		}
	}
}

func (e *Engine) remapCustomerRefs(ctx context.Context, remap map[string]string) {
	if sales, err := e.local.ListSales(ctx); err == nil {
		for _, sale := range sales {
			if winner, ok := remap[sale.CustomerID]; ok {
				sale.CustomerID = winner
				if _, err := e.local.SaveSale(ctx, sale); err != nil {
					e.logger.Warn("failed to remap sale customer reference: ", err)
				}
			}
		}
	}
	if txns, err := e.local.ListCreditTransactions(ctx); err == nil {
		for _, txn := range txns {
			if winner, ok := remap[txn.CustomerID]; ok {
				txn.CustomerID = winner
				if _, err := e.local.SaveCreditTransaction(ctx, txn); err != nil {
					e.logger.Warn("failed to remap credit customer reference: ", err)
				}
			}
		}
	}
}

func pickProductKeeper(a, b domain.Product) domain.Product {
	if a.Synced != b.Synced {
		if a.Synced {
			return a
		}
		return b
	}
	if b.CreatedAt.Before(a.CreatedAt) {
		return b
	}
	return a
}

func pickCustomerKeeper(a, b domain.Customer) domain.Customer {
	if a.Synced != b.Synced {
		if a.Synced {
			return a
		}
		return b
	}
	if b.CreatedAt.Before(a.CreatedAt) {
		return b
	}
	return a
}

func naturalProductKey(name, category string) string {
	return strings.ToLower(strings.TrimSpace(name)) + "|" + strings.ToLower(strings.TrimSpace(category))
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
