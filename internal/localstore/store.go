// Package localstore defines the terminal-local record store. It is the
// source of truth while the terminal is offline; every write lands here
// first and is pushed to the remote store by the sync engine later.
package localstore

import (
	"context"
	"errors"
	"sync"

	"dukapos/backend/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Store is the terminal-local persistence contract. Save is an upsert keyed
// by local ID; Replace swaps the whole collection in one step and is only
// used by pull operations.
type Store interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ReplaceProducts(ctx context.Context, products []domain.Product) error

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (*domain.Customer, error)
	SaveCustomer(ctx context.Context, customer domain.Customer) (*domain.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	ReplaceCustomers(ctx context.Context, customers []domain.Customer) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	GetSale(ctx context.Context, id string) (*domain.Sale, error)
	SaveSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
	ReplaceSales(ctx context.Context, sales []domain.Sale) error

	ListCreditTransactions(ctx context.Context) ([]domain.CreditTransaction, error)
	GetCreditTransaction(ctx context.Context, id string) (*domain.CreditTransaction, error)
	SaveCreditTransaction(ctx context.Context, txn domain.CreditTransaction) (*domain.CreditTransaction, error)
	DeleteCreditTransaction(ctx context.Context, id string) error
	ReplaceCreditTransactions(ctx context.Context, txns []domain.CreditTransaction) error

	GetUser(ctx context.Context, username string) (*domain.UserAccount, error)

	// OnChange registers an observer for local mutations and returns its
	// unsubscribe func. The callback receives the entity name that changed
	// ("products", "customers", "sales", "credit_transactions").
	OnChange(callback func(entity string)) func()
}

// ChangeFeed fans out local mutation notifications; store implementations
// embed it and call Notify after each successful write. Callbacks run
// synchronously on the mutating goroutine and must not call back into the
// store.
type ChangeFeed struct {
	mu   sync.Mutex
	subs map[int]func(entity string)
	next int
}

func (f *ChangeFeed) OnChange(callback func(entity string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs == nil {
		f.subs = make(map[int]func(entity string))
	}
	id := f.next
	f.next++
	f.subs[id] = callback
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *ChangeFeed) Notify(entity string) {
	f.mu.Lock()
	callbacks := make([]func(string), 0, len(f.subs))
	for _, cb := range f.subs {
		callbacks = append(callbacks, cb)
	}
	f.mu.Unlock()

	for _, cb := range callbacks {
		cb(entity)
	}
}
