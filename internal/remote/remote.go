// Package remote defines the canonical server-side store the terminal syncs
// against. Rows here carry remote UUID keys; the terminal-local keys never
// leave the device except as a provenance reference on sales.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrInvalidRow = errors.New("invalid row")
)

const (
	SyncStatusPending = "pending"
	SyncStatusSynced  = "synced"
	SyncStatusFailed  = "failed"
)

type Product struct {
	ID           string
	Name         string
	Category     string
	SKU          string
	Unit         string
	Quantity     int
	SellingPrice decimal.Decimal
	CostPrice    *decimal.Decimal
	ExpiryDate   *time.Time
	SyncStatus   string
	SyncedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Customer struct {
	ID         string
	Name       string
	Phone      string
	Location   string
	Notes      string
	SyncStatus string
	SyncedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Sale struct {
	ID            string
	TerminalID    string
	LocalRef      string
	CustomerID    string
	Total         decimal.Decimal
	PaymentMethod string
	Items         []SaleItem
	SyncStatus    string
	SyncedAt      *time.Time
	Timestamp     time.Time
}

type SaleItem struct {
	ID        string
	SaleID    string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

type CreditTransaction struct {
	ID         string
	CustomerID string
	SaleID     string
	Type       string
	Amount     decimal.Decimal
	Note       string
	SyncStatus string
	SyncedAt   *time.Time
	Date       time.Time
}

// Client is the remote store contract. Every call may fail with a transport
// error; callers are expected to wrap calls in the retry executor rather
// than retrying here.
type Client interface {
	Ping(ctx context.Context) error

	ListProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id string) (*Product, error)
	FindProductByNameCategory(ctx context.Context, name string, category string) (*Product, error)
	InsertProduct(ctx context.Context, product Product) (*Product, error)
	UpdateProduct(ctx context.Context, product Product) (*Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCustomers(ctx context.Context) ([]Customer, error)
	FindCustomerByPhone(ctx context.Context, phone string) (*Customer, error)
	InsertCustomer(ctx context.Context, customer Customer) (*Customer, error)
	DeleteCustomer(ctx context.Context, id string) error

	ListSales(ctx context.Context) ([]Sale, error)
	InsertSale(ctx context.Context, sale Sale) (*Sale, error)
	InsertSaleItems(ctx context.Context, saleID string, items []SaleItem) error
	DeleteSale(ctx context.Context, id string) error

	ListCreditTransactions(ctx context.Context) ([]CreditTransaction, error)
	InsertCreditTransaction(ctx context.Context, txn CreditTransaction) (*CreditTransaction, error)
	DeleteCreditTransaction(ctx context.Context, id string) error

	DeleteOrphanSaleItems(ctx context.Context) (int, error)
	DeleteEmptySales(ctx context.Context) (int, error)
	DeleteOrphanCreditTransactions(ctx context.Context) (int, error)
	FindDuplicateProductKeys(ctx context.Context) ([]string, error)
	FindDuplicateCustomerPhones(ctx context.Context) ([]string, error)
	FindSaleItemsWithMissingProducts(ctx context.Context) ([]string, error)

	Close() error
}
