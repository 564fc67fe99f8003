package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// A record's local key (ID) is generated on the terminal and is not stable on
// the remote store. Once a record has been pushed, RemoteID carries the
// canonical remote UUID and Synced is true. Synced=false means the
// authoritative content currently lives only on this terminal.

type Product struct {
	ID           string           `json:"id"`
	RemoteID     string           `json:"remote_id,omitempty"`
	Name         string           `json:"name" validate:"required"`
	Category     string           `json:"category" validate:"required"`
	SKU          string           `json:"sku,omitempty"`
	Unit         string           `json:"unit,omitempty"`
	Quantity     int              `json:"quantity" validate:"gte=0"`
	SellingPrice decimal.Decimal  `json:"selling_price" validate:"gt=0"`
	CostPrice    *decimal.Decimal `json:"cost_price,omitempty"`
	ExpiryDate   *time.Time       `json:"expiry_date,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
	Synced       bool             `json:"synced"`
}

type Customer struct {
	ID        string    `json:"id"`
	RemoteID  string    `json:"remote_id,omitempty"`
	Name      string    `json:"name" validate:"required"`
	Phone     string    `json:"phone" validate:"required"`
	Location  string    `json:"location,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Synced    bool      `json:"synced"`
}

type SaleItem struct {
	ProductID string          `json:"product_id" validate:"required"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
	UnitPrice decimal.Decimal `json:"unit_price" validate:"gt=0"`
}

// LineTotal is quantity * unit price.
func (i SaleItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Sale struct {
	ID            string          `json:"id"`
	RemoteID      string          `json:"remote_id,omitempty"`
	Items         []SaleItem      `json:"items" validate:"min=1,dive"`
	Total         decimal.Decimal `json:"total"`
	PaymentMethod string          `json:"payment_method" validate:"oneof=cash mobile-money credit"`
	CustomerID    string          `json:"customer_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
	Synced        bool            `json:"synced"`
}

// ItemsTotal is the sum of all line totals, which Total must match within
// the repair epsilon.
func (s Sale) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range s.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

type CreditTransaction struct {
	ID         string          `json:"id"`
	RemoteID   string          `json:"remote_id,omitempty"`
	CustomerID string          `json:"customer_id" validate:"required"`
	Type       string          `json:"type" validate:"oneof=sale-debit payment-credit"`
	Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
	Note       string          `json:"note,omitempty"`
	SaleID     string          `json:"sale_id,omitempty"`
	Date       time.Time       `json:"date"`
	Synced     bool            `json:"synced"`
}

const (
	PaymentCash        = "cash"
	PaymentMobileMoney = "mobile-money"
	PaymentCredit      = "credit"
)

const (
	CreditTypeSaleDebit     = "sale-debit"
	CreditTypePaymentCredit = "payment-credit"
)

// SyncResult is what SyncAll always returns; it never surfaces a Go error.
// Success is true iff Errors is empty.
type SyncResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Errors  []string `json:"errors"`
}

// PullResult reports a wholesale local replace from the remote store.
type PullResult struct {
	Products           int      `json:"products"`
	Customers          int      `json:"customers"`
	Sales              int      `json:"sales"`
	CreditTransactions int      `json:"credit_transactions"`
	Errors             []string `json:"errors"`
}

type Connectivity struct {
	Online    bool   `json:"online"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type SyncMetrics struct {
	SuccessRate        float64 `json:"success_rate"`
	AvgLatencyMS       int64   `json:"avg_latency_ms"`
	TotalRetries       int     `json:"total_retries"`
	LastSyncDurationMS int64   `json:"last_sync_duration_ms"`
}

type SyncStatus struct {
	IsOnline     bool         `json:"is_online"`
	LastSync     *time.Time   `json:"last_sync,omitempty"`
	PendingSyncs int          `json:"pending_syncs"`
	Errors       []string     `json:"errors"`
	Connectivity Connectivity `json:"connectivity"`
	Metrics      SyncMetrics  `json:"metrics"`
}

// AuditReport records what the consistency auditor saw and repaired.
// Issues require manual intervention; Fixed entries were auto-repaired.
type AuditReport struct {
	Issues []string `json:"issues"`
	Fixed  []string `json:"fixed"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
