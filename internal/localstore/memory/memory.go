package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/xid"
)

type Store struct {
	localstore.ChangeFeed

	mu        sync.RWMutex
	products  map[string]domain.Product
	customers map[string]domain.Customer
	sales     map[string]domain.Sale
	credits   map[string]domain.CreditTransaction
	users     map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning printed to stdout.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	cashierPwd := envOr("SEED_CASHIER_PASSWORD", "cashier123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_CASHIER_PASSWORD") == "" {
		log.Println("[local-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_CASHIER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"cashier", cashierPwd, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[local-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:  make(map[string]domain.Product),
		customers: make(map[string]domain.Customer),
		sales:     make(map[string]domain.Sale),
		credits:   make(map[string]domain.CreditTransaction),
		users:     seedUsers(),
	}
}

func NewSeeded() *Store {
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: xid.New("prod"), Name: "Maize Flour 2kg", Category: "grocery", Unit: "bag", Quantity: 40, SellingPrice: decimal.NewFromInt(180), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Rice 1kg", Category: "grocery", Unit: "bag", Quantity: 25, SellingPrice: decimal.NewFromInt(160), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Cooking Oil 1L", Category: "grocery", Unit: "bottle", Quantity: 18, SellingPrice: decimal.NewFromInt(320), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Sugar 1kg", Category: "grocery", Unit: "bag", Quantity: 30, SellingPrice: decimal.NewFromInt(150), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Milk 500ml", Category: "dairy", Unit: "packet", Quantity: 50, SellingPrice: decimal.NewFromInt(60), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Bar Soap", Category: "household", Unit: "piece", Quantity: 35, SellingPrice: decimal.NewFromInt(90), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Tea Leaves 250g", Category: "beverage", Unit: "packet", Quantity: 20, SellingPrice: decimal.NewFromInt(120), CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("prod"), Name: "Bread 400g", Category: "bakery", Unit: "loaf", Quantity: 15, SellingPrice: decimal.NewFromInt(65), CreatedAt: now, UpdatedAt: now},
	}
	customers := []domain.Customer{
		{ID: xid.New("cust"), Name: "Amina Hassan", Phone: "0712000001", Location: "Kariakoo", CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cust"), Name: "John Mwangi", Phone: "0712000002", Location: "Mlimani", CreatedAt: now, UpdatedAt: now},
		{ID: xid.New("cust"), Name: "Grace Wanjiru", Phone: "0712000003", Location: "Soko Kuu", CreatedAt: now, UpdatedAt: now},
	}

	s := New()
	for _, p := range products {
		s.products[p.ID] = p
	}
	for _, c := range customers {
		s.customers[c.ID] = c
	}
	return s
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, localstore.ErrNotFound
	}
	copied := product
	return &copied, nil
}

func (s *Store) SaveProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product.Name = strings.TrimSpace(product.Name)
	product.Category = strings.TrimSpace(product.Category)
	if product.Name == "" || product.Category == "" {
		return nil, localstore.ErrInvalidRecord
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
		product.CreatedAt = time.Now().UTC()
	}
	product.UpdatedAt = time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = product.UpdatedAt
	}

	s.products[product.ID] = product
	s.Notify("products")
	saved := product
	return &saved, nil
}

func (s *Store) DeleteProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[id]; !exists {
		return localstore.ErrNotFound
	}
	delete(s.products, id)
	s.Notify("products")
	return nil
}

func (s *Store) ReplaceProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if p.ID == "" {
			return localstore.ErrInvalidRecord
		}
		next[p.ID] = p
	}
	s.products = next
	s.Notify("products")
	return nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int {
		return cmpString(a.Name, b.Name)
	})
	return customers, nil
}

func (s *Store) GetCustomer(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, exists := s.customers[id]
	if !exists {
		return nil, localstore.ErrNotFound
	}
	copied := customer
	return &copied, nil
}

func (s *Store) SaveCustomer(_ context.Context, customer domain.Customer) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	customer.Name = strings.TrimSpace(customer.Name)
	customer.Phone = strings.TrimSpace(customer.Phone)
	if customer.Name == "" || customer.Phone == "" {
		return nil, localstore.ErrInvalidRecord
	}
	if customer.ID == "" {
		customer.ID = xid.New("cust")
		customer.CreatedAt = time.Now().UTC()
	}
	customer.UpdatedAt = time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = customer.UpdatedAt
	}

	s.customers[customer.ID] = customer
	s.Notify("customers")
	saved := customer
	return &saved, nil
}

func (s *Store) DeleteCustomer(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.customers[id]; !exists {
		return localstore.ErrNotFound
	}
	delete(s.customers, id)
	s.Notify("customers")
	return nil
}

func (s *Store) ReplaceCustomers(_ context.Context, customers []domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.Customer, len(customers))
	for _, c := range customers {
		if c.ID == "" {
			return localstore.ErrInvalidRecord
		}
		next[c.ID] = c
	}
	s.customers = next
	s.Notify("customers")
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	slices.SortFunc(sales, func(a, b domain.Sale) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return sales, nil
}

func (s *Store) GetSale(_ context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, exists := s.sales[id]
	if !exists {
		return nil, localstore.ErrNotFound
	}
	copied := sale
	return &copied, nil
}

func (s *Store) SaveSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(sale.Items) == 0 {
		return nil, localstore.ErrInvalidRecord
	}
	if sale.ID == "" {
		sale.ID = xid.New("sale")
	}
	if sale.Timestamp.IsZero() {
		sale.Timestamp = time.Now().UTC()
	}

	s.sales[sale.ID] = sale
	s.Notify("sales")
	saved := sale
	return &saved, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sales[id]; !exists {
		return localstore.ErrNotFound
	}
	delete(s.sales, id)
	s.Notify("sales")
	return nil
}

func (s *Store) ReplaceSales(_ context.Context, sales []domain.Sale) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.Sale, len(sales))
	for _, sale := range sales {
		if sale.ID == "" {
			return localstore.ErrInvalidRecord
		}
		next[sale.ID] = sale
	}
	s.sales = next
	s.Notify("sales")
	return nil
}

func (s *Store) ListCreditTransactions(_ context.Context) ([]domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txns := make([]domain.CreditTransaction, 0, len(s.credits))
	for _, txn := range s.credits {
		txns = append(txns, txn)
	}
	slices.SortFunc(txns, func(a, b domain.CreditTransaction) int {
		return a.Date.Compare(b.Date)
	})
	return txns, nil
}

func (s *Store) GetCreditTransaction(_ context.Context, id string) (*domain.CreditTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, exists := s.credits[id]
	if !exists {
		return nil, localstore.ErrNotFound
	}
	copied := txn
	return &copied, nil
}

func (s *Store) SaveCreditTransaction(_ context.Context, txn domain.CreditTransaction) (*domain.CreditTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txn.CustomerID == "" || txn.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, localstore.ErrInvalidRecord
	}
	if txn.ID == "" {
		txn.ID = xid.New("credit")
	}
	if txn.Date.IsZero() {
		txn.Date = time.Now().UTC()
	}

	s.credits[txn.ID] = txn
	s.Notify("credit_transactions")
	saved := txn
	return &saved, nil
}

func (s *Store) DeleteCreditTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credits[id]; !exists {
		return localstore.ErrNotFound
	}
	delete(s.credits, id)
	s.Notify("credit_transactions")
	return nil
}

func (s *Store) ReplaceCreditTransactions(_ context.Context, txns []domain.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.CreditTransaction, len(txns))
	for _, txn := range txns {
		if txn.ID == "" {
			return localstore.ErrInvalidRecord
		}
		next[txn.ID] = txn
	}
	s.credits = next
	s.Notify("credit_transactions")
	return nil
}

func (s *Store) GetUser(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, exists := s.users[username]
	if !exists || !user.Active {
		return nil, localstore.ErrNotFound
	}
	copied := user
	return &copied, nil
}

func cmpString(a, b string) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
