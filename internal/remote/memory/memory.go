// Package memory is an in-process remote store used when no
// REMOTE_DATABASE_URL is configured and by the engine tests. It mirrors the
// postgres client's semantics, including natural-key lookups, and can
// simulate going offline or failing specific calls.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"dukapos/backend/internal/remote"
)

var ErrOffline = errors.New("connection refused")

type Client struct {
	mu       sync.RWMutex
	online   bool
	failures map[string][]error

	products  map[string]remote.Product
	customers map[string]remote.Customer
	sales     map[string]remote.Sale
	items     map[string][]remote.SaleItem
	credits   map[string]remote.CreditTransaction
}

func New() *Client {
	return &Client{
		online:    true,
		failures:  make(map[string][]error),
		products:  make(map[string]remote.Product),
		customers: make(map[string]remote.Customer),
		sales:     make(map[string]remote.Sale),
		items:     make(map[string][]remote.SaleItem),
		credits:   make(map[string]remote.CreditTransaction),
	}
}

func (c *Client) Close() error { return nil }

// SetOnline toggles simulated connectivity. While offline every call fails
// with ErrOffline.
func (c *Client) SetOnline(online bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.online = online
}

// Fail queues errors for the named method. Each queued error is consumed by
// one call before the method behaves normally again.
func (c *Client) Fail(op string, errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = append(c.failures[op], errs...)
}

func (c *Client) guard(op string) error {
	if !c.online {
		return ErrOffline
	}
	if queue := c.failures[op]; len(queue) > 0 {
		err := queue[0]
		c.failures[op] = queue[1:]
		return err
	}
	return nil
}

func (c *Client) Ping(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.guard("Ping")
}

func (c *Client) ListProducts(_ context.Context) ([]remote.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("ListProducts"); err != nil {
		return nil, err
	}

	products := make([]remote.Product, 0, len(c.products))
	for _, p := range c.products {
		products = append(products, p)
	}
	return products, nil
}

func (c *Client) GetProduct(_ context.Context, id string) (*remote.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("GetProduct"); err != nil {
		return nil, err
	}

	p, exists := c.products[id]
	if !exists {
		return nil, remote.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (c *Client) FindProductByNameCategory(_ context.Context, name string, category string) (*remote.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("FindProductByNameCategory"); err != nil {
		return nil, err
	}

	var best *remote.Product
	for _, p := range c.products {
		if naturalKeyEqual(p.Name, name) && naturalKeyEqual(p.Category, category) {
			if best == nil || p.CreatedAt.Before(best.CreatedAt) {
				copied := p
				best = &copied
			}
		}
	}
	if best == nil {
		return nil, remote.ErrNotFound
	}
	return best, nil
}

func (c *Client) InsertProduct(_ context.Context, product remote.Product) (*remote.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("InsertProduct"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(product.Name) == "" || strings.TrimSpace(product.Category) == "" {
		return nil, remote.ErrInvalidRow
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.SyncStatus == "" {
		product.SyncStatus = remote.SyncStatusSynced
	}
	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.SyncedAt = &now

	c.products[product.ID] = product
	created := product
	return &created, nil
}

func (c *Client) UpdateProduct(_ context.Context, product remote.Product) (*remote.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("UpdateProduct"); err != nil {
		return nil, err
	}

	if _, exists := c.products[product.ID]; !exists {
		return nil, remote.ErrNotFound
	}
	now := time.Now().UTC()
	product.UpdatedAt = now
	product.SyncedAt = &now
	if product.SyncStatus == "" {
		product.SyncStatus = remote.SyncStatusSynced
	}

	c.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (c *Client) DeleteProduct(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteProduct"); err != nil {
		return err
	}

	if _, exists := c.products[id]; !exists {
		return remote.ErrNotFound
	}
	delete(c.products, id)
	return nil
}

func (c *Client) ListCustomers(_ context.Context) ([]remote.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("ListCustomers"); err != nil {
		return nil, err
	}

	customers := make([]remote.Customer, 0, len(c.customers))
	for _, cu := range c.customers {
		customers = append(customers, cu)
	}
	return customers, nil
}

func (c *Client) FindCustomerByPhone(_ context.Context, phone string) (*remote.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("FindCustomerByPhone"); err != nil {
		return nil, err
	}

	var best *remote.Customer
	for _, cu := range c.customers {
		if strings.TrimSpace(cu.Phone) == strings.TrimSpace(phone) {
			if best == nil || cu.CreatedAt.Before(best.CreatedAt) {
				copied := cu
				best = &copied
			}
		}
	}
	if best == nil {
		return nil, remote.ErrNotFound
	}
	return best, nil
}

func (c *Client) InsertCustomer(_ context.Context, customer remote.Customer) (*remote.Customer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("InsertCustomer"); err != nil {
		return nil, err
	}

	if strings.TrimSpace(customer.Name) == "" || strings.TrimSpace(customer.Phone) == "" {
		return nil, remote.ErrInvalidRow
	}
	if customer.ID == "" {
		customer.ID = uuid.NewString()
	}
	if customer.SyncStatus == "" {
		customer.SyncStatus = remote.SyncStatusSynced
	}
	now := time.Now().UTC()
	if customer.CreatedAt.IsZero() {
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	customer.SyncedAt = &now

	c.customers[customer.ID] = customer
	created := customer
	return &created, nil
}

func (c *Client) DeleteCustomer(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteCustomer"); err != nil {
		return err
	}

	if _, exists := c.customers[id]; !exists {
		return remote.ErrNotFound
	}
	delete(c.customers, id)
	return nil
}

func (c *Client) ListSales(_ context.Context) ([]remote.Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("ListSales"); err != nil {
		return nil, err
	}

	sales := make([]remote.Sale, 0, len(c.sales))
	for _, s := range c.sales {
		s.Items = append([]remote.SaleItem(nil), c.items[s.ID]...)
		sales = append(sales, s)
	}
	return sales, nil
}

func (c *Client) InsertSale(_ context.Context, sale remote.Sale) (*remote.Sale, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("InsertSale"); err != nil {
		return nil, err
	}

	if sale.ID == "" {
		sale.ID = uuid.NewString()
	}
	if sale.SyncStatus == "" {
		sale.SyncStatus = remote.SyncStatusSynced
	}
	now := time.Now().UTC()
	sale.SyncedAt = &now
	if sale.Timestamp.IsZero() {
		sale.Timestamp = now
	}

	header := sale
	header.Items = nil
	c.sales[sale.ID] = header
	created := sale
	return &created, nil
}

func (c *Client) InsertSaleItems(_ context.Context, saleID string, items []remote.SaleItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("InsertSaleItems"); err != nil {
		return err
	}

	if saleID == "" || len(items) == 0 {
		return remote.ErrInvalidRow
	}
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.SaleID = saleID
		c.items[saleID] = append(c.items[saleID], item)
	}
	return nil
}

func (c *Client) DeleteSale(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteSale"); err != nil {
		return err
	}

	if _, exists := c.sales[id]; !exists {
		return remote.ErrNotFound
	}
	delete(c.sales, id)
	delete(c.items, id)
	return nil
}

func (c *Client) ListCreditTransactions(_ context.Context) ([]remote.CreditTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("ListCreditTransactions"); err != nil {
		return nil, err
	}

	txns := make([]remote.CreditTransaction, 0, len(c.credits))
	for _, txn := range c.credits {
		txns = append(txns, txn)
	}
	return txns, nil
}

func (c *Client) InsertCreditTransaction(_ context.Context, txn remote.CreditTransaction) (*remote.CreditTransaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("InsertCreditTransaction"); err != nil {
		return nil, err
	}

	if txn.CustomerID == "" {
		return nil, remote.ErrInvalidRow
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.SyncStatus == "" {
		txn.SyncStatus = remote.SyncStatusSynced
	}
	now := time.Now().UTC()
	txn.SyncedAt = &now
	if txn.Date.IsZero() {
		txn.Date = now
	}

	c.credits[txn.ID] = txn
	created := txn
	return &created, nil
}

func (c *Client) DeleteCreditTransaction(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteCreditTransaction"); err != nil {
		return err
	}

	if _, exists := c.credits[id]; !exists {
		return remote.ErrNotFound
	}
	delete(c.credits, id)
	return nil
}

func (c *Client) DeleteOrphanSaleItems(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteOrphanSaleItems"); err != nil {
		return 0, err
	}

	deleted := 0
	for saleID, items := range c.items {
		if _, exists := c.sales[saleID]; !exists {
			deleted += len(items)
			delete(c.items, saleID)
		}
	}
	return deleted, nil
}

func (c *Client) DeleteEmptySales(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteEmptySales"); err != nil {
		return 0, err
	}

	deleted := 0
	for id := range c.sales {
		if len(c.items[id]) == 0 {
			delete(c.sales, id)
			delete(c.items, id)
			deleted++
		}
	}
	return deleted, nil
}

func (c *Client) DeleteOrphanCreditTransactions(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("DeleteOrphanCreditTransactions"); err != nil {
		return 0, err
	}

	deleted := 0
	for id, txn := range c.credits {
		if _, exists := c.customers[txn.CustomerID]; !exists {
			delete(c.credits, id)
			deleted++
		}
	}
	return deleted, nil
}

func (c *Client) FindSaleItemsWithMissingProducts(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("FindSaleItemsWithMissingProducts"); err != nil {
		return nil, err
	}

	missing := make([]string, 0, 4)
	for _, items := range c.items {
		for _, item := range items {
			if _, exists := c.products[item.ProductID]; !exists {
				missing = append(missing, item.ID)
			}
		}
	}
	return missing, nil
}

func (c *Client) FindDuplicateProductKeys(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("FindDuplicateProductKeys"); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, p := range c.products {
		key := strings.ToLower(strings.TrimSpace(p.Name)) + "|" + strings.ToLower(strings.TrimSpace(p.Category))
		counts[key]++
	}
	dupes := make([]string, 0, 4)
	for key, n := range counts {
		if n > 1 {
			dupes = append(dupes, key)
		}
	}
	return dupes, nil
}

func (c *Client) FindDuplicateCustomerPhones(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.guard("FindDuplicateCustomerPhones"); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, cu := range c.customers {
		counts[strings.TrimSpace(cu.Phone)]++
	}
	dupes := make([]string, 0, 4)
	for phone, n := range counts {
		if n > 1 {
			dupes = append(dupes, phone)
		}
	}
	return dupes, nil
}

// OrphanSaleItems seeds sale items without a matching sale header, used to
// exercise the remote audit pass.
func (c *Client) OrphanSaleItems(saleID string, items []remote.SaleItem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[saleID] = append(c.items[saleID], items...)
}

func naturalKeyEqual(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
