package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"dukapos/backend/internal/remote"
)

type Client struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Client, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) ListProducts(ctx context.Context) ([]remote.Product, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, category, sku, unit, quantity, selling_price, cost_price, expiry_date, sync_status, synced_at, created_at, updated_at
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]remote.Product, 0, 128)
	for rows.Next() {
		var p remote.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.SKU, &p.Unit, &p.Quantity, &p.SellingPrice, &p.CostPrice, &p.ExpiryDate, &p.SyncStatus, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (c *Client) GetProduct(ctx context.Context, id string) (*remote.Product, error) {
	var p remote.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, category, sku, unit, quantity, selling_price, cost_price, expiry_date, sync_status, synced_at, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.SKU, &p.Unit, &p.Quantity, &p.SellingPrice, &p.CostPrice, &p.ExpiryDate, &p.SyncStatus, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// FindProductByNameCategory matches on the product natural key. Matching is
// case-insensitive after trimming, the same normalization the push path uses.
func (c *Client) FindProductByNameCategory(ctx context.Context, name string, category string) (*remote.Product, error) {
	var p remote.Product
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, category, sku, unit, quantity, selling_price, cost_price, expiry_date, sync_status, synced_at, created_at, updated_at
		FROM products
		WHERE lower(trim(name)) = lower(trim($1)) AND lower(trim(category)) = lower(trim($2))
		ORDER BY created_at
		LIMIT 1
	`, name, category).Scan(&p.ID, &p.Name, &p.Category, &p.SKU, &p.Unit, &p.Quantity, &p.SellingPrice, &p.CostPrice, &p.ExpiryDate, &p.SyncStatus, &p.SyncedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (c *Client) InsertProduct(ctx context.Context, product remote.Product) (*remote.Product, error) {
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

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, sku, unit, quantity, selling_price, cost_price, expiry_date, sync_status, synced_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, product.ID, product.Name, product.Category, product.SKU, product.Unit, product.Quantity, product.SellingPrice, product.CostPrice, product.ExpiryDate, product.SyncStatus, product.SyncedAt, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, remote.ErrInvalidRow
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (c *Client) UpdateProduct(ctx context.Context, product remote.Product) (*remote.Product, error) {
	if product.ID == "" {
		return nil, remote.ErrInvalidRow
	}
	now := time.Now().UTC()
	product.UpdatedAt = now
	product.SyncedAt = &now
	if product.SyncStatus == "" {
		product.SyncStatus = remote.SyncStatusSynced
	}

	res, err := c.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, sku = $4, unit = $5, quantity = $6, selling_price = $7, cost_price = $8, expiry_date = $9, sync_status = $10, synced_at = $11, updated_at = $12
		WHERE id = $1
	`, product.ID, product.Name, product.Category, product.SKU, product.Unit, product.Quantity, product.SellingPrice, product.CostPrice, product.ExpiryDate, product.SyncStatus, product.SyncedAt, product.UpdatedAt)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, remote.ErrNotFound
	}

	updated := product
	return &updated, nil
}

func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) ListCustomers(ctx context.Context) ([]remote.Customer, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, phone, location, notes, sync_status, synced_at, created_at, updated_at
		FROM customers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	customers := make([]remote.Customer, 0, 64)
	for rows.Next() {
		var cu remote.Customer
		if err := rows.Scan(&cu.ID, &cu.Name, &cu.Phone, &cu.Location, &cu.Notes, &cu.SyncStatus, &cu.SyncedAt, &cu.CreatedAt, &cu.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, cu)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return customers, nil
}

func (c *Client) FindCustomerByPhone(ctx context.Context, phone string) (*remote.Customer, error) {
	var cu remote.Customer
	err := c.db.QueryRowContext(ctx, `
		SELECT id, name, phone, location, notes, sync_status, synced_at, created_at, updated_at
		FROM customers
		WHERE trim(phone) = trim($1)
		ORDER BY created_at
		LIMIT 1
	`, phone).Scan(&cu.ID, &cu.Name, &cu.Phone, &cu.Location, &cu.Notes, &cu.SyncStatus, &cu.SyncedAt, &cu.CreatedAt, &cu.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, remote.ErrNotFound
		}
		return nil, err
	}
	return &cu, nil
}

func (c *Client) InsertCustomer(ctx context.Context, customer remote.Customer) (*remote.Customer, error) {
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

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, phone, location, notes, sync_status, synced_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, customer.ID, customer.Name, customer.Phone, customer.Location, customer.Notes, customer.SyncStatus, customer.SyncedAt, customer.CreatedAt, customer.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, remote.ErrInvalidRow
		}
		return nil, err
	}

	created := customer
	return &created, nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM customers WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) ListSales(ctx context.Context) ([]remote.Sale, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, terminal_id, local_ref, customer_id, total, payment_method, sync_status, synced_at, ts
		FROM sales
		ORDER BY ts
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]remote.Sale, 0, 128)
	index := make(map[string]int)
	for rows.Next() {
		var s remote.Sale
		var customerID sql.NullString
		if err := rows.Scan(&s.ID, &s.TerminalID, &s.LocalRef, &customerID, &s.Total, &s.PaymentMethod, &s.SyncStatus, &s.SyncedAt, &s.Timestamp); err != nil {
			return nil, err
		}
		s.CustomerID = customerID.String
		index[s.ID] = len(sales)
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := c.db.QueryContext(ctx, `
		SELECT id, sale_id, product_id, quantity, unit_price
		FROM sale_items
		ORDER BY sale_id, id
	`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var item remote.SaleItem
		if err := itemRows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		if i, ok := index[item.SaleID]; ok {
			sales[i].Items = append(sales[i].Items, item)
		}
	}
	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}

func (c *Client) InsertSale(ctx context.Context, sale remote.Sale) (*remote.Sale, error) {
	if len(sale.Items) == 0 && sale.Total.IsZero() {
		return nil, remote.ErrInvalidRow
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

	var customerID any
	if sale.CustomerID != "" {
		customerID = sale.CustomerID
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO sales (id, terminal_id, local_ref, customer_id, total, payment_method, sync_status, synced_at, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, sale.ID, sale.TerminalID, sale.LocalRef, customerID, sale.Total, sale.PaymentMethod, sale.SyncStatus, sale.SyncedAt, sale.Timestamp)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, remote.ErrInvalidRow
		}
		return nil, err
	}

	created := sale
	return &created, nil
}

func (c *Client) InsertSaleItems(ctx context.Context, saleID string, items []remote.SaleItem) error {
	if saleID == "" || len(items) == 0 {
		return remote.ErrInvalidRow
	}
	for _, item := range items {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := c.db.ExecContext(ctx, `
			INSERT INTO sale_items (id, sale_id, product_id, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5)
		`, id, saleID, item.ProductID, item.Quantity, item.UnitPrice)
		if err != nil {
			return err
		}
	}
	return nil
}

// DeleteSale removes the header and its line items together so the audit
// pass never has to clean up after an explicit delete.
func (c *Client) DeleteSale(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, id); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) ListCreditTransactions(ctx context.Context) ([]remote.CreditTransaction, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, customer_id, sale_id, type, amount, note, sync_status, synced_at, tx_date
		FROM credit_transactions
		ORDER BY tx_date
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txns := make([]remote.CreditTransaction, 0, 64)
	for rows.Next() {
		var txn remote.CreditTransaction
		var saleID sql.NullString
		if err := rows.Scan(&txn.ID, &txn.CustomerID, &saleID, &txn.Type, &txn.Amount, &txn.Note, &txn.SyncStatus, &txn.SyncedAt, &txn.Date); err != nil {
			return nil, err
		}
		txn.SaleID = saleID.String
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return txns, nil
}

func (c *Client) InsertCreditTransaction(ctx context.Context, txn remote.CreditTransaction) (*remote.CreditTransaction, error) {
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

	var saleID any
	if txn.SaleID != "" {
		saleID = txn.SaleID
	}
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, customer_id, sale_id, type, amount, note, sync_status, synced_at, tx_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, txn.ID, txn.CustomerID, saleID, txn.Type, txn.Amount, txn.Note, txn.SyncStatus, txn.SyncedAt, txn.Date)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, remote.ErrInvalidRow
		}
		return nil, err
	}

	created := txn
	return &created, nil
}

func (c *Client) DeleteCreditTransaction(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM credit_transactions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return remote.ErrNotFound
	}
	return nil
}

func (c *Client) DeleteOrphanSaleItems(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM sale_items
		WHERE sale_id NOT IN (SELECT id FROM sales)
	`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// DeleteEmptySales removes sale headers that carry no line items. A push
// that inserted the header and then failed terminally on the items leaves
// one behind; the retried sale gets a fresh header, so the old one is dead
// weight that double-counts the sale.
func (c *Client) DeleteEmptySales(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM sales
		WHERE id NOT IN (SELECT sale_id FROM sale_items)
	`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (c *Client) DeleteOrphanCreditTransactions(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `
		DELETE FROM credit_transactions
		WHERE customer_id NOT IN (SELECT id FROM customers)
	`)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (c *Client) FindDuplicateProductKeys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT lower(trim(name)) || '|' || lower(trim(category))
		FROM products
		GROUP BY lower(trim(name)), lower(trim(category))
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (c *Client) FindDuplicateCustomerPhones(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT trim(phone)
		FROM customers
		GROUP BY trim(phone)
		HAVING count(*) > 1
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

func (c *Client) FindSaleItemsWithMissingProducts(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id
		FROM sale_items
		WHERE product_id NOT IN (SELECT id FROM products)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanStrings(rows)
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	out := make([]string, 0, 8)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
