package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/remote"
)

var errCustomerRequired = errors.New("customer required for credit sale")

type saleSyncer struct {
	local      localstore.Store
	remote     remote.Client
	retrier    *Retrier
	products   *productSyncer
	customers  *customerSyncer
	logger     *logrus.Logger
	terminalID string
}

func (s *saleSyncer) Push(ctx context.Context) (PushOutcome, error) {
	sales, err := s.local.ListSales(ctx)
	if err != nil {
		return PushOutcome{}, fmt.Errorf("list local sales: %w", err)
	}

	var out PushOutcome
	for _, sale := range sales {
		if sale.Synced {
			continue
		}
		if err := s.pushOne(ctx, sale); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("sale %s: %v", sale.ID, err))
			continue
		}
		out.Synced++
	}
	return out, nil
}

// pushOne is the composite sale push. The header, line items and any linked
// credit transaction are separate remote writes with no surrounding
// transaction; a failure partway through leaves the sale unsynced so the
// whole thing is retried next cycle, and the remote audit pass removes any
// orphans the partial write left behind.
func (s *saleSyncer) pushOne(ctx context.Context, sale domain.Sale) error {
	if sale.PaymentMethod == domain.PaymentCredit && sale.CustomerID == "" {
		return errCustomerRequired
	}

	productIDs := make([]string, 0, len(sale.Items))
	for _, item := range sale.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	productKeys, err := s.products.EnsureRemote(ctx, productIDs)
	if err != nil {
		return err
	}

	if err := s.validateRemoteStock(ctx, sale, productKeys); err != nil {
		return err
	}

	var customerKey string
	if sale.CustomerID != "" {
		customerKey, err = s.customers.EnsureRemote(ctx, sale.CustomerID)
		if err != nil {
			return err
		}
	}

	var inserted *remote.Sale
	err = s.retrier.Do(ctx, "push-sale", func(ctx context.Context) error {
		var insertErr error
		inserted, insertErr = s.remote.InsertSale(ctx, remote.Sale{
			TerminalID:    s.terminalID,
			LocalRef:      sale.ID,
			CustomerID:    customerKey,
			Total:         sale.Total,
			PaymentMethod: sale.PaymentMethod,
			SyncStatus:    remote.SyncStatusSynced,
			Timestamp:     sale.Timestamp,
		})
		return insertErr
	})
	if err != nil {
		return err
	}

	items := make([]remote.SaleItem, 0, len(sale.Items))
	for _, item := range sale.Items {
		items = append(items, remote.SaleItem{
			SaleID:    inserted.ID,
			ProductID: productKeys[item.ProductID],
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	err = s.retrier.Do(ctx, "push-sale-items", func(ctx context.Context) error {
		return s.remote.InsertSaleItems(ctx, inserted.ID, items)
	})
	if err != nil {
		return fmt.Errorf("line items: %w", err)
	}

	if sale.PaymentMethod == domain.PaymentCredit {
		if err := s.pushLinkedCredit(ctx, sale, inserted.ID, customerKey); err != nil {
			return fmt.Errorf("credit transaction: %w", err)
		}
	}

	sale.RemoteID = inserted.ID
	sale.Synced = true
	if _, err := s.local.SaveSale(ctx, sale); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// validateRemoteStock rejects the whole sale when any line asks for more
// than the remote store holds. No partial sales.
func (s *saleSyncer) validateRemoteStock(ctx context.Context, sale domain.Sale, productKeys map[string]string) error {
	for _, item := range sale.Items {
		var stocked *remote.Product
		err := s.retrier.Do(ctx, "check-stock", func(ctx context.Context) error {
			var getErr error
			stocked, getErr = s.remote.GetProduct(ctx, productKeys[item.ProductID])
			return getErr
		})
		if err != nil {
			return fmt.Errorf("stock check for product %s: %w", item.ProductID, err)
		}
		if stocked.Quantity < item.Quantity {
			return fmt.Errorf("invalid input: requested %d of %q but remote stock is %d", item.Quantity, stocked.Name, stocked.Quantity)
		}
	}
	return nil
}

// pushLinkedCredit inserts the sale-debit for a credit sale and marks the
// matching local credit record synced so the credit phase does not push it
// a second time.
func (s *saleSyncer) pushLinkedCredit(ctx context.Context, sale domain.Sale, remoteSaleID string, customerKey string) error {
	var inserted *remote.CreditTransaction
	err := s.retrier.Do(ctx, "push-sale-credit", func(ctx context.Context) error {
		var insertErr error
		inserted, insertErr = s.remote.InsertCreditTransaction(ctx, remote.CreditTransaction{
			CustomerID: customerKey,
			SaleID:     remoteSaleID,
			Type:       domain.CreditTypeSaleDebit,
			Amount:     sale.Total,
			Note:       "credit sale",
			SyncStatus: remote.SyncStatusSynced,
			Date:       sale.Timestamp,
		})
		return insertErr
	})
	if err != nil {
		return err
	}

	txns, err := s.local.ListCreditTransactions(ctx)
	if err != nil {
		return nil
	}
	for _, txn := range txns {
		if txn.Synced || txn.SaleID != sale.ID || txn.Type != domain.CreditTypeSaleDebit {
			continue
		}
		txn.RemoteID = inserted.ID
		txn.Synced = true
		if _, err := s.local.SaveCreditTransaction(ctx, txn); err != nil {
			s.logger.Warn("failed to mark linked credit transaction synced: ", err)
		}
		break
	}
	return nil
}

func (s *saleSyncer) Pull(ctx context.Context) ([]domain.Sale, []string) {
	var rows []remote.Sale
	err := s.retrier.Do(ctx, "pull-sales", func(ctx context.Context) error {
		var listErr error
		rows, listErr = s.remote.ListSales(ctx)
		return listErr
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("pull sales: %v", err)}
	}

	sales := make([]domain.Sale, 0, len(rows))
	for _, row := range rows {
		items := make([]domain.SaleItem, 0, len(row.Items))
		for _, item := range row.Items {
			items = append(items, domain.SaleItem{
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: item.UnitPrice,
			})
		}
		sales = append(sales, domain.Sale{
			ID:            row.ID,
			RemoteID:      row.ID,
			Items:         items,
			Total:         row.Total,
			PaymentMethod: row.PaymentMethod,
			CustomerID:    row.CustomerID,
			Timestamp:     row.Timestamp,
			Synced:        true,
		})
	}
	return sales, nil
}
