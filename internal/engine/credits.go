package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/remote"
)

type creditSyncer struct {
	local     localstore.Store
	remote    remote.Client
	retrier   *Retrier
	customers *customerSyncer
	logger    *logrus.Logger
}

func (s *creditSyncer) Push(ctx context.Context) (PushOutcome, error) {
	txns, err := s.local.ListCreditTransactions(ctx)
	if err != nil {
		return PushOutcome{}, fmt.Errorf("list local credit transactions: %w", err)
	}

	var out PushOutcome
	for _, txn := range txns {
		if txn.Synced {
			continue
		}
		if err := s.pushOne(ctx, txn); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("credit transaction %s: %v", txn.ID, err))
			continue
		}
		out.Synced++
	}
	return out, nil
}

func (s *creditSyncer) pushOne(ctx context.Context, txn domain.CreditTransaction) error {
	customerKey, err := s.customers.EnsureRemote(ctx, txn.CustomerID)
	if err != nil {
		return err
	}

	// The sale phase runs first, so a referenced sale normally carries its
	// remote key already. If it does not, the sale's own push failed this
	// cycle; leave this record unsynced and let the next cycle pick it up.
	var remoteSaleID string
	if txn.SaleID != "" {
		sale, err := s.local.GetSale(ctx, txn.SaleID)
		if err != nil {
			return fmt.Errorf("sale %s not found locally", txn.SaleID)
		}
		if sale.RemoteID == "" {
			return fmt.Errorf("sale %s has not been pushed yet", txn.SaleID)
		}
		remoteSaleID = sale.RemoteID
	}

	var inserted *remote.CreditTransaction
	err = s.retrier.Do(ctx, "push-credit", func(ctx context.Context) error {
		var insertErr error
		inserted, insertErr = s.remote.InsertCreditTransaction(ctx, remote.CreditTransaction{
			CustomerID: customerKey,
			SaleID:     remoteSaleID,
			Type:       txn.Type,
			Amount:     txn.Amount,
			Note:       txn.Note,
			SyncStatus: remote.SyncStatusSynced,
			Date:       txn.Date,
		})
		return insertErr
	})
	if err != nil {
		return err
	}

	txn.RemoteID = inserted.ID
	txn.Synced = true
	if _, err := s.local.SaveCreditTransaction(ctx, txn); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

func (s *creditSyncer) Pull(ctx context.Context) ([]domain.CreditTransaction, []string) {
	var rows []remote.CreditTransaction
	err := s.retrier.Do(ctx, "pull-credits", func(ctx context.Context) error {
		var listErr error
		rows, listErr = s.remote.ListCreditTransactions(ctx)
		return listErr
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("pull credit transactions: %v", err)}
	}

	txns := make([]domain.CreditTransaction, 0, len(rows))
	for _, row := range rows {
		txns = append(txns, domain.CreditTransaction{
			ID:         row.ID,
			RemoteID:   row.ID,
			CustomerID: row.CustomerID,
			Type:       row.Type,
			Amount:     row.Amount,
			Note:       row.Note,
			SaleID:     row.SaleID,
			Date:       row.Date,
			Synced:     true,
		})
	}
	return txns, nil
}
