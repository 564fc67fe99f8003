package engine

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/remote"
)

// Explicit deletion is a dual operation: the local record goes first and
// always wins; the remote copy is removed best-effort. A remote failure is
// logged, never surfaced, so a flaky connection cannot block a delete.

func (e *Engine) DeleteProduct(ctx context.Context, localID string) error {
	product, err := e.local.GetProduct(ctx, localID)
	if err != nil {
		return err
	}
	if err := e.local.DeleteProduct(ctx, localID); err != nil {
		return err
	}
	e.deleteRemote(ctx, "delete-product", product.RemoteID, e.remote.DeleteProduct)
	return nil
}

func (e *Engine) DeleteCustomer(ctx context.Context, localID string) error {
	customer, err := e.local.GetCustomer(ctx, localID)
	if err != nil {
		return err
	}
	if err := e.local.DeleteCustomer(ctx, localID); err != nil {
		return err
	}
	e.deleteRemote(ctx, "delete-customer", customer.RemoteID, e.remote.DeleteCustomer)
	return nil
}

func (e *Engine) DeleteSale(ctx context.Context, localID string) error {
	sale, err := e.local.GetSale(ctx, localID)
	if err != nil {
		return err
	}
	if err := e.local.DeleteSale(ctx, localID); err != nil {
		return err
	}
	e.deleteRemote(ctx, "delete-sale", sale.RemoteID, e.remote.DeleteSale)
	return nil
}

func (e *Engine) DeleteCreditTransaction(ctx context.Context, localID string) error {
	txn, err := e.local.GetCreditTransaction(ctx, localID)
	if err != nil {
		return err
	}
	if err := e.local.DeleteCreditTransaction(ctx, localID); err != nil {
		return err
	}
	e.deleteRemote(ctx, "delete-credit", txn.RemoteID, e.remote.DeleteCreditTransaction)
	return nil
}

func (e *Engine) deleteRemote(ctx context.Context, operation string, remoteID string, fn func(context.Context, string) error) {
	if remoteID == "" {
		return
	}
	err := e.retrier.Do(ctx, operation, func(ctx context.Context) error {
		err := fn(ctx, remoteID)
		if errors.Is(err, remote.ErrNotFound) {
			// already gone, which is the goal
			return nil
		}
		return err
	})
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"operation": operation,
			"remote_id": remoteID,
		}).Warn("best-effort remote delete failed: ", err)
	}
}
