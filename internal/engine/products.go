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

// PushOutcome aggregates a push batch: per-record failures are collected
// in Errors and never abort the batch.
type PushOutcome struct {
	Synced int
	Errors []string
}

type productSyncer struct {
	local   localstore.Store
	remote  remote.Client
	retrier *Retrier
	logger  *logrus.Logger
}

func (s *productSyncer) Push(ctx context.Context) (PushOutcome, error) {
	products, err := s.local.ListProducts(ctx)
	if err != nil {
		return PushOutcome{}, fmt.Errorf("list local products: %w", err)
	}

	var out PushOutcome
	for _, product := range products {
		if product.Synced {
			continue
		}
		if err := s.pushOne(ctx, product); err != nil {
			out.Errors = append(out.Errors, fmt.Sprintf("product %q: %v", product.Name, err))
			continue
		}
		out.Synced++
	}
	return out, nil
}

func (s *productSyncer) pushOne(ctx context.Context, product domain.Product) error {
	remoteID := product.RemoteID

	if remoteID == "" {
		err := s.retrier.Do(ctx, "push-product", func(ctx context.Context) error {
			existing, err := s.remote.FindProductByNameCategory(ctx, product.Name, product.Category)
			if err == nil {
				remoteID = existing.ID
				return nil
			}
			if !errors.Is(err, remote.ErrNotFound) {
				return err
			}
			inserted, err := s.remote.InsertProduct(ctx, toRemoteProduct(product))
			if err != nil {
				return err
			}
			remoteID = inserted.ID
			return nil
		})
		if err != nil {
			return err
		}
	}

	product.RemoteID = remoteID
	product.Synced = true
	if _, err := s.local.SaveProduct(ctx, product); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	return nil
}

// EnsureRemote guarantees every listed local product exists on the remote
// store, inserting the missing ones, and returns a local-key to remote-key
// map for reference translation.
func (s *productSyncer) EnsureRemote(ctx context.Context, localIDs []string) (map[string]string, error) {
	keys := make(map[string]string, len(localIDs))
	for _, localID := range localIDs {
		if _, done := keys[localID]; done {
			continue
		}
		product, err := s.local.GetProduct(ctx, localID)
		if err != nil {
			return nil, fmt.Errorf("product %s not found locally", localID)
		}
		if product.RemoteID != "" {
			keys[localID] = product.RemoteID
			continue
		}
		if err := s.pushOne(ctx, *product); err != nil {
			return nil, fmt.Errorf("product %q: %w", product.Name, err)
		}
		pushed, err := s.local.GetProduct(ctx, localID)
		if err != nil {
			return nil, fmt.Errorf("product %s not found locally", localID)
		}
		keys[localID] = pushed.RemoteID
	}
	return keys, nil
}

func (s *productSyncer) Pull(ctx context.Context) ([]domain.Product, []string) {
	var rows []remote.Product
	err := s.retrier.Do(ctx, "pull-products", func(ctx context.Context) error {
		var listErr error
		rows, listErr = s.remote.ListProducts(ctx)
		return listErr
	})
	if err != nil {
		return nil, []string{fmt.Sprintf("pull products: %v", err)}
	}

	products := make([]domain.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, fromRemoteProduct(row))
	}
	return products, nil
}

func toRemoteProduct(p domain.Product) remote.Product {
	return remote.Product{
		Name:         p.Name,
		Category:     p.Category,
		SKU:          p.SKU,
		Unit:         p.Unit,
		Quantity:     p.Quantity,
		SellingPrice: p.SellingPrice,
		CostPrice:    p.CostPrice,
		ExpiryDate:   p.ExpiryDate,
		SyncStatus:   remote.SyncStatusSynced,
		CreatedAt:    p.CreatedAt,
	}
}

func fromRemoteProduct(row remote.Product) domain.Product {
	return domain.Product{
		ID:           row.ID,
		RemoteID:     row.ID,
		Name:         row.Name,
		Category:     row.Category,
		SKU:          row.SKU,
		Unit:         row.Unit,
		Quantity:     row.Quantity,
		SellingPrice: row.SellingPrice,
		CostPrice:    row.CostPrice,
		ExpiryDate:   row.ExpiryDate,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		Synced:       true,
	}
}
