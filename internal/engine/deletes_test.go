package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
)

func TestDeleteProductRemovesBothCopies(t *testing.T) {
	eng, local, remoteClient := newTestEngine(t)
	ctx := context.Background()

	seedProduct(t, local, "Rice 1kg", 10, 85)
	if result := eng.SyncAll(ctx); !result.Success {
		t.Fatalf("sync: %+v", result)
	}
	products, _ := local.ListProducts(ctx)
	if len(products) != 1 {
		t.Fatalf("expected one product, got %d", len(products))
	}

	if err := eng.DeleteProduct(ctx, products[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := local.GetProduct(ctx, products[0].ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("local copy survived: %v", err)
	}
	remoteRows, _ := remoteClient.ListProducts(ctx)
	if len(remoteRows) != 0 {
		t.Fatalf("remote copy survived, got %d rows", len(remoteRows))
	}
}

func TestDeleteSucceedsLocallyWhenRemoteIsOffline(t *testing.T) {
	eng, local, remoteClient := newTestEngine(t)
	ctx := context.Background()

	seedProduct(t, local, "Sugar 1kg", 5, 150)
	if result := eng.SyncAll(ctx); !result.Success {
		t.Fatalf("sync: %+v", result)
	}
	products, _ := local.ListProducts(ctx)

	remoteClient.SetOnline(false)
	if err := eng.DeleteProduct(ctx, products[0].ID); err != nil {
		t.Fatalf("local deletion must win over remote failure: %v", err)
	}
	if _, err := local.GetProduct(ctx, products[0].ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatal("local copy should be gone")
	}

	remoteClient.SetOnline(true)
	remoteRows, _ := remoteClient.ListProducts(ctx)
	if len(remoteRows) != 1 {
		t.Fatalf("remote copy should survive an offline delete, got %d rows", len(remoteRows))
	}
}

func TestDeleteNeverSyncedRecordSkipsRemote(t *testing.T) {
	eng, local, remoteClient := newTestEngine(t)
	ctx := context.Background()

	saved, err := local.SaveCustomer(ctx, domain.Customer{Name: "Amina Hassan", Phone: "0712000001"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	remoteClient.SetOnline(false)

	// never pushed, so no remote call should even be attempted
	if err := eng.DeleteCustomer(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := local.GetCustomer(ctx, saved.ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatal("local copy should be gone")
	}
}

func TestDeleteUnknownRecord(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if err := eng.DeleteProduct(context.Background(), "missing"); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteSaleRemovesRemoteLineItems(t *testing.T) {
	eng, local, remoteClient := newTestEngine(t)
	ctx := context.Background()

	product := seedProduct(t, local, "Bread 400g", 20, 65)
	sale, err := local.SaveSale(ctx, domain.Sale{
		Items:         []domain.SaleItem{{ProductID: product.ID, Quantity: 2, UnitPrice: decimal.NewFromInt(65)}},
		Total:         decimal.NewFromInt(130),
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if result := eng.SyncAll(ctx); !result.Success {
		t.Fatalf("sync: %+v", result)
	}

	if err := eng.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	remoteSales, _ := remoteClient.ListSales(ctx)
	if len(remoteSales) != 0 {
		t.Fatalf("remote sale survived, got %d", len(remoteSales))
	}
}
