package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	localmem "dukapos/backend/internal/localstore/memory"
	remotemem "dukapos/backend/internal/remote/memory"
)

func newProductSyncer(t *testing.T) (*productSyncer, *localmem.Store, *remotemem.Client) {
	t.Helper()
	local := localmem.New()
	remoteClient := remotemem.New()
	retrier, _ := newTestRetrier(fastRetryConfig())
	return &productSyncer{
		local:   local,
		remote:  remoteClient,
		retrier: retrier,
		logger:  testLogger(),
	}, local, remoteClient
}

func TestProductPushIsolatesTerminalFailures(t *testing.T) {
	syncer, local, remoteClient := newProductSyncer(t)
	ctx := context.Background()

	now := time.Now().UTC()
	// the middle record has no name, which the remote store rejects as a
	// terminal constraint error
	err := local.ReplaceProducts(ctx, []domain.Product{
		{ID: "p1", Name: "First", Category: "grocery", Quantity: 1, SellingPrice: decimal.NewFromInt(10), CreatedAt: now, UpdatedAt: now},
		{ID: "p2", Name: "", Category: "grocery", Quantity: 1, SellingPrice: decimal.NewFromInt(10), CreatedAt: now, UpdatedAt: now},
		{ID: "p3", Name: "Third", Category: "grocery", Quantity: 1, SellingPrice: decimal.NewFromInt(10), CreatedAt: now, UpdatedAt: now},
	})
	if err != nil {
		t.Fatalf("seed products: %v", err)
	}

	out, err := syncer.Push(ctx)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if out.Synced != 2 {
		t.Fatalf("expected 2 synced, got %d", out.Synced)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", out.Errors)
	}

	rows, _ := remoteClient.ListProducts(ctx)
	if len(rows) != 2 {
		t.Fatalf("expected 2 remote products, got %d", len(rows))
	}
}

func TestProductPushSkipsSyncedRecords(t *testing.T) {
	syncer, local, remoteClient := newProductSyncer(t)
	ctx := context.Background()

	if _, err := local.SaveProduct(ctx, domain.Product{
		Name:         "Already There",
		Category:     "grocery",
		Quantity:     1,
		SellingPrice: decimal.NewFromInt(10),
		RemoteID:     "remote-1",
		Synced:       true,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	out, err := syncer.Push(ctx)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if out.Synced != 0 || len(out.Errors) != 0 {
		t.Fatalf("synced record must be skipped, got %+v", out)
	}
	rows, _ := remoteClient.ListProducts(ctx)
	if len(rows) != 0 {
		t.Fatalf("no remote writes expected, got %d", len(rows))
	}
}

func TestEnsureRemoteInsertsMissingAndMapsKeys(t *testing.T) {
	syncer, local, remoteClient := newProductSyncer(t)
	ctx := context.Background()

	saved, err := local.SaveProduct(ctx, domain.Product{
		Name:         "New Product",
		Category:     "grocery",
		Quantity:     6,
		SellingPrice: decimal.NewFromInt(40),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	keys, err := syncer.EnsureRemote(ctx, []string{saved.ID, saved.ID})
	if err != nil {
		t.Fatalf("ensure remote: %v", err)
	}
	remoteID, ok := keys[saved.ID]
	if !ok || remoteID == "" {
		t.Fatalf("expected a remote key mapping, got %v", keys)
	}

	rows, _ := remoteClient.ListProducts(ctx)
	if len(rows) != 1 || rows[0].ID != remoteID {
		t.Fatalf("expected one remote product with id %s", remoteID)
	}
}

func TestEnsureRemoteFailsForUnknownLocalKey(t *testing.T) {
	syncer, _, _ := newProductSyncer(t)

	_, err := syncer.EnsureRemote(context.Background(), []string{"missing-id"})
	if err == nil || !strings.Contains(err.Error(), "not found locally") {
		t.Fatalf("expected not-found-locally error, got %v", err)
	}
	if !IsTerminal(err) {
		t.Fatal("a missing local reference is terminal, not retryable")
	}
}
