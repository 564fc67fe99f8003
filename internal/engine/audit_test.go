package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	localmem "dukapos/backend/internal/localstore/memory"
	"dukapos/backend/internal/remote"
	remotemem "dukapos/backend/internal/remote/memory"
)

func newAuditor(t *testing.T) (*auditor, *localmem.Store, *remotemem.Client) {
	t.Helper()
	local := localmem.New()
	remoteClient := remotemem.New()
	retrier, _ := newTestRetrier(fastRetryConfig())
	return &auditor{
		local:   local,
		remote:  remoteClient,
		retrier: retrier,
		logger:  testLogger(),
		now:     time.Now,
	}, local, remoteClient
}

func TestValidateLocalClampsNegativeQuantity(t *testing.T) {
	a, local, _ := newAuditor(t)
	ctx := context.Background()

	now := time.Now().UTC()
	if err := local.ReplaceProducts(ctx, []domain.Product{
		{ID: "p1", Name: "Broken", Category: "grocery", Quantity: -3, SellingPrice: decimal.NewFromInt(10), CreatedAt: now, UpdatedAt: now},
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := a.ValidateLocal(ctx)
	if len(report.Fixed) != 1 || !strings.Contains(report.Fixed[0], "clamped negative quantity -3") {
		t.Fatalf("expected a recorded clamp fix, got %v", report.Fixed)
	}

	fixed, err := local.GetProduct(ctx, "p1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if fixed.Quantity != 0 {
		t.Fatalf("expected quantity 0, got %d", fixed.Quantity)
	}
}

func TestValidateLocalRepairsDivergentSaleTotal(t *testing.T) {
	a, local, _ := newAuditor(t)
	ctx := context.Background()

	price := decimal.NewFromInt(50)
	sale, err := local.SaveSale(ctx, domain.Sale{
		Items:         []domain.SaleItem{{ProductID: "p1", Quantity: 2, UnitPrice: price}},
		Total:         decimal.NewFromInt(90),
		PaymentMethod: domain.PaymentCash,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := a.ValidateLocal(ctx)
	if len(report.Fixed) != 1 {
		t.Fatalf("expected one fix, got %v", report.Fixed)
	}

	repaired, _ := local.GetSale(ctx, sale.ID)
	if !repaired.Total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected repaired total 100, got %s", repaired.Total)
	}
}

func TestValidateLocalToleratesTinyTotalDrift(t *testing.T) {
	a, local, _ := newAuditor(t)
	ctx := context.Background()

	price := decimal.NewFromFloat(33.335)
	if _, err := local.SaveSale(ctx, domain.Sale{
		Items:         []domain.SaleItem{{ProductID: "p1", Quantity: 3, UnitPrice: price}},
		Total:         decimal.NewFromFloat(100.01),
		PaymentMethod: domain.PaymentCash,
		Timestamp:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := a.ValidateLocal(ctx)
	if len(report.Fixed) != 0 {
		t.Fatalf("drift within epsilon must not be repaired, got %v", report.Fixed)
	}
}

func TestValidateLocalRepairsMissingTimestamp(t *testing.T) {
	a, local, _ := newAuditor(t)
	ctx := context.Background()

	price := decimal.NewFromInt(10)
	if err := local.ReplaceSales(ctx, []domain.Sale{{
		ID:            "s1",
		Items:         []domain.SaleItem{{ProductID: "p1", Quantity: 1, UnitPrice: price}},
		Total:         price,
		PaymentMethod: domain.PaymentCash,
	}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report := a.ValidateLocal(ctx)
	if len(report.Fixed) != 1 || !strings.Contains(report.Fixed[0], "missing timestamp") {
		t.Fatalf("expected timestamp fix, got %v", report.Fixed)
	}

	repaired, _ := local.GetSale(ctx, "s1")
	if repaired.Timestamp.IsZero() {
		t.Fatal("timestamp should have been substituted")
	}
}

func TestAuditRemoteCleansOrphansAndReportsDuplicates(t *testing.T) {
	a, _, remoteClient := newAuditor(t)
	ctx := context.Background()

	// negative remote quantity
	inserted, err := remoteClient.InsertProduct(ctx, remote.Product{
		Name:         "Broken",
		Category:     "grocery",
		Quantity:     5,
		SellingPrice: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	inserted.Quantity = -4
	if _, err := remoteClient.UpdateProduct(ctx, *inserted); err != nil {
		t.Fatalf("corrupt product: %v", err)
	}

	// duplicate natural key
	if _, err := remoteClient.InsertProduct(ctx, remote.Product{
		Name:         " broken ",
		Category:     "grocery",
		Quantity:     1,
		SellingPrice: decimal.NewFromInt(10),
	}); err != nil {
		t.Fatalf("seed duplicate: %v", err)
	}

	// sale items without a sale header
	remoteClient.OrphanSaleItems("ghost-sale", []remote.SaleItem{
		{ID: "item-1", SaleID: "ghost-sale", ProductID: inserted.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
	})

	// credit transaction referencing a missing customer
	if _, err := remoteClient.InsertCreditTransaction(ctx, remote.CreditTransaction{
		CustomerID: "missing-customer",
		Type:       domain.CreditTypeSaleDebit,
		Amount:     decimal.NewFromInt(100),
	}); err != nil {
		t.Fatalf("seed credit: %v", err)
	}

	report := a.AuditRemote(ctx)

	var zeroed, itemsDeleted, creditsDeleted, dupeReported bool
	for _, fix := range report.Fixed {
		if strings.Contains(fix, "zeroed negative quantity") {
			zeroed = true
		}
		if strings.Contains(fix, "sale items referencing missing sales") {
			itemsDeleted = true
		}
		if strings.Contains(fix, "credit transactions referencing missing customers") {
			creditsDeleted = true
		}
	}
	for _, issue := range report.Issues {
		if strings.Contains(issue, "duplicate remote products") {
			dupeReported = true
		}
	}

	if !zeroed || !itemsDeleted || !creditsDeleted {
		t.Fatalf("missing expected fixes: %v", report.Fixed)
	}
	if !dupeReported {
		t.Fatalf("duplicates must be reported as issues, got %v", report.Issues)
	}

	products, _ := remoteClient.ListProducts(ctx)
	for _, p := range products {
		if p.Quantity < 0 {
			t.Fatalf("negative quantity survived the audit: %+v", p)
		}
	}
	txns, _ := remoteClient.ListCreditTransactions(ctx)
	if len(txns) != 0 {
		t.Fatalf("orphan credit transaction survived, got %d", len(txns))
	}
}

func TestAuditRemoteRemovesSaleHeadersWithoutItems(t *testing.T) {
	a, _, remoteClient := newAuditor(t)
	ctx := context.Background()

	kept, err := remoteClient.InsertSale(ctx, remote.Sale{
		Total:         decimal.NewFromInt(100),
		PaymentMethod: "cash",
	})
	if err != nil {
		t.Fatalf("seed sale: %v", err)
	}
	if err := remoteClient.InsertSaleItems(ctx, kept.ID, []remote.SaleItem{
		{SaleID: kept.ID, ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
	}); err != nil {
		t.Fatalf("seed sale items: %v", err)
	}
	if _, err := remoteClient.InsertSale(ctx, remote.Sale{
		Total:         decimal.NewFromInt(55),
		PaymentMethod: "cash",
	}); err != nil {
		t.Fatalf("seed stale header: %v", err)
	}

	report := a.AuditRemote(ctx)

	found := false
	for _, fix := range report.Fixed {
		if strings.Contains(fix, "deleted 1 sale headers without line items") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the stale header cleanup in fixes, got %v", report.Fixed)
	}

	sales, _ := remoteClient.ListSales(ctx)
	if len(sales) != 1 || sales[0].ID != kept.ID {
		t.Fatalf("only the sale with line items should survive, got %+v", sales)
	}
}
