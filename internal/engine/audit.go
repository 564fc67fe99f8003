package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
	"dukapos/backend/internal/remote"
)

// totalEpsilon is the tolerated divergence between a sale's recorded total
// and the sum of its line totals, in currency units.
var totalEpsilon = decimal.NewFromFloat(0.01)

type auditor struct {
	local   localstore.Store
	remote  remote.Client
	retrier *Retrier
	logger  *logrus.Logger
	now     func() time.Time
}

// ValidateLocal repairs what can be repaired in place: negative quantities
// are clamped to zero, diverging sale totals are recomputed from line items,
// and missing timestamps are substituted with the current time. Every repair
// is recorded so the status surface can report it.
func (a *auditor) ValidateLocal(ctx context.Context) domain.AuditReport {
	report := domain.AuditReport{Issues: []string{}, Fixed: []string{}}

	products, err := a.local.ListProducts(ctx)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: list local products: %v", err))
	}
	for _, product := range products {
		if product.Quantity >= 0 {
			continue
		}
		was := product.Quantity
		product.Quantity = 0
		if _, err := a.local.SaveProduct(ctx, product); err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("product %q: failed to clamp negative quantity: %v", product.Name, err))
			continue
		}
		report.Fixed = append(report.Fixed, fmt.Sprintf("product %q: clamped negative quantity %d to 0", product.Name, was))
	}

	sales, err := a.local.ListSales(ctx)
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: list local sales: %v", err))
	}
	for _, sale := range sales {
		changed := false

		expected := sale.ItemsTotal()
		if sale.Total.Sub(expected).Abs().GreaterThan(totalEpsilon) {
			report.Fixed = append(report.Fixed, fmt.Sprintf("sale %s: recorded total %s does not match line totals %s, repaired", sale.ID, sale.Total, expected))
			sale.Total = expected
			changed = true
		}
		if sale.Timestamp.IsZero() {
			sale.Timestamp = a.now().UTC()
			report.Fixed = append(report.Fixed, fmt.Sprintf("sale %s: missing timestamp, substituted current time", sale.ID))
			changed = true
		}
		if !changed {
			continue
		}
		if _, err := a.local.SaveSale(ctx, sale); err != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("sale %s: failed to save repair: %v", sale.ID, err))
		}
	}

	return report
}

// AuditRemote cleans up what a partial composite push can leave behind, and
// reports the anomalies it will not touch. Duplicate products and sale items
// pointing at missing products need a human decision, so they are issues,
// not fixes.
func (a *auditor) AuditRemote(ctx context.Context) domain.AuditReport {
	report := domain.AuditReport{Issues: []string{}, Fixed: []string{}}

	var products []remote.Product
	err := a.retrier.Do(ctx, "audit-list-products", func(ctx context.Context) error {
		var listErr error
		products, listErr = a.remote.ListProducts(ctx)
		return listErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: list remote products: %v", err))
	}
	for _, product := range products {
		if product.Quantity >= 0 {
			continue
		}
		was := product.Quantity
		product.Quantity = 0
		updateErr := a.retrier.Do(ctx, "audit-fix-quantity", func(ctx context.Context) error {
			_, err := a.remote.UpdateProduct(ctx, product)
			return err
		})
		if updateErr != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("remote product %q: failed to zero negative quantity: %v", product.Name, updateErr))
			continue
		}
		report.Fixed = append(report.Fixed, fmt.Sprintf("remote product %q: zeroed negative quantity %d", product.Name, was))
	}

	var orphanItems int
	err = a.retrier.Do(ctx, "audit-orphan-items", func(ctx context.Context) error {
		var delErr error
		orphanItems, delErr = a.remote.DeleteOrphanSaleItems(ctx)
		return delErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: delete orphan sale items: %v", err))
	} else if orphanItems > 0 {
		report.Fixed = append(report.Fixed, fmt.Sprintf("deleted %d sale items referencing missing sales", orphanItems))
	}

	// A push that inserted a sale header and then failed on the line items
	// leaves an item-less header behind; the retried sale re-inserts under
	// a fresh key, so the stale header double-counts the sale.
	var emptySales int
	err = a.retrier.Do(ctx, "audit-empty-sales", func(ctx context.Context) error {
		var delErr error
		emptySales, delErr = a.remote.DeleteEmptySales(ctx)
		return delErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: delete sale headers without line items: %v", err))
	} else if emptySales > 0 {
		report.Fixed = append(report.Fixed, fmt.Sprintf("deleted %d sale headers without line items", emptySales))
	}

	var orphanCredits int
	err = a.retrier.Do(ctx, "audit-orphan-credits", func(ctx context.Context) error {
		var delErr error
		orphanCredits, delErr = a.remote.DeleteOrphanCreditTransactions(ctx)
		return delErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: delete orphan credit transactions: %v", err))
	} else if orphanCredits > 0 {
		report.Fixed = append(report.Fixed, fmt.Sprintf("deleted %d credit transactions referencing missing customers", orphanCredits))
	}

	var duplicateProducts []string
	err = a.retrier.Do(ctx, "audit-duplicate-products", func(ctx context.Context) error {
		var findErr error
		duplicateProducts, findErr = a.remote.FindDuplicateProductKeys(ctx)
		return findErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: find duplicate products: %v", err))
	}
	for _, key := range duplicateProducts {
		report.Issues = append(report.Issues, fmt.Sprintf("duplicate remote products for key %q, manual merge required", key))
	}

	var duplicatePhones []string
	err = a.retrier.Do(ctx, "audit-duplicate-customers", func(ctx context.Context) error {
		var findErr error
		duplicatePhones, findErr = a.remote.FindDuplicateCustomerPhones(ctx)
		return findErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: find duplicate customers: %v", err))
	}
	for _, phone := range duplicatePhones {
		report.Issues = append(report.Issues, fmt.Sprintf("duplicate remote customers for phone %q, manual merge required", phone))
	}

	var danglingItems []string
	err = a.retrier.Do(ctx, "audit-missing-products", func(ctx context.Context) error {
		var findErr error
		danglingItems, findErr = a.remote.FindSaleItemsWithMissingProducts(ctx)
		return findErr
	})
	if err != nil {
		report.Issues = append(report.Issues, fmt.Sprintf("audit: find sale items with missing products: %v", err))
	}
	for _, id := range danglingItems {
		report.Issues = append(report.Issues, fmt.Sprintf("sale item %s references a missing product, manual intervention required", id))
	}

	return report
}
