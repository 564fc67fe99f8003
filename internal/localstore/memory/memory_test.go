package memory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"dukapos/backend/internal/domain"
	"dukapos/backend/internal/localstore"
)

func TestSaveProductGeneratesLocalKey(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.SaveProduct(ctx, domain.Product{
		Name:         "  Rice 1kg  ",
		Category:     "grocery",
		SellingPrice: decimal.NewFromInt(160),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(saved.ID, "prod-") {
		t.Fatalf("expected a prod-prefixed local key, got %q", saved.ID)
	}
	if saved.Name != "Rice 1kg" {
		t.Fatalf("expected trimmed name, got %q", saved.Name)
	}
	if saved.CreatedAt.IsZero() || saved.UpdatedAt.IsZero() {
		t.Fatal("timestamps must be stamped on save")
	}
}

func TestSaveProductRejectsBlankNameOrCategory(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, p := range []domain.Product{
		{Name: "   ", Category: "grocery"},
		{Name: "Rice 1kg", Category: ""},
	} {
		if _, err := s.SaveProduct(ctx, p); !errors.Is(err, localstore.ErrInvalidRecord) {
			t.Fatalf("product %+v: expected ErrInvalidRecord, got %v", p, err)
		}
	}
}

func TestGetProductNotFound(t *testing.T) {
	s := New()
	if _, err := s.GetProduct(context.Background(), "missing"); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListProductsReturnsSortedCopies(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) == 0 {
		t.Fatal("seeded store must not be empty")
	}
	for i := 1; i < len(products); i++ {
		prev, cur := products[i-1], products[i]
		if prev.Category > cur.Category || (prev.Category == cur.Category && prev.Name > cur.Name) {
			t.Fatalf("products not sorted: %q/%q before %q/%q", prev.Category, prev.Name, cur.Category, cur.Name)
		}
	}

	// mutating the returned slice must not leak into the store
	products[0].Quantity = -999
	fresh, _ := s.GetProduct(ctx, products[0].ID)
	if fresh.Quantity == -999 {
		t.Fatal("list must return copies, not live references")
	}
}

func TestReplaceProductsRequiresKeys(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.ReplaceProducts(ctx, []domain.Product{{Name: "No Key", Category: "grocery"}})
	if !errors.Is(err, localstore.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for a keyless record, got %v", err)
	}
}

func TestReplaceProductsIsWholesale(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()

	next := []domain.Product{{ID: "prod-remote-1", Name: "Imported", Category: "grocery", SellingPrice: decimal.NewFromInt(10)}}
	if err := s.ReplaceProducts(ctx, next); err != nil {
		t.Fatalf("replace: %v", err)
	}

	products, _ := s.ListProducts(ctx)
	if len(products) != 1 || products[0].ID != "prod-remote-1" {
		t.Fatalf("expected wholesale replacement, got %d products", len(products))
	}
}

func TestSaveCustomerTrimsPhone(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.SaveCustomer(ctx, domain.Customer{Name: "Amina Hassan", Phone: " 0712000001 "})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Phone != "0712000001" {
		t.Fatalf("expected trimmed phone, got %q", saved.Phone)
	}
}

func TestSaveSaleRequiresItems(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.SaveSale(ctx, domain.Sale{PaymentMethod: domain.PaymentCash}); !errors.Is(err, localstore.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord for an empty sale, got %v", err)
	}
}

func TestSaveSaleStampsTimestamp(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.SaveSale(ctx, domain.Sale{
		Items:         []domain.SaleItem{{ProductID: "p1", Quantity: 1, UnitPrice: decimal.NewFromInt(10)}},
		Total:         decimal.NewFromInt(10),
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if saved.Timestamp.IsZero() {
		t.Fatal("missing timestamps must be filled at save time")
	}
}

func TestSaveCreditTransactionRejectsNonPositiveAmount(t *testing.T) {
	s := New()
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := s.SaveCreditTransaction(ctx, domain.CreditTransaction{
			CustomerID: "cust-1",
			Type:       domain.CreditTypeSaleDebit,
			Amount:     amount,
		})
		if !errors.Is(err, localstore.ErrInvalidRecord) {
			t.Fatalf("amount %s: expected ErrInvalidRecord, got %v", amount, err)
		}
	}
}

func TestDeleteCreditTransaction(t *testing.T) {
	s := New()
	ctx := context.Background()

	saved, err := s.SaveCreditTransaction(ctx, domain.CreditTransaction{
		CustomerID: "cust-1",
		Type:       domain.CreditTypePaymentCredit,
		Amount:     decimal.NewFromInt(50),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.DeleteCreditTransaction(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCreditTransaction(ctx, saved.ID); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestGetUserHidesInactiveAccounts(t *testing.T) {
	s := New()
	ctx := context.Background()

	admin, err := s.GetUser(ctx, "admin")
	if err != nil {
		t.Fatalf("expected seeded admin account: %v", err)
	}
	if admin.Role != "admin" || admin.Password == "" {
		t.Fatalf("unexpected admin account: %+v", admin)
	}

	s.mu.Lock()
	u := s.users["admin"]
	u.Active = false
	s.users["admin"] = u
	s.mu.Unlock()

	if _, err := s.GetUser(ctx, "admin"); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("inactive accounts must be hidden, got %v", err)
	}

	if _, err := s.GetUser(ctx, "nobody"); !errors.Is(err, localstore.ErrNotFound) {
		t.Fatalf("unknown accounts must be hidden, got %v", err)
	}
}

func TestOnChangeNotifiesMutations(t *testing.T) {
	s := New()
	ctx := context.Background()

	var events []string
	unsubscribe := s.OnChange(func(entity string) {
		events = append(events, entity)
	})

	saved, err := s.SaveProduct(ctx, domain.Product{
		Name:         "Rice 1kg",
		Category:     "grocery",
		SellingPrice: decimal.NewFromInt(160),
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.SaveCustomer(ctx, domain.Customer{Name: "Amina", Phone: "0712000001"}); err != nil {
		t.Fatalf("save customer: %v", err)
	}
	if err := s.DeleteProduct(ctx, saved.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	want := []string{"products", "customers", "products"}
	if len(events) != len(want) {
		t.Fatalf("expected %d change events, got %v", len(want), events)
	}
	for i, entity := range want {
		if events[i] != entity {
			t.Fatalf("event %d: expected %q, got %q", i, entity, events[i])
		}
	}

	unsubscribe()
	if _, err := s.SaveProduct(ctx, domain.Product{
		Name:         "Sugar 1kg",
		Category:     "grocery",
		SellingPrice: decimal.NewFromInt(150),
	}); err != nil {
		t.Fatalf("save after unsubscribe: %v", err)
	}
	if len(events) != len(want) {
		t.Fatalf("unsubscribed observer must not receive events, got %v", events)
	}
}

func TestOnChangeFailedWriteDoesNotNotify(t *testing.T) {
	s := New()

	fired := false
	defer s.OnChange(func(string) { fired = true })()

	if _, err := s.SaveProduct(context.Background(), domain.Product{Name: "  ", Category: "grocery"}); !errors.Is(err, localstore.ErrInvalidRecord) {
		t.Fatalf("expected ErrInvalidRecord, got %v", err)
	}
	if fired {
		t.Fatal("a rejected write must not fire a change event")
	}
}
