package order

import (
	"errors"
	"testing"

	"storefront/internal/order/domain"
)

func storeDraft(customerID string) domain.Draft {
	return domain.Draft{
		CustomerID: customerID,
		Items:      []domain.Item{{ProductID: "p1", Quantity: 1, UnitPrice: 1000}},
		Pricing:    domain.Pricing{Subtotal: 1000, Total: 1000},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()

	o, err := store.Create(storeDraft("cust-1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got, err := store.Get(o.ID)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got.ID != o.ID || got.Status != domain.StatusPending {
		t.Errorf("Expected pending order %s, got %s/%s", o.ID, got.ID, got.Status)
	}

	byNumber, err := store.GetByOrderNumber(o.OrderNumber)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if byNumber.ID != o.ID {
		t.Errorf("Expected lookup by number to find %s, got %s", o.ID, byNumber.ID)
	}
}

func TestStore_GetUnknown(t *testing.T) {
	store := NewStore()
	if _, err := store.Get("nope"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got: %v", err)
	}
	if _, err := store.GetByOrderNumber("ORD-NOPE"); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("Expected ErrOrderNotFound, got: %v", err)
	}
}

func TestStore_ApplyMutatesAtomically(t *testing.T) {
	store := NewStore()
	o, _ := store.Create(storeDraft("cust-1"))

	updated, err := store.Apply(o.ID, func(ord *domain.Order) error {
		return ord.MarkPaid("txn-1")
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if updated.Status != domain.StatusPaid {
		t.Errorf("Expected PAID, got %s", updated.Status)
	}

	// 失败的 mutate 不留下任何变更
	_, err = store.Apply(o.ID, func(ord *domain.Order) error {
		ord.CancelReason = "half-applied"
		return ord.MarkDelivered()
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Expected ErrInvalidTransition, got: %v", err)
	}
	got, _ := store.Get(o.ID)
	if got.CancelReason != "" {
		t.Error("Expected failed mutation to be discarded")
	}
	if got.Status != domain.StatusPaid {
		t.Errorf("Expected status to stay PAID, got %s", got.Status)
	}
}

func TestStore_ReadsReturnCopies(t *testing.T) {
	store := NewStore()
	o, _ := store.Create(storeDraft("cust-1"))

	got, _ := store.Get(o.ID)
	got.Items[0].Quantity = 99

	fresh, _ := store.Get(o.ID)
	if fresh.Items[0].Quantity != 1 {
		t.Error("Expected mutation of returned copy to not leak into store")
	}
}

func TestStore_ListByCustomer(t *testing.T) {
	store := NewStore()
	first, _ := store.Create(storeDraft("cust-1"))
	second, _ := store.Create(storeDraft("cust-1"))
	store.Create(storeDraft("cust-2"))

	list := store.ListByCustomer("cust-1")
	if len(list) != 2 {
		t.Fatalf("Expected 2 orders, got %d", len(list))
	}
	// 按创建先后排列
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Error("Expected orders in creation order")
	}

	if got := store.ListByCustomer("nobody"); len(got) != 0 {
		t.Errorf("Expected empty list, got %d", len(got))
	}
}
