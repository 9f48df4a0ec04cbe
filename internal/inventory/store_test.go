package inventory

import (
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/inventory/domain"
)

func testKey(productID string) domain.StockKey {
	return domain.StockKey{ProductID: productID}
}

func TestStore_ReserveDecrementsFree(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 2)

	id, err := store.Reserve(testKey("p1"), 3, "order-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a reservation id")
	}

	available, free := store.CheckStock(testKey("p1"), 8)
	if available {
		t.Error("Expected 8 units to be unavailable after reserving 3 of 10")
	}
	if free != 7 {
		t.Errorf("Expected 7 free, got %d", free)
	}

	rec, err := store.Snapshot(testKey("p1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if rec.TotalQuantity != 10 || rec.ReservedQuantity != 3 {
		t.Errorf("Expected total=10 reserved=3, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}
}

func TestStore_ReserveInsufficientStock(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 5, 0)

	if _, err := store.Reserve(testKey("p1"), 6, "order-1"); !errors.Is(err, domain.ErrOutOfStock) {
		t.Errorf("Expected ErrOutOfStock, got: %v", err)
	}
	// 整单失败，不做部分预占
	if _, free := store.CheckStock(testKey("p1"), 1); free != 5 {
		t.Errorf("Expected 5 free after failed reserve, got %d", free)
	}
}

func TestStore_ReserveUnknownKey(t *testing.T) {
	store := NewStore(15 * time.Minute)

	if _, err := store.Reserve(testKey("nope"), 1, "order-1"); !errors.Is(err, domain.ErrUnknownStockKey) {
		t.Errorf("Expected ErrUnknownStockKey, got: %v", err)
	}
}

func TestStore_ReserveInactive(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 5, 0)
	if err := store.Deactivate(testKey("p1")); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if _, err := store.Reserve(testKey("p1"), 1, "order-1"); !errors.Is(err, domain.ErrStockInactive) {
		t.Errorf("Expected ErrStockInactive, got: %v", err)
	}
	if available, _ := store.CheckStock(testKey("p1"), 1); available {
		t.Error("Expected inactive stock to be unavailable")
	}
}

func TestStore_ReleaseIsIdempotent(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, err := store.Reserve(testKey("p1"), 4, "order-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if !store.Release(id) {
		t.Error("Expected first release to return true")
	}
	if store.Release(id) {
		t.Error("Expected second release to be a no-op returning false")
	}

	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 10 || rec.ReservedQuantity != 0 {
		t.Errorf("Expected total=10 reserved=0, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}
}

func TestStore_CommitRemovesStockPermanently(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, _ := store.Reserve(testKey("p1"), 4, "order-1")
	if err := store.Commit(id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 6 || rec.ReservedQuantity != 0 {
		t.Errorf("Expected total=6 reserved=0, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}

	// 已提交的预占不能再释放或再次提交
	if store.Release(id) {
		t.Error("Expected release after commit to return false")
	}
	if err := store.Commit(id); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("Expected ErrReservationNotFound, got: %v", err)
	}
}

func TestStore_CommitAfterRelease(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, _ := store.Reserve(testKey("p1"), 2, "order-1")
	store.Release(id)

	if err := store.Commit(id); !errors.Is(err, domain.ErrReservationNotFound) {
		t.Errorf("Expected ErrReservationNotFound, got: %v", err)
	}
}

func TestStore_Restore(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, _ := store.Reserve(testKey("p1"), 3, "order-1")
	store.Commit(id)

	if err := store.Restore(testKey("p1"), 3); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 10 {
		t.Errorf("Expected total back to 10, got %d", rec.TotalQuantity)
	}
}

func TestStore_ListExpired(t *testing.T) {
	store := NewStore(time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, _ := store.Reserve(testKey("p1"), 2, "order-1")

	if got := store.ListExpired(time.Now()); len(got) != 0 {
		t.Errorf("Expected no expired reservations yet, got %v", got)
	}
	expired := store.ListExpired(time.Now().Add(2 * time.Minute))
	if len(expired) != 1 || expired[0] != id {
		t.Errorf("Expected [%s], got %v", id, expired)
	}
}

// 并发预占不超卖：50 个 goroutine 各抢 1 件，库存 10 件，
// 恰好 10 个成功。
func TestStore_ConcurrentReserveNoOversell(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("hot"), 10, 0)

	const attempts = 50
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reserve(testKey("hot"), 1, "order")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, domain.ErrOutOfStock) {
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if succeeded != 10 {
		t.Errorf("Expected exactly 10 successful reservations, got %d", succeeded)
	}

	rec, _ := store.Snapshot(testKey("hot"))
	if rec.ReservedQuantity != 10 || rec.Free() != 0 {
		t.Errorf("Expected reserved=10 free=0, got reserved=%d free=%d", rec.ReservedQuantity, rec.Free())
	}
}

// 对同一预占并发 Release/Commit，恰好一个成功。
func TestStore_ConcurrentReleaseCommitSingleWinner(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	for i := 0; i < 20; i++ {
		id, _ := store.Reserve(testKey("p1"), 1, "order")

		var wg sync.WaitGroup
		var released bool
		var commitErr error
		wg.Add(2)
		go func() { defer wg.Done(); released = store.Release(id) }()
		go func() { defer wg.Done(); commitErr = store.Commit(id) }()
		wg.Wait()

		committed := commitErr == nil
		if released == committed {
			t.Fatalf("Expected exactly one winner, release=%v commit=%v", released, commitErr)
		}
		if committed {
			store.Restore(testKey("p1"), 1)
		}
	}

	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 10 || rec.ReservedQuantity != 0 {
		t.Errorf("Expected total=10 reserved=0, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}
}

// 重置总量不得低于未结清的预占量，否则之后的 Commit 会把总量扣成负数。
func TestStore_SetStockBelowReservedRejected(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	id, err := store.Reserve(testKey("p1"), 5, "order-1")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if err := store.SetStock(testKey("p1"), 2, 0); !errors.Is(err, domain.ErrResetBelowReserved) {
		t.Errorf("Expected ErrResetBelowReserved, got: %v", err)
	}
	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 10 || rec.ReservedQuantity != 5 {
		t.Errorf("Expected total=10 reserved=5 after rejected reset, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}

	// 正好等于预占量的重置允许，提交后总量归零而不是负数
	if err := store.SetStock(testKey("p1"), 5, 0); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := store.Commit(id); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	rec, _ = store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 0 || rec.ReservedQuantity != 0 {
		t.Errorf("Expected total=0 reserved=0, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}
}

func TestStore_AddStock(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.SetStock(testKey("p1"), 10, 0)

	if err := store.AddStock(testKey("p1"), 5); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	rec, _ := store.Snapshot(testKey("p1"))
	if rec.TotalQuantity != 15 {
		t.Errorf("Expected total 15, got %d", rec.TotalQuantity)
	}

	if err := store.AddStock(testKey("nope"), 5); !errors.Is(err, domain.ErrUnknownStockKey) {
		t.Errorf("Expected ErrUnknownStockKey, got: %v", err)
	}
}

func TestStore_LoadRecordZeroesReserved(t *testing.T) {
	store := NewStore(15 * time.Minute)
	store.LoadRecord(domain.StockRecord{
		Key:              testKey("p1"),
		TotalQuantity:    7,
		ReservedQuantity: 3,
		Active:           true,
	})

	rec, err := store.Snapshot(testKey("p1"))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if rec.ReservedQuantity != 0 || rec.TotalQuantity != 7 {
		t.Errorf("Expected total=7 reserved=0, got total=%d reserved=%d", rec.TotalQuantity, rec.ReservedQuantity)
	}
}
