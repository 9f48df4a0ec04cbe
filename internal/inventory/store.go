package inventory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"storefront/internal/inventory/domain"
	"storefront/internal/pkg/metrics"
)

// Store 是库存的唯一事实来源：只有它可以改动库存计数。
//
// 并发模型：每个 StockKey 由自己的互斥锁串行化 Reserve/Release/Commit/Restore，
// 不相关的 SKU 完全并行。reservationID -> StockKey 的索引由独立的读写锁保护，
// 临界区只有一次 map 操作。
type Store struct {
	holdDuration time.Duration

	mu     sync.RWMutex
	stocks map[domain.StockKey]*stockEntry

	idxMu sync.RWMutex
	index map[string]domain.StockKey
}

// stockEntry 把单个 SKU 的计数和活跃预占放在同一把锁下，
// “检查空闲量 + 预占”因此是每键原子的。
type stockEntry struct {
	mu           sync.Mutex
	rec          domain.StockRecord
	reservations map[string]*domain.Reservation
}

func NewStore(holdDuration time.Duration) *Store {
	return &Store{
		holdDuration: holdDuration,
		stocks:       make(map[domain.StockKey]*stockEntry),
		index:        make(map[string]domain.StockKey),
	}
}

// SetStock 创建或重置一个库存记录（管理 / 预热路径）。
// 已有活跃预占时，总量不得重置到预占量之下，否则后续 Commit
// 会把 Total 扣成负数；这种重置返回 ErrResetBelowReserved。
func (s *Store) SetStock(key domain.StockKey, total, lowStockThreshold int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.stocks[key]
	if !ok {
		e = &stockEntry{reservations: make(map[string]*domain.Reservation)}
		s.stocks[key] = e
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if total < e.rec.ReservedQuantity {
		return domain.ErrResetBelowReserved
	}
	e.rec = domain.StockRecord{
		Key:               key,
		TotalQuantity:     total,
		ReservedQuantity:  e.rec.ReservedQuantity,
		LowStockThreshold: lowStockThreshold,
		Active:            true,
		LastUpdated:       time.Now(),
	}
	return nil
}

// AddStock 追加补货数量（进货路径）。
func (s *Store) AddStock(key domain.StockKey, delta int) error {
	e, ok := s.entry(key)
	if !ok {
		return domain.ErrUnknownStockKey
	}
	e.mu.Lock()
	e.rec.TotalQuantity += delta
	e.rec.LastUpdated = time.Now()
	e.mu.Unlock()
	return nil
}

// LoadRecord 用持久化快照恢复一条库存记录（启动预热）。
// 活跃预占不持久化，Reserved 归零。
func (s *Store) LoadRecord(rec domain.StockRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.ReservedQuantity = 0
	s.stocks[rec.Key] = &stockEntry{
		rec:          rec,
		reservations: make(map[string]*domain.Reservation),
	}
}

// Deactivate 下架一个 SKU，已有预占不受影响。
func (s *Store) Deactivate(key domain.StockKey) error {
	e, ok := s.entry(key)
	if !ok {
		return domain.ErrUnknownStockKey
	}
	e.mu.Lock()
	e.rec.Active = false
	e.rec.LastUpdated = time.Now()
	e.mu.Unlock()
	return nil
}

// CheckStock 只读查询：当前空闲量是否满足 quantity。不产生任何副作用。
func (s *Store) CheckStock(key domain.StockKey, quantity int) (available bool, free int) {
	e, ok := s.entry(key)
	if !ok {
		return false, 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.rec.Active {
		return false, 0
	}
	free = e.rec.Free()
	return free >= quantity, free
}

// Reserve 原子地校验空闲量并创建一个有效期为 holdDuration 的预占。
// 空闲不足时返回 ErrOutOfStock，不做部分预占。
func (s *Store) Reserve(key domain.StockKey, quantity int, orderID string) (string, error) {
	if quantity <= 0 {
		return "", domain.ErrOutOfStock
	}
	e, ok := s.entry(key)
	if !ok {
		return "", domain.ErrUnknownStockKey
	}

	now := time.Now()
	res := &domain.Reservation{
		ID:        uuid.New().String(),
		Key:       key,
		Quantity:  quantity,
		OrderID:   orderID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.holdDuration),
	}

	e.mu.Lock()
	if !e.rec.Active {
		e.mu.Unlock()
		return "", domain.ErrStockInactive
	}
	if e.rec.Free() < quantity {
		e.mu.Unlock()
		return "", domain.ErrOutOfStock
	}
	e.rec.ReservedQuantity += quantity
	e.rec.LastUpdated = now
	e.reservations[res.ID] = res
	e.mu.Unlock()

	// 预占 ID 在此之前未对外发布，先建实体再建索引不会产生可观察的空窗。
	s.idxMu.Lock()
	s.index[res.ID] = key
	s.idxMu.Unlock()

	metrics.ActiveReservations.Inc()
	return res.ID, nil
}

// Release 撤销一个预占，归还空闲量。幂等：对不存在或已释放的
// 预占是 no-op，返回 false 而不是错误。
func (s *Store) Release(reservationID string) bool {
	res, e, ok := s.lookup(reservationID)
	if !ok {
		return false
	}

	e.mu.Lock()
	if _, live := e.reservations[reservationID]; !live {
		e.mu.Unlock()
		return false
	}
	delete(e.reservations, reservationID)
	e.rec.ReservedQuantity -= res.Quantity
	e.rec.LastUpdated = time.Now()
	e.mu.Unlock()

	s.dropIndex(reservationID)
	metrics.ActiveReservations.Dec()
	return true
}

// Commit 把预占转为永久扣减：Reserved 和 Total 同时减少。
// 这是唯一会永久移除库存的操作。预占已不存在（被释放或被 Reaper
// 回收）时返回 ErrReservationNotFound。
func (s *Store) Commit(reservationID string) error {
	res, e, ok := s.lookup(reservationID)
	if !ok {
		return domain.ErrReservationNotFound
	}

	e.mu.Lock()
	if _, live := e.reservations[reservationID]; !live {
		e.mu.Unlock()
		return domain.ErrReservationNotFound
	}
	delete(e.reservations, reservationID)
	e.rec.ReservedQuantity -= res.Quantity
	e.rec.TotalQuantity -= res.Quantity
	e.rec.LastUpdated = time.Now()
	e.mu.Unlock()

	s.dropIndex(reservationID)
	metrics.ActiveReservations.Dec()
	return nil
}

// Restore 把数量加回总库存，用于逆转一次已提交的扣减（支付后取消订单）。
func (s *Store) Restore(key domain.StockKey, quantity int) error {
	e, ok := s.entry(key)
	if !ok {
		return domain.ErrUnknownStockKey
	}
	e.mu.Lock()
	e.rec.TotalQuantity += quantity
	e.rec.LastUpdated = time.Now()
	e.mu.Unlock()
	return nil
}

// ListExpired 返回 expiresAt 早于 now 的预占 ID，仅供 Reaper 使用。
func (s *Store) ListExpired(now time.Time) []string {
	var expired []string
	for _, e := range s.entries() {
		e.mu.Lock()
		for id, res := range e.reservations {
			if res.Expired(now) {
				expired = append(expired, id)
			}
		}
		e.mu.Unlock()
	}
	return expired
}

// Snapshot 返回一个 SKU 的库存快照（副本），供门店“有货/无货”展示。
func (s *Store) Snapshot(key domain.StockKey) (domain.StockRecord, error) {
	e, ok := s.entry(key)
	if !ok {
		return domain.StockRecord{}, domain.ErrUnknownStockKey
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

// Snapshots 返回全部库存记录的副本，按键排序，供周期性落库。
func (s *Store) Snapshots() []domain.StockRecord {
	entries := s.entries()
	out := make([]domain.StockRecord, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key.String() < out[j].Key.String()
	})
	return out
}

func (s *Store) entry(key domain.StockKey) (*stockEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.stocks[key]
	return e, ok
}

func (s *Store) entries() []*stockEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*stockEntry, 0, len(s.stocks))
	for _, e := range s.stocks {
		out = append(out, e)
	}
	return out
}

// lookup 通过索引找到预占及其所属的库存条目。
// 返回的 res 是创建时写入的不可变对象，读它不需要持有 entry 锁。
func (s *Store) lookup(reservationID string) (*domain.Reservation, *stockEntry, bool) {
	s.idxMu.RLock()
	key, ok := s.index[reservationID]
	s.idxMu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	e, ok := s.entry(key)
	if !ok {
		return nil, nil, false
	}
	e.mu.Lock()
	res, live := e.reservations[reservationID]
	e.mu.Unlock()
	if !live {
		return nil, nil, false
	}
	return res, e, true
}

func (s *Store) dropIndex(reservationID string) {
	s.idxMu.Lock()
	delete(s.index, reservationID)
	s.idxMu.Unlock()
}
