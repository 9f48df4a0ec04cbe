package order

import (
	"errors"
	"fmt"
	"sync"

	"storefront/internal/order/domain"
)

// ErrOrderNotFound 订单不存在。
var ErrOrderNotFound = errors.New("order not found")

// Store 持有订单记录并保证状态流转的合法性。
// 订单在 Pending 阶段只被创建它的那次 checkout 持有，不存在两个 saga
// 并发操作同一订单；这里的锁只保护 map 本身和读路径的一致性。
type Store struct {
	mu         sync.RWMutex
	orders     map[string]*domain.Order
	byNumber   map[string]string   // orderNumber -> id
	byCustomer map[string][]string // customerID -> ids（按创建先后）
}

func NewStore() *Store {
	return &Store{
		orders:     make(map[string]*domain.Order),
		byNumber:   make(map[string]string),
		byCustomer: make(map[string][]string),
	}
}

// Create 校验草稿并落一条 Pending 订单。
func (s *Store) Create(draft domain.Draft) (*domain.Order, error) {
	o, err := domain.NewOrder(draft)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.orders[o.ID] = o
	s.byNumber[o.OrderNumber] = o.ID
	s.byCustomer[o.CustomerID] = append(s.byCustomer[o.CustomerID], o.ID)
	s.mu.Unlock()

	return o.Clone(), nil
}

// Apply 是唯一的变更入口：在锁内对聚合执行一次状态流转。
// mutate 返回错误时订单保持原状。
func (s *Store) Apply(orderID string, mutate func(*domain.Order) error) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	// 在副本上执行，失败时不留下半套变更
	next := o.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.orders[orderID] = next
	return next.Clone(), nil
}

// Get 按 ID 读取订单副本。
func (s *Store) Get(orderID string) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return o.Clone(), nil
}

// GetByOrderNumber 按人类可读订单号读取。
func (s *Store) GetByOrderNumber(orderNumber string) (*domain.Order, error) {
	s.mu.RLock()
	id, ok := s.byNumber[orderNumber]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderNumber)
	}
	return s.Get(id)
}

// ListByCustomer 返回某客户的全部订单副本。
func (s *Store) ListByCustomer(customerID string) []*domain.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byCustomer[customerID]
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		if o, ok := s.orders[id]; ok {
			out = append(out, o.Clone())
		}
	}
	return out
}
