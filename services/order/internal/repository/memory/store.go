// Package memory 프로세스 내 저장소 (테스트 및 로컬 실행용)
//
// 트랜잭션은 상태 복사본 위에서 실행되고 성공 시에만 교체되므로, 실패한 트랜잭션의
// 재고 차감이나 주문 생성은 관찰되지 않는다. 쓰기 트랜잭션은 직렬화된다.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

type state struct {
	products map[int64]domain.Product
	orders   map[int64]*domain.Order
	users    map[int64]struct{}
	outbox   []*repository.OutboxEvent

	nextOrderID  int64
	nextItemID   int64
	nextOutboxID int64
}

func newState() *state {
	return &state{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]*domain.Order),
		users:    make(map[int64]struct{}),
	}
}

func (s *state) clone() *state {
	c := &state{
		products:     make(map[int64]domain.Product, len(s.products)),
		orders:       make(map[int64]*domain.Order, len(s.orders)),
		users:        make(map[int64]struct{}, len(s.users)),
		outbox:       make([]*repository.OutboxEvent, len(s.outbox)),
		nextOrderID:  s.nextOrderID,
		nextItemID:   s.nextItemID,
		nextOutboxID: s.nextOutboxID,
	}
	for id, p := range s.products {
		c.products[id] = p
	}
	for id, o := range s.orders {
		c.orders[id] = copyOrder(o)
	}
	for id := range s.users {
		c.users[id] = struct{}{}
	}
	for i, e := range s.outbox {
		ev := *e
		c.outbox[i] = &ev
	}
	return c
}

// copyOrder 포인터 필드까지 깊은 복사
func copyOrder(o *domain.Order) *domain.Order {
	c := *o
	c.TrackingNumber = copyString(o.TrackingNumber)
	c.Items = make([]domain.OrderItem, len(o.Items))
	for i, item := range o.Items {
		item.SelectedSize = copyString(item.SelectedSize)
		item.SelectedColor = copyString(item.SelectedColor)
		c.Items[i] = item
	}
	return &c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Store 메모리 저장소
type Store struct {
	mu    sync.RWMutex
	state *state
	// failNext 다음 트랜잭션 커밋 직전에 반환할 에러 (장애 주입용)
	failNext error
}

// NewStore 메모리 저장소 생성
func NewStore() *Store {
	return &Store{state: newState()}
}

var _ repository.Store = (*Store)(nil)

// Repositories 트랜잭션 밖 레포지토리 (호출마다 잠금)
func (s *Store) Repositories() repository.Repositories {
	return s.repositories(nil)
}

func (s *Store) repositories(tx *state) repository.Repositories {
	base := &accessor{store: s, tx: tx}
	return repository.Repositories{
		Products: &productRepository{base},
		Orders:   &orderRepository{base},
		Users:    &userRepository{base},
		Outbox:   &outboxRepository{base},
	}
}

// RunInTx 복사본 위에서 fn 실행 후 성공 시 교체
func (s *Store) RunInTx(ctx context.Context, fn repository.TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := s.state.clone()
	if err := fn(ctx, s.repositories(tx)); err != nil {
		return err
	}

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}

	s.state = tx
	return nil
}

// FailNextCommit 다음 커밋을 실패시킴 (저장소 장애 시나리오)
func (s *Store) FailNextCommit(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Ping 항상 성공
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close 아무 동작 없음
func (s *Store) Close() error {
	return nil
}

// PutProduct 상품 저장 (카탈로그 관리 경로를 대신함)
func (s *Store) PutProduct(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now()
	}
	s.state.products[p.ID] = p
}

// DeleteProduct 상품 삭제
func (s *Store) DeleteProduct(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state.products, id)
}

// Product 상품 조회
func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.products[id]
	return p, ok
}

// PutUser 사용자 등록
func (s *Store) PutUser(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.users[id] = struct{}{}
}

// OrderCount 저장된 주문 수
func (s *Store) OrderCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.state.orders)
}

// OutboxEvents 저장된 outbox 이벤트 복사본
func (s *Store) OutboxEvents() []repository.OutboxEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]repository.OutboxEvent, 0, len(s.state.outbox))
	for _, e := range s.state.outbox {
		events = append(events, *e)
	}
	return events
}

// accessor 트랜잭션이면 복사본을, 아니면 잠금을 잡고 현재 상태를 사용
type accessor struct {
	store *Store
	tx    *state
}

func (a *accessor) read() (*state, func()) {
	if a.tx != nil {
		return a.tx, func() {}
	}
	a.store.mu.RLock()
	return a.store.state, a.store.mu.RUnlock
}

func (a *accessor) write() (*state, func()) {
	if a.tx != nil {
		return a.tx, func() {}
	}
	a.store.mu.Lock()
	return a.store.state, a.store.mu.Unlock
}

type productRepository struct{ *accessor }

func (r *productRepository) FindByID(ctx context.Context, id int64) (*domain.Product, error) {
	st, done := r.read()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// Reserve 비교 후 차감을 하나의 임계 구역에서 수행
func (r *productRepository) Reserve(ctx context.Context, id int64, quantity int) (bool, error) {
	st, done := r.write()
	defer done()

	p, ok := st.products[id]
	if !ok || p.Stock < quantity {
		return false, nil
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	st.products[id] = p
	return true, nil
}

func (r *productRepository) Release(ctx context.Context, id int64, quantity int) (bool, error) {
	st, done := r.write()
	defer done()

	p, ok := st.products[id]
	if !ok {
		return false, nil
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now()
	st.products[id] = p
	return true, nil
}

type orderRepository struct{ *accessor }

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	st, done := r.write()
	defer done()

	if order.IdempotencyKey != "" {
		for _, existing := range st.orders {
			if existing.UserID == order.UserID && existing.IdempotencyKey == order.IdempotencyKey {
				return repository.ErrDuplicate
			}
		}
	}

	st.nextOrderID++
	order.ID = st.nextOrderID
	for i := range order.Items {
		st.nextItemID++
		order.Items[i].ID = st.nextItemID
		order.Items[i].OrderID = order.ID
	}

	st.orders[order.ID] = copyOrder(order)
	return nil
}

func (r *orderRepository) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	st, done := r.read()
	defer done()

	o, ok := st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

// FindByIDForUpdate 쓰기 트랜잭션이 직렬화되므로 FindByID 와 동일
func (r *orderRepository) FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error) {
	return r.FindByID(ctx, id)
}

func (r *orderRepository) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*domain.Order, error) {
	return r.findFirst(func(o *domain.Order) bool { return o.UserID == userID && o.IdempotencyKey == key })
}

func (r *orderRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error) {
	return r.findFirst(func(o *domain.Order) bool {
		return o.TrackingNumber != nil && *o.TrackingNumber == trackingNumber
	})
}

func (r *orderRepository) ListByUser(ctx context.Context, userID int64, page repository.Page) ([]*domain.Order, error) {
	return paginate(r.filter(func(o *domain.Order) bool { return o.UserID == userID }), page), nil
}

func (r *orderRepository) ListAll(ctx context.Context, page repository.Page) ([]*domain.Order, error) {
	return paginate(r.filter(func(o *domain.Order) bool { return true }), page), nil
}

func (r *orderRepository) ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error) {
	return r.filter(func(o *domain.Order) bool { return o.Status == status }), nil
}

func (r *orderRepository) Update(ctx context.Context, order *domain.Order) error {
	st, done := r.write()
	defer done()

	existing, ok := st.orders[order.ID]
	if !ok {
		return repository.ErrNotFound
	}

	updated := copyOrder(existing)
	updated.Status = order.Status
	updated.PaymentStatus = order.PaymentStatus
	updated.TrackingNumber = order.TrackingNumber
	updated.UpdatedAt = order.UpdatedAt
	st.orders[order.ID] = copyOrder(updated)
	return nil
}

func (r *orderRepository) CountByStatus(ctx context.Context) (domain.StatusCounts, error) {
	st, done := r.read()
	defer done()

	counts := domain.StatusCounts{ByStatus: make(map[domain.OrderStatus]int64, len(domain.OrderStatuses))}
	for _, status := range domain.OrderStatuses {
		counts.ByStatus[status] = 0
	}
	for _, o := range st.orders {
		counts.ByStatus[o.Status]++
		counts.Total++
	}
	return counts, nil
}

func (r *orderRepository) findFirst(match func(*domain.Order) bool) (*domain.Order, error) {
	orders := r.filter(match)
	if len(orders) == 0 {
		return nil, repository.ErrNotFound
	}
	return orders[0], nil
}

// filter 최신순 정렬된 복사본 반환
func (r *orderRepository) filter(match func(*domain.Order) bool) []*domain.Order {
	st, done := r.read()
	defer done()

	orders := []*domain.Order{}
	for _, o := range st.orders {
		if match(o) {
			orders = append(orders, copyOrder(o))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		if orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].ID > orders[j].ID
		}
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders
}

func paginate(orders []*domain.Order, page repository.Page) []*domain.Order {
	page = page.Normalize()
	start := page.Offset()
	if start >= len(orders) {
		return []*domain.Order{}
	}
	end := start + page.Size
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}

type userRepository struct{ *accessor }

func (r *userRepository) Exists(ctx context.Context, id int64) (bool, error) {
	st, done := r.read()
	defer done()

	_, ok := st.users[id]
	return ok, nil
}

type outboxRepository struct{ *accessor }

func (r *outboxRepository) Insert(ctx context.Context, event *repository.OutboxEvent) error {
	st, done := r.write()
	defer done()

	st.nextOutboxID++
	event.ID = st.nextOutboxID
	stored := *event
	st.outbox = append(st.outbox, &stored)
	return nil
}

func (r *outboxRepository) FindPending(ctx context.Context, limit int) ([]*repository.OutboxEvent, error) {
	st, done := r.read()
	defer done()

	var events []*repository.OutboxEvent
	for _, e := range st.outbox {
		if e.Status != repository.OutboxStatusPending {
			continue
		}
		ev := *e
		events = append(events, &ev)
		if len(events) == limit {
			break
		}
	}
	return events, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id int64) error {
	st, done := r.write()
	defer done()

	for _, e := range st.outbox {
		if e.ID == id {
			now := time.Now()
			e.Status = repository.OutboxStatusSent
			e.SentAt = &now
			return nil
		}
	}
	return repository.ErrNotFound
}
