package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kyungseok/retail-fulfillment/services/order/internal/domain"
)

var (
	// ErrNotFound 조회 대상 레코드 없음
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 유니크 제약 위반 (멱등성 키 중복 등)
	ErrDuplicate = errors.New("duplicate record")
)

// ProductRepository 상품/재고 레포지토리 인터페이스
//
// Reserve 와 Release 는 저장소 내부에서 한 번에 수행되는 조건부 갱신이어야 한다.
// 클라이언트 측 read-then-write 로 구현하지 않는다.
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (*domain.Product, error)
	// Reserve stock >= quantity 인 경우에만 차감, 차감 여부 반환
	Reserve(ctx context.Context, id int64, quantity int) (bool, error)
	// Release 재고 복구, 상품이 존재하지 않으면 false
	Release(ctx context.Context, id int64, quantity int) (bool, error)
}

// OrderRepository 주문 레포지토리 인터페이스
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	FindByID(ctx context.Context, id int64) (*domain.Order, error)
	// FindByIDForUpdate 트랜잭션 종료 시까지 주문 행 잠금
	FindByIDForUpdate(ctx context.Context, id int64) (*domain.Order, error)
	// FindByIdempotencyKey 멱등성 키는 사용자 단위로 유일
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (*domain.Order, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64, page Page) ([]*domain.Order, error)
	ListAll(ctx context.Context, page Page) ([]*domain.Order, error)
	ListByStatus(ctx context.Context, status domain.OrderStatus) ([]*domain.Order, error)
	// Update 상태, 결제 상태, 송장번호, 수정 시각만 갱신 (금액은 재계산하지 않음)
	Update(ctx context.Context, order *domain.Order) error
	CountByStatus(ctx context.Context) (domain.StatusCounts, error)
}

// UserRepository 사용자 존재 확인용 레포지토리
type UserRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// OutboxEvent Outbox 이벤트
type OutboxEvent struct {
	ID            int64
	AggregateType string
	AggregateID   int64
	EventType     string
	Payload       json.RawMessage
	Status        string
	CreatedAt     time.Time
	SentAt        *time.Time
}

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
)

// OutboxRepository Outbox 레포지토리 인터페이스
type OutboxRepository interface {
	Insert(ctx context.Context, event *OutboxEvent) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
}

// Repositories 하나의 트랜잭션(또는 자동 커밋 연결)에 묶인 레포지토리 묶음
type Repositories struct {
	Products ProductRepository
	Orders   OrderRepository
	Users    UserRepository
	Outbox   OutboxRepository
}

// TxFunc 트랜잭션 내부 작업
type TxFunc func(ctx context.Context, repos Repositories) error

// Store 저장소 인터페이스
type Store interface {
	// Repositories 트랜잭션 밖에서 사용하는 레포지토리 (조회, outbox 릴레이)
	Repositories() Repositories
	// RunInTx fn 이 nil 을 반환하면 커밋, 그 외에는 롤백
	RunInTx(ctx context.Context, fn TxFunc) error
	Ping(ctx context.Context) error
	Close() error
}

// Page 페이지 요청
type Page struct {
	Number int
	Size   int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Normalize 기본값 및 상한 적용
func (p Page) Normalize() Page {
	if p.Number < 0 {
		p.Number = 0
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

// Offset 페이지 시작 위치
func (p Page) Offset() int {
	return p.Number * p.Size
}
