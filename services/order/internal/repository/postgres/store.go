package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	"github.com/lib/pq"

	"github.com/kyungseok/retail-fulfillment/common/errors"
	"github.com/kyungseok/retail-fulfillment/services/order/internal/repository"
)

//go:embed schema.sql
var schema string

// DBTX *sql.DB 와 *sql.Tx 가 공통으로 만족하는 인터페이스
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Store PostgreSQL 저장소
type Store struct {
	db *sql.DB
}

// NewStore PostgreSQL 저장소 생성
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

var _ repository.Store = (*Store)(nil)

func newRepositories(q DBTX) repository.Repositories {
	return repository.Repositories{
		Products: &productRepository{q: q},
		Orders:   &orderRepository{q: q},
		Users:    &userRepository{q: q},
		Outbox:   &outboxRepository{q: q},
	}
}

// Repositories 자동 커밋 연결 위의 레포지토리
func (s *Store) Repositories() repository.Repositories {
	return newRepositories(s.db)
}

// RunInTx 트랜잭션 실행
//
// fn 이 에러를 반환하거나 panic 이 발생하면 defer 된 Rollback 이 모든 변경을 되돌린다.
func (s *Store) RunInTx(ctx context.Context, fn repository.TxFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return translate("failed to begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, newRepositories(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return translate("failed to commit transaction", err)
	}
	return nil
}

// Ping 연결 확인
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close 연결 종료
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate 스키마 생성 (IF NOT EXISTS 이므로 반복 실행 가능)
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// PostgreSQL 에러 코드
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgNumericOutOfRange    = "22003"
)

// translate 드라이버 에러를 도메인 에러로 변환
func translate(message string, err error) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case pgSerializationFailure, pgDeadlockDetected:
			return errors.Wrap(errors.ErrCodeConcurrencyConflict, message, err)
		case pgNumericOutOfRange:
			return errors.Wrap(errors.ErrCodeInvalidOrder, message+": value out of range", err)
		case pgUniqueViolation:
			return fmt.Errorf("%s: %w: %v", message, repository.ErrDuplicate, err)
		}
	}
	return errors.Wrap(errors.ErrCodeDatabaseError, message, err)
}
