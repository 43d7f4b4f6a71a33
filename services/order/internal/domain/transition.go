package domain

import (
	"strings"
	"time"

	"github.com/kyungseok/retail-fulfillment/common/errors"
)

// TransitionPolicy 상태 전이 검증 모드
type TransitionPolicy string

const (
	// PolicyStrict 순방향 전이 + 비종료 상태에서의 취소만 허용
	PolicyStrict TransitionPolicy = "strict"
	// PolicyPermissive 정의된 모든 상태로의 직접 변경 허용 (CANCELLED 제외 종료 상태 해제 가능)
	PolicyPermissive TransitionPolicy = "permissive"
)

// ParseTransitionPolicy 설정값 파싱
func ParseTransitionPolicy(s string) (TransitionPolicy, error) {
	switch TransitionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyStrict:
		return PolicyStrict, nil
	case PolicyPermissive:
		return PolicyPermissive, nil
	}
	return "", errors.Newf(errors.ErrCodeInvalidStatus, "unknown transition policy: %q", s)
}

var forwardTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {
		OrderStatusConfirmed,
		OrderStatusCancelled,
	},
	OrderStatusConfirmed: {
		OrderStatusShipped,
		OrderStatusCancelled,
	},
	OrderStatusShipped: {
		OrderStatusDelivered,
		OrderStatusCancelled,
	},
}

// CanTransition 상태 전이 가능 여부 확인
//
// 동일 상태로의 변경은 두 모드 모두 허용한다 (송장번호만 갱신하는 경우).
// CANCELLED 는 재고가 이미 복구되었으므로 두 모드 모두 종료 상태로 취급한다.
func (p TransitionPolicy) CanTransition(from, to OrderStatus) bool {
	if from == to {
		return true
	}
	if from == OrderStatusCancelled {
		return false
	}
	if p == PolicyPermissive {
		return true
	}

	for _, allowed := range forwardTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// TransitionTo 상태 전이 (정책 검증 후 적용)
func (o *Order) TransitionTo(policy TransitionPolicy, newStatus OrderStatus, now time.Time) error {
	if !policy.CanTransition(o.Status, newStatus) {
		return errors.Newf(errors.ErrCodeInvalidTransition,
			"order %d cannot move from %s to %s", o.ID, o.Status, newStatus)
	}
	o.Status = newStatus
	o.UpdatedAt = now
	return nil
}
