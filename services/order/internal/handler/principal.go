package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/kyungseok/retail-fulfillment/common/errors"
)

// 게이트웨이가 설정하는 인증 헤더
const (
	HeaderUserID         = "X-User-ID"
	HeaderUserRole       = "X-User-Role"
	HeaderIdempotencyKey = "Idempotency-Key"
)

// Role 사용자 역할
type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// Principal 인증된 호출자
type Principal struct {
	UserID int64
	Role   Role
}

// IsAdmin 관리자 여부
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type principalKey struct{}

// Authenticator 요청에서 호출자 확인
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// HeaderAuthenticator 인증 게이트웨이가 설정한 헤더를 신뢰
type HeaderAuthenticator struct{}

// Authenticate X-User-ID / X-User-Role 헤더에서 호출자 추출
func (HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	rawID := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if rawID == "" {
		return Principal{}, errors.New(errors.ErrCodeUnauthenticated, "missing user identity")
	}

	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || userID <= 0 {
		return Principal{}, errors.Newf(errors.ErrCodeUnauthenticated, "invalid user identity: %s", rawID)
	}

	role, err := parseRole(r.Header.Get(HeaderUserRole))
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Role: role}, nil
}

// parseRole 빈 값은 CUSTOMER
func parseRole(raw string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case RoleCustomer, RoleAdmin:
		return role, nil
	case "":
		return RoleCustomer, nil
	}
	return "", errors.Newf(errors.ErrCodeUnauthenticated, "unknown role: %s", role)
}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom 컨텍스트의 호출자
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// authorize 역할 검사
func authorize(p Principal, roles ...Role) error {
	for _, role := range roles {
		if p.Role == role {
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeForbidden, "role %s is not allowed to perform this action", p.Role)
}

// authorizeOwner 소유자 또는 관리자만 허용
func authorizeOwner(p Principal, ownerID int64) error {
	if p.IsAdmin() || p.UserID == ownerID {
		return nil
	}
	return errors.New(errors.ErrCodeForbidden, "access denied to another user's order")
}
