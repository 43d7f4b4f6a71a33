package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kyungseok/retail-fulfillment/common/errors"
)

// Claims 액세스 토큰 클레임
type Claims struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTAuthenticator Authorization: Bearer 토큰(HMAC 서명) 검증
type JWTAuthenticator struct {
	secret []byte
	leeway time.Duration
}

// NewJWTAuthenticator JWT 인증기 생성
func NewJWTAuthenticator(secret string) *JWTAuthenticator {
	return &JWTAuthenticator{
		secret: []byte(secret),
		leeway: 30 * time.Second,
	}
}

// Authenticate 토큰 서명과 만료를 검증하고 호출자 추출
func (a *JWTAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	header := r.Header.Get("Authorization")
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Principal{}, errors.New(errors.ErrCodeUnauthenticated, "missing bearer token")
	}

	var claims Claims
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{
			jwt.SigningMethodHS256.Alg(),
			jwt.SigningMethodHS384.Alg(),
			jwt.SigningMethodHS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.leeway),
	)
	if err != nil || !token.Valid {
		return Principal{}, errors.Wrap(errors.ErrCodeUnauthenticated, "invalid token", err)
	}

	userID := claims.UserID
	if userID == 0 && claims.Subject != "" {
		userID, _ = strconv.ParseInt(claims.Subject, 10, 64)
	}
	if userID <= 0 {
		return Principal{}, errors.New(errors.ErrCodeUnauthenticated, "token carries no user id")
	}

	role, err := parseRole(claims.Role)
	if err != nil {
		return Principal{}, err
	}
	return Principal{UserID: userID, Role: role}, nil
}

// IssueToken 토큰 발급 (로컬 실행과 테스트용)
func (a *JWTAuthenticator) IssueToken(userID int64, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(a.secret)
}
