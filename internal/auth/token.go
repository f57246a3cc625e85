package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はトークンの既定の有効期間です。
const DefaultTokenTTL = time.Hour

// TokenService はトークンの発行と検証を行います。
type TokenService interface {
	Issue(subject string) (string, error)
	Verify(token string) (string, error)
}

// TokenErrorKind は検証失敗の分類です。
type TokenErrorKind int

const (
	TokenMalformed TokenErrorKind = iota + 1
	TokenExpired
	TokenNotYetValid
)

// TokenError はトークン検証の失敗理由を保持します。
type TokenError struct {
	Kind      TokenErrorKind
	ExpiredAt time.Time // Kind == TokenExpired のときのみ設定
	Err       error
}

func (e *TokenError) Error() string {
	return e.Err.Error()
}

func (e *TokenError) Unwrap() error {
	return e.Err
}

// Claims はトークンに埋め込む情報です。
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenManager は HS256 で署名した有効期限付きトークンを扱います。
// サーバー側には何も保存しません。
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager は TokenManager を作成します。署名鍵が空の場合はエラーになります。
func NewTokenManager(secret string, ttl time.Duration, now func() time.Time) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    now,
	}, nil
}

// Issue は subject を主体とするトークンを発行します。
func (m *TokenManager) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	now := m.now()
	claims := &Claims{
		UserID: subject,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify は署名と有効期限を検証し、subject を返します。
// 失敗時は *TokenError を返します。
func (m *TokenManager) Verify(raw string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return "", classifyTokenError(err, claims)
	}
	if !token.Valid {
		return "", &TokenError{Kind: TokenMalformed, Err: jwt.ErrTokenInvalidClaims}
	}

	subject := claims.UserID
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return "", &TokenError{Kind: TokenMalformed, Err: errors.New("token has no subject")}
	}
	return subject, nil
}

func classifyTokenError(err error, claims *Claims) *TokenError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		tokenErr := &TokenError{Kind: TokenExpired, Err: err}
		if claims != nil && claims.ExpiresAt != nil {
			tokenErr.ExpiredAt = claims.ExpiresAt.Time.UTC()
		}
		return tokenErr
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return &TokenError{Kind: TokenNotYetValid, Err: err}
	default:
		return &TokenError{Kind: TokenMalformed, Err: err}
	}
}
