package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher は一方向のパスワードハッシュと照合を行います。
type Hasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// BcryptHasher は bcrypt によるソルト付きハッシュです。
type BcryptHasher struct {
	Cost int
}

// Hash はパスワードをハッシュ化します。Cost が範囲外なら bcrypt.DefaultCost を使います。
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify はハッシュとパスワードが一致すれば true を返します。
func (h BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
