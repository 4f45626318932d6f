// Package auth は資格情報の検証、パスワードハッシュ、セッション管理、ログイン試行制限を提供します。
package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はハッシュ計算の標準コストです。
const DefaultBcryptCost = 10

// ErrPasswordMismatch はパスワードがハッシュと一致しないことを表します。
var ErrPasswordMismatch = errors.New("password does not match hash")

// Hasher は一方向ハッシュの計算と検証を行います。
type Hasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// HashError はハッシュ計算・検証の失敗を表します。
type HashError struct {
	Err error
}

func (e *HashError) Error() string {
	return fmt.Sprintf("password hash: %v", e.Err)
}

func (e *HashError) Unwrap() error {
	return e.Err
}

// BcryptHasher は bcrypt による Hasher 実装です。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は指定コストの BcryptHasher を作成します。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はソルト付きハッシュを返します。
func (h *BcryptHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", &HashError{Err: err}
	}
	return string(b), nil
}

// Compare は password が hash と一致すれば nil を返します。
func (h *BcryptHasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrPasswordMismatch
	}
	return &HashError{Err: err}
}
