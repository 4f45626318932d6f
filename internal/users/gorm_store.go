package users

import (
	"context"
	"errors"

	"github.com/yourusername/passgate/internal/db"
)

// Database は GormStore が必要とするデータベース操作です。
type Database interface {
	GetBy(ctx context.Context, column string, value any, entity any) error
	Insert(ctx context.Context, entity any) error
}

// GormStore は gorm 経由でユーザーを保存する Store 実装です。
type GormStore struct {
	db Database
}

// NewGormStore は GormStore を作成します。
func NewGormStore(database Database) *GormStore {
	return &GormStore{db: database}
}

// FindByUsername はユーザー名の完全一致で1件取得します。
func (s *GormStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findBy(ctx, "find by username", "username", username)
}

// FindByID はIDで1件取得します。
func (s *GormStore) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findBy(ctx, "find by id", "id", id)
}

// Create はユーザーを追加します。
func (s *GormStore) Create(ctx context.Context, user *User) error {
	if err := s.db.Insert(ctx, user); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			return ErrDuplicateUsername
		}
		return &StoreError{Op: "create", Err: err}
	}
	return nil
}

func (s *GormStore) findBy(ctx context.Context, op, column string, value string) (*User, error) {
	var user User
	if err := s.db.GetBy(ctx, column, value, &user); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, &StoreError{Op: op, Err: err}
	}
	return &user, nil
}
