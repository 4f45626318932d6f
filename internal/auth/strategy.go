package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yourusername/passgate/internal/users"
)

var (
	// ErrInvalidCredentials はログイン失敗全般を表します。
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrMissingCredentials = fmt.Errorf("%w: missing credentials", ErrInvalidCredentials)
	ErrUnknownUser        = fmt.Errorf("%w: unknown user", ErrInvalidCredentials)
	ErrBadPassword        = fmt.Errorf("%w: bad password", ErrInvalidCredentials)
)

// Authenticator はユーザー名とパスワードで資格情報を検証します。
type Authenticator struct {
	users  users.Store
	hasher Hasher
}

// NewAuthenticator は Authenticator を作成します。
func NewAuthenticator(store users.Store, hasher Hasher) *Authenticator {
	return &Authenticator{
		users:  store,
		hasher: hasher,
	}
}

// Authenticate はユーザー名の完全一致でレコードを引き、パスワードを検証します。
// ユーザー名は登録時と同じく前後の空白を除きます。
// 失敗理由は ErrUnknownUser / ErrBadPassword で区別されますが、
// どちらも ErrInvalidCredentials として扱えます。
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*users.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := a.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := a.hasher.Compare(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return nil, ErrBadPassword
		}
		return nil, err
	}

	return user, nil
}
