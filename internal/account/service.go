// Package account はユーザー登録を提供します。
package account

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jellydator/validation"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/users"
)

const (
	maxUsernameLength = 64
	// bcrypt が扱える上限
	maxPasswordBytes = 72
)

// ErrDuplicateUsername は登録済みのユーザー名で登録しようとしたことを表します。
var ErrDuplicateUsername = users.ErrDuplicateUsername

// ValidationError は入力値の検証エラーです。
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

type signUpInput struct {
	Username string
	Password string
}

func (in signUpInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Username, validation.Required, validation.RuneLength(1, maxUsernameLength)),
		validation.Field(&in.Password, validation.Required, validation.Length(1, maxPasswordBytes)),
	)
}

// Service はユーザー登録を行います。
type Service struct {
	users  users.Store
	hasher auth.Hasher
	logs   *zap.SugaredLogger
}

// NewService は Service を作成します。
func NewService(store users.Store, hasher auth.Hasher, logs *zap.SugaredLogger) *Service {
	return &Service{
		users:  store,
		hasher: hasher,
		logs:   logs,
	}
}

// SignUp は新しいユーザーを登録します。
// ユーザー名は前後の空白を除いてから検証します。パスワードはそのまま扱います。
func (s *Service) SignUp(ctx context.Context, username, password string) (*users.User, error) {
	in := signUpInput{
		Username: strings.TrimSpace(username),
		Password: password,
	}
	if err := in.Validate(); err != nil {
		return nil, &ValidationError{Err: err}
	}

	_, err := s.users.FindByUsername(ctx, in.Username)
	switch {
	case err == nil:
		s.logs.Infow("sign-up rejected: username taken", "username", in.Username)
		return nil, ErrDuplicateUsername
	case !errors.Is(err, users.ErrNotFound):
		return nil, fmt.Errorf("check username: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := users.New(in.Username, hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateUsername) {
			// 検索と挿入の間に同名のユーザーが作られた
			s.logs.Infow("sign-up rejected: username taken on insert", "username", in.Username)
			return nil, ErrDuplicateUsername
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.logs.Infow("user signed up", "user_id", user.ID, "username", user.Username)
	return user, nil
}
