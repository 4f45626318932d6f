package account

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/users"
)

// racingStore は検索では見つからず、挿入時に一意制約違反となるストアです。
type racingStore struct {
	users.Store
}

func (racingStore) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	return nil, users.ErrNotFound
}

func (racingStore) Create(ctx context.Context, user *users.User) error {
	return users.ErrDuplicateUsername
}

type brokenStore struct {
	users.Store
}

func (brokenStore) FindByUsername(ctx context.Context, username string) (*users.User, error) {
	return nil, &users.StoreError{Op: "find by username", Err: errors.New("connection refused")}
}

func newTestService(store users.Store) *Service {
	return NewService(store, auth.NewBcryptHasher(bcrypt.MinCost), zap.NewNop().Sugar())
}

func TestSignUpThenAuthenticate(t *testing.T) {
	store := users.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	user, err := svc.SignUp(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEqual(t, "pw1", user.PasswordHash)
	assert.NotEmpty(t, user.ID)

	authn := auth.NewAuthenticator(store, auth.NewBcryptHasher(bcrypt.MinCost))
	got, err := authn.Authenticate(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = authn.Authenticate(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, auth.ErrBadPassword)
}

func TestSignUpDuplicateLeavesRecordUnmodified(t *testing.T) {
	store := users.NewMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.SignUp(ctx, "alice", "pw1")
	require.NoError(t, err)

	_, err = svc.SignUp(ctx, "alice", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)

	stored, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)
}

func TestSignUpTrimsUsername(t *testing.T) {
	store := users.NewMemoryStore()
	svc := newTestService(store)

	user, err := svc.SignUp(context.Background(), "  alice ", " pw1 ")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	_, err = svc.SignUp(context.Background(), "alice", "other")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestSignUpValidation(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"empty username", "", "pw1"},
		{"blank username", "   ", "pw1"},
		{"empty password", "alice", ""},
		{"long username", strings.Repeat("a", maxUsernameLength+1), "pw1"},
		{"long password", "alice", strings.Repeat("p", maxPasswordBytes+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := users.NewMemoryStore()
			_, err := newTestService(store).SignUp(context.Background(), tt.username, tt.password)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)

			_, err = store.FindByUsername(context.Background(), strings.TrimSpace(tt.username))
			assert.ErrorIs(t, err, users.ErrNotFound)
		})
	}
}

func TestSignUpMultibyteUsernameLength(t *testing.T) {
	// 文字数で数える
	_, err := newTestService(users.NewMemoryStore()).SignUp(context.Background(), strings.Repeat("あ", maxUsernameLength), "pw1")
	assert.NoError(t, err)
}

func TestSignUpDuplicateOnInsert(t *testing.T) {
	_, err := newTestService(racingStore{}).SignUp(context.Background(), "alice", "pw1")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestSignUpStoreError(t *testing.T) {
	_, err := newTestService(brokenStore{}).SignUp(context.Background(), "alice", "pw1")
	require.Error(t, err)

	var storeErr *users.StoreError
	assert.ErrorAs(t, err, &storeErr)
	assert.NotErrorIs(t, err, ErrDuplicateUsername)

	var verr *ValidationError
	assert.False(t, errors.As(err, &verr))
}
