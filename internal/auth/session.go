package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	gsessions "github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/users"
)

const (
	SessionCookieName  = "passgate_session"
	sessionKeyUser     = "user_id"
	sessionKeyIssuedAt = "issued_at"
)

// DefaultSessionMaxAge は MaxAge 未指定時のセッション有効期間です。
const DefaultSessionMaxAge = 24 * time.Hour

// ContextUserKey は、ハンドラー間でログイン済みユーザーを共有するためのキーです。
const ContextUserKey = "auth.user"

// ErrSessionInvalid はセッションが参照するユーザーが存在しないことを表します。
var ErrSessionInvalid = errors.New("session refers to a missing user")

// セッションストアの種類
const (
	StoreMemory = "memory"
	StoreCookie = "cookie"
)

// StoreOptions はセッションストア作成時の設定です。
type StoreOptions struct {
	Backend string
	Secret  []byte
	MaxAge  time.Duration
	Secure  bool
}

func (o StoreOptions) maxAge() time.Duration {
	if o.MaxAge <= 0 {
		return DefaultSessionMaxAge
	}
	return o.MaxAge
}

func (o StoreOptions) cookieOptions() sessions.Options {
	return sessions.Options{
		Path:     "/",
		MaxAge:   int(o.maxAge().Seconds()),
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// NewStore は Backend に応じたセッションストアを作成します。
// memory はサーバープロセス内にセッションを保持し、クッキーにはIDのみを載せます。
func NewStore(opts StoreOptions) (sessions.Store, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("session secret is empty")
	}

	var store sessions.Store
	switch opts.Backend {
	case StoreMemory, "":
		store = memstore.NewStore(opts.Secret)
	case StoreCookie:
		store = cookie.NewStore(opts.Secret)
	default:
		return nil, fmt.Errorf("unknown session backend %q", opts.Backend)
	}

	store.Options(opts.cookieOptions())
	// Options はクッキー属性だけを変えるので、署名の有効期限も合わせる
	if s, ok := store.(interface{ MaxAge(int) }); ok {
		s.MaxAge(int(opts.maxAge().Seconds()))
	}
	return store, nil
}

// SessionManager はユーザーとセッションの対応付けを管理します。
type SessionManager struct {
	users   users.Store
	store   sessions.Store
	options sessions.Options
	maxAge  time.Duration
	logs    *zap.SugaredLogger
	now     func() time.Time
}

// NewSessionManager はセッションストアを作成し、SessionManager を返します。
func NewSessionManager(userStore users.Store, opts StoreOptions, logs *zap.SugaredLogger) (*SessionManager, error) {
	store, err := NewStore(opts)
	if err != nil {
		return nil, err
	}
	return &SessionManager{
		users:   userStore,
		store:   store,
		options: opts.cookieOptions(),
		maxAge:  opts.maxAge(),
		logs:    logs,
		now:     time.Now,
	}, nil
}

// Sessions はセッションストアをリクエストに結び付けるミドルウェアです。
// Middleware より前に登録します。
func (m *SessionManager) Sessions() gin.HandlerFunc {
	return sessions.Sessions(SessionCookieName, m.store)
}

// Serialize はセッションに保存するユーザー参照（ID）を返します。
func (m *SessionManager) Serialize(user *users.User) string {
	return user.ID
}

// Deserialize はセッションのユーザー参照からユーザーを復元します。
func (m *SessionManager) Deserialize(ctx context.Context, key string) (*users.User, error) {
	if key == "" {
		return nil, ErrSessionInvalid
	}
	user, err := m.users.FindByID(ctx, key)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return nil, ErrSessionInvalid
		}
		return nil, fmt.Errorf("deserialize session user: %w", err)
	}
	return user, nil
}

// LogIn はログイン前のセッションを破棄し、新しいIDのセッションにユーザーを紐付けます。
// このリクエストでの最後のセッション書き込みである必要があります。
func (m *SessionManager) LogIn(c *gin.Context, user *users.User) error {
	previous := sessions.Default(c)
	previous.Clear()
	previous.Options(sessions.Options{Path: "/", MaxAge: -1, HttpOnly: true})
	if err := previous.Save(); err != nil {
		return fmt.Errorf("discard previous session: %w", err)
	}
	// 破棄用のクッキーは新しいセッションのクッキーで置き換える
	removeSetCookie(c.Writer.Header(), SessionCookieName)

	fresh := gsessions.NewSession(m.store, SessionCookieName)
	fresh.Options = &gsessions.Options{
		Path:     m.options.Path,
		MaxAge:   m.options.MaxAge,
		HttpOnly: m.options.HttpOnly,
		Secure:   m.options.Secure,
		SameSite: m.options.SameSite,
	}
	fresh.Values[sessionKeyUser] = m.Serialize(user)
	fresh.Values[sessionKeyIssuedAt] = m.now().Unix()
	if err := m.store.Save(c.Request, c.Writer, fresh); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	c.Set(ContextUserKey, user)
	return nil
}

// LogOut はサーバー側のセッションを破棄し、クッキーを失効させます。
func (m *SessionManager) LogOut(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	if err := session.Save(); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	c.Set(ContextUserKey, (*users.User)(nil))
	return nil
}

// Middleware はリクエストごとにセッションからユーザーを復元するミドルウェアです。
// 発行から MaxAge を過ぎたセッションや、参照先のユーザーが消えているセッションは
// 無効化して匿名として続行します。
func (m *SessionManager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		key, _ := session.Get(sessionKeyUser).(string)
		if key == "" {
			c.Next()
			return
		}

		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		if issuedAt.IsZero() || m.now().Sub(issuedAt) > m.maxAge {
			m.logs.Infow("dropping expired session", "user_id", key, "issued_at", issuedAt)
			m.dropUser(session)
			c.Next()
			return
		}

		user, err := m.Deserialize(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, ErrSessionInvalid) {
				m.logs.Infow("dropping session with dangling user reference", "user_id", key)
				m.dropUser(session)
				c.Next()
				return
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Next()
	}
}

func (m *SessionManager) dropUser(session sessions.Session) {
	session.Delete(sessionKeyUser)
	session.Delete(sessionKeyIssuedAt)
	if err := session.Save(); err != nil {
		m.logs.Errorw("failed to save session", "error", err)
	}
}

// Flash はセッションに一度だけ表示するメッセージを追加します。
func (m *SessionManager) Flash(c *gin.Context, message string) error {
	session := sessions.Default(c)
	session.AddFlash(message)
	return session.Save()
}

// Flashes は保存済みのメッセージを取り出して消去します。
func (m *SessionManager) Flashes(c *gin.Context) []string {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		m.logs.Errorw("failed to save session", "error", err)
	}

	messages := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

// CurrentUser はログイン済みユーザーを返します。匿名の場合は false です。
func CurrentUser(c *gin.Context) (*users.User, bool) {
	v, ok := c.Get(ContextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*users.User)
	if !ok || user == nil {
		return nil, false
	}
	return user, true
}

func readUnix(v any) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}

func removeSetCookie(header http.Header, name string) {
	var kept []string
	for _, v := range header.Values("Set-Cookie") {
		if !strings.HasPrefix(v, name+"=") {
			kept = append(kept, v)
		}
	}
	header.Del("Set-Cookie")
	for _, v := range kept {
		header.Add("Set-Cookie", v)
	}
}
