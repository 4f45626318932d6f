// Package web は画面とフォーム送信のHTTPハンドラーを提供します。
package web

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/account"
	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/users"
)

// 画面に出すログイン失敗メッセージ。失敗理由はログにのみ残す。
const (
	msgLoginFailed = "Incorrect username or password"
	msgLoginLocked = "Too many failed login attempts. Try again in %d minutes."
	msgUserExists  = "user exists!"
)

// SignUpService はユーザー登録を行うサービスが実装します。
type SignUpService interface {
	SignUp(ctx context.Context, username, password string) (*users.User, error)
}

// CredentialChecker は資格情報を検証するサービスが実装します。
type CredentialChecker interface {
	Authenticate(ctx context.Context, username, password string) (*users.User, error)
}

// Handler は各ルートのハンドラーをまとめたものです。
type Handler struct {
	accounts SignUpService
	authn    CredentialChecker
	sessions *auth.SessionManager
	throttle auth.Throttle
	logs     *zap.SugaredLogger
	version  string
}

// Index は GET / のハンドラーです。ログイン済みならユーザー名を表示します。
func (h *Handler) Index(c *gin.Context) {
	user, _ := auth.CurrentUser(c)
	c.HTML(http.StatusOK, "index.html", gin.H{
		"User":    user,
		"Flashes": h.sessions.Flashes(c),
	})
}

// SignUpForm は GET /sign-up のハンドラーです。
func (h *Handler) SignUpForm(c *gin.Context) {
	c.HTML(http.StatusOK, "sign-up-form.html", nil)
}

// SignUp は POST /sign-up のハンドラーです。登録後は自動ログインせず / へ戻します。
func (h *Handler) SignUp(c *gin.Context) {
	_, err := h.accounts.SignUp(c.Request.Context(), c.PostForm("username"), c.PostForm("password"))

	var validationErr *account.ValidationError
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, "/")
	case errors.Is(err, account.ErrDuplicateUsername):
		c.String(http.StatusOK, msgUserExists)
	case errors.As(err, &validationErr):
		c.String(http.StatusBadRequest, validationErr.Error())
	default:
		_ = c.Error(err)
	}
}

// LogIn は POST /log-in のハンドラーです。結果にかかわらず / へリダイレクトします。
func (h *Handler) LogIn(c *gin.Context) {
	ctx := c.Request.Context()
	clientIP := c.ClientIP()

	wait, err := h.throttle.Check(ctx, clientIP)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if wait > 0 {
		h.logs.Infow("login rejected: client locked", "client_ip", clientIP, "retry_after", wait)
		h.flash(c, fmt.Sprintf(msgLoginLocked, minutesCeil(wait)))
		c.Redirect(http.StatusFound, "/")
		return
	}

	username := c.PostForm("username")
	user, err := h.authn.Authenticate(ctx, username, c.PostForm("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			_ = c.Error(err)
			return
		}

		remaining, throttleErr := h.throttle.RecordFailure(ctx, clientIP)
		if throttleErr != nil {
			_ = c.Error(throttleErr)
			return
		}
		h.logs.Infow("login failed",
			"reason", err.Error(),
			"username", username,
			"client_ip", clientIP,
			"remaining_attempts", remaining,
		)
		h.flash(c, msgLoginFailed)
		c.Redirect(http.StatusFound, "/")
		return
	}

	if err := h.throttle.Reset(ctx, clientIP); err != nil {
		h.logs.Errorw("failed to reset login attempts", "client_ip", clientIP, "error", err)
	}
	if err := h.sessions.LogIn(c, user); err != nil {
		_ = c.Error(err)
		return
	}

	h.logs.Infow("login succeeded", "user_id", user.ID, "client_ip", clientIP)
	c.Redirect(http.StatusFound, "/")
}

// LogOut は GET /log-out のハンドラーです。
func (h *Handler) LogOut(c *gin.Context) {
	user, loggedIn := auth.CurrentUser(c)
	if err := h.sessions.LogOut(c); err != nil {
		_ = c.Error(err)
		return
	}
	if loggedIn {
		h.logs.Infow("logout", "user_id", user.ID)
	}
	c.Redirect(http.StatusFound, "/")
}

// Health はヘルスチェックエンドポイントのハンドラーです。
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "passgate",
		"version": h.version,
	})
}

func (h *Handler) flash(c *gin.Context, message string) {
	if err := h.sessions.Flash(c, message); err != nil {
		h.logs.Errorw("failed to store flash message", "error", err)
	}
}

func minutesCeil(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}
