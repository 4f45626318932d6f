package web

import (
	"errors"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/passgate/internal/auth"
	"github.com/yourusername/passgate/internal/logging"
)

// Dependencies はルーター構築に必要な部品です。すべて呼び出し側で生成して渡します。
type Dependencies struct {
	Accounts       SignUpService
	Authenticator  CredentialChecker
	Sessions       *auth.SessionManager
	Throttle       auth.Throttle
	Logs           *zap.SugaredLogger
	AllowedOrigins []string
	Version        string
}

// NewRouter はミドルウェアとルートを登録した gin.Engine を返します。
func NewRouter(deps Dependencies) (*gin.Engine, error) {
	if deps.Accounts == nil || deps.Authenticator == nil || deps.Sessions == nil ||
		deps.Throttle == nil || deps.Logs == nil {
		return nil, errors.New("web: missing router dependency")
	}

	tmpl, err := ParseTemplates()
	if err != nil {
		return nil, err
	}

	router := gin.New()
	router.SetHTMLTemplate(tmpl)
	router.Use(logging.RequestLogger(deps.Logs), gin.Recovery())

	if len(deps.AllowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = deps.AllowedOrigins
		corsConfig.AllowCredentials = true
		router.Use(cors.New(corsConfig))
	}

	router.Use(deps.Sessions.Sessions())
	router.Use(ErrorHandler(deps.Logs))
	router.Use(deps.Sessions.Middleware())

	h := &Handler{
		accounts: deps.Accounts,
		authn:    deps.Authenticator,
		sessions: deps.Sessions,
		throttle: deps.Throttle,
		logs:     deps.Logs,
		version:  deps.Version,
	}

	router.GET("/health", h.Health)
	router.GET("/", h.Index)
	router.GET("/sign-up", h.SignUpForm)
	router.POST("/sign-up", h.SignUp)
	router.POST("/log-in", h.LogIn)
	router.GET("/log-out", h.LogOut)

	return router, nil
}
