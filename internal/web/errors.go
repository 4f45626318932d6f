package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorHandler はハンドラーが c.Error で渡したエラーをログに出し、
// まだ何も書き込まれていなければ詳細を伏せた 500 を返します。
func ErrorHandler(logs *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		for _, e := range c.Errors {
			logs.Errorw("request failed",
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"error", e.Err,
			)
		}
		if c.Writer.Written() {
			return
		}
		c.String(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}
