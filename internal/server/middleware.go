package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/gin-gonic/gin"

	"kaomi/internal/generated"
)

// requestLogger はリクエストごとにアクセスログを出すミドルウェア
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"bytes", c.Writer.Size(),
			"latency", time.Since(start),
			"remote", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("リクエスト", attrs...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("リクエスト", attrs...)
		default:
			logger.Info("リクエスト", attrs...)
		}
	}
}

// requestValidator はOpenAPI定義に沿ってリクエストを検証するミドルウェア
// 定義にないパスはそのまま通す
func requestValidator(router routers.Router) gin.HandlerFunc {
	return func(c *gin.Context) {
		route, pathParams, err := router.FindRoute(c.Request)
		if err != nil {
			// 未定義のパスやメソッドはginの404/405に任せる
			var routeErr *routers.RouteError
			if errors.As(err, &routeErr) {
				c.Next()
				return
			}
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		input := &openapi3filter.RequestValidationInput{
			Request:    c.Request,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(c.Request.Context(), input); err != nil {
			abortWithError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		c.Next()
	}
}

// abortWithError はエラーレスポンスを返して処理を中断する
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, generated.ErrorResponse{
		Error:     code,
		Message:   message,
		Timestamp: time.Now(),
	})
}
