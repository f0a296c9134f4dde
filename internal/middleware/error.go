package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error, unless the
// handler already wrote a response.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		RenderError(c, c.Errors.Last().Err)
	}
}

// RenderError writes err as {"error":{"code","message"}}. Internal causes are logged
// with the request id and never sent to the client. A version conflict carries a
// Retry-After hint because the aggregate is usually settled on the next attempt.
func RenderError(c *gin.Context, err error) {
	log := logger.Named("http").With(
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"request_id", c.Writer.Header().Get("X-Request-ID"),
	)

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		log.Errorw("unexpected error", "error", err)
		appErr = apperrors.ErrInternalServer
	} else if appErr.Internal != nil {
		log.Errorw("request failed", "code", appErr.Code, "internal", appErr.Internal.Error())
	}

	if errors.Is(appErr, apperrors.ErrVersionConflict) {
		c.Header("Retry-After", "1")
	}
	c.AbortWithStatusJSON(appErr.StatusCode, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
		},
	})
}
