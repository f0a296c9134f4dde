package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "famfin/internal/errors"
	"famfin/internal/logger"
)

// FeedKeyHeader carries the shared key of the transaction feed integration.
const FeedKeyHeader = "X-API-Key"

// FeedAuthMiddleware admits webhook calls presenting feedKey. With no key configured
// the webhook is closed.
func FeedAuthMiddleware(feedKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if feedKey == "" {
			RenderError(c, apperrors.ErrFeedNotConfigured)
			return
		}
		presented := c.GetHeader(FeedKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(feedKey)) != 1 {
			logger.Named("feed").Warnw("rejected webhook call", "client_ip", c.ClientIP(), "key_present", presented != "")
			RenderError(c, apperrors.ErrInvalidFeedKey)
			return
		}
		c.Next()
	}
}
