package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"suivipro/internal/pkg/response"
)

// RequestLogger logs every request with its latency and recovers from panics.
// A missing X-Request-ID is filled in so client and server logs correlate.
func RequestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		defer func() {
			if recovered := recover(); recovered != nil {
				log.WithFields(logrus.Fields{
					"request_id": requestID,
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"panic":      fmt.Sprintf("%v", recovered),
					"stack":      string(debug.Stack()),
				}).Error("request panic")

				response.Error(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "Internal Server Error")
				c.Abort()
				return
			}

			entry := log.WithFields(logrus.Fields{
				"request_id": requestID,
				"method":     c.Request.Method,
				"path":       c.Request.URL.Path,
				"status":     c.Writer.Status(),
				"client_ip":  c.ClientIP(),
				"user_id":    c.GetInt64("user_id"),
				"latency":    time.Since(start).String(),
			})

			switch {
			case c.Writer.Status() >= http.StatusInternalServerError:
				entry.Error("request failed")
			case len(c.Errors) > 0:
				entry.WithField("errors", c.Errors.String()).Warn("request errors")
			default:
				entry.Debug("request")
			}
		}()

		c.Next()
	}
}
