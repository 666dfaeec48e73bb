package daemon

import (
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/esoh/pkg/types"
)

const (
	requestIDHeader = "X-Request-Id"
	requestIDKey    = "requestId"
)

// Logger is the logrus logger handler
func ginLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// other handler can change c.Path so:
		path := c.Request.URL.Path
		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		entry := logger.WithFields(logrus.Fields{
			"statusCode": statusCode,
			"latency":    latency, // time to process
			"method":     c.Request.Method,
			"path":       path,
			"dataLength": dataLength,
			"requestId":  c.GetString(requestIDKey),
		})

		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
		} else {
			msg := fmt.Sprintf("%s %s %d (%dms)", c.Request.Method, path, statusCode, latency)
			//nolint:gocritic
			if statusCode >= http.StatusInternalServerError {
				entry.Error(msg)
			} else if statusCode >= http.StatusBadRequest {
				entry.Warn(msg)
			} else {
				entry.Debug(msg)
			}
		}
	}
}

// requestID reuses the caller's X-Request-Id or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// maxRequestBody bounds request bodies. Sweep grids are the largest ones.
const maxRequestBody = 1 << 20

// limitBody caps the request body at maxRequestBody bytes.
func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxRequestBody)
		}
		c.Next()
	}
}

// rateLimit rejects clients that exceed their token bucket.
func rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			// Unix socket peers have no address.
			key = "local"
		}
		if !limiter.Allow(key) {
			mtr.RateLimitedTotal.Inc()
			c.Header("Retry-After", "1")
			abortWithError(c, http.StatusTooManyRequests, types.ErrorKindRateLimited, fmt.Errorf("too many requests, try again later"))
			return
		}
		c.Next()
	}
}

// abortWithError writes err as a JSON error body and records it on c.
func abortWithError(c *gin.Context, status int, kind string, err error) {
	c.IndentedJSON(status, types.ErrorResponse{Error: err.Error(), Kind: kind})
	_ = c.AbortWithError(status, err)
}
