package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ksh277/Travleap-sub004/internal/auth"
	"github.com/ksh277/Travleap-sub004/internal/port"
	"github.com/ksh277/Travleap-sub004/pkg/logger"
)

const (
	// IdempotencyKeyHeader carries the client-generated token on designated
	// mutating endpoints.
	IdempotencyKeyHeader = "Idempotency-Key"

	// ReplayHeader marks a response served from the idempotency cache.
	ReplayHeader = "X-Idempotent-Replay"

	identityContextKey = "caller_identity"
)

// AuthMiddleware extracts the caller identity from a bearer token when one
// is present. Requests without a token proceed anonymously; channel- and
// booking-level checks happen downstream.
func AuthMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			c.Abort()
			return
		}
		id, err := verifier.Verify(tokenStr)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}
		c.Set(identityContextKey, id)
		c.Next()
	}
}

// CallerIdentity returns the authenticated identity, or nil for anonymous
// requests.
func CallerIdentity(c *gin.Context) *auth.Identity {
	if v, exists := c.Get(identityContextKey); exists {
		if id, ok := v.(*auth.Identity); ok {
			return id
		}
	}
	return nil
}

// bufferingWriter captures the response so it can be recorded for replay.
type bufferingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferingWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *bufferingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware guarantees at-most-once side effects for retried
// mutating requests. The token must be a well-formed UUID; the cache key is
// scoped by route and caller so colliding tokens from different users never
// replay each other's responses. Only 2xx/3xx outcomes are recorded, so a
// failed attempt can be retried under the same token. Cache writes happen
// off the critical path and a cache failure never fails the request.
func IdempotencyMiddleware(store port.IdempotencyStore, log *logger.Logger, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.GetHeader(IdempotencyKeyHeader)
		if token == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": IdempotencyKeyHeader + " header is required"})
			c.Abort()
			return
		}
		if _, err := uuid.Parse(token); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": IdempotencyKeyHeader + " must be a valid UUID"})
			c.Abort()
			return
		}

		key := idempotencyCacheKey(c.Request.Method, c.FullPath(), CallerIdentity(c), token)

		rec, err := store.Get(c.Request.Context(), key)
		if err != nil {
			// Losing idempotency protection is a lesser risk than failing
			// the booking; proceed without the cache.
			log.Warnw("idempotency cache unavailable, proceeding without replay protection",
				"key", key, "error", err)
		}
		if rec != nil {
			for name, values := range rec.Header {
				for _, v := range values {
					c.Writer.Header().Add(name, v)
				}
			}
			c.Writer.Header().Set(ReplayHeader, "true")
			c.Data(rec.StatusCode, rec.Header.Get("Content-Type"), rec.Body)
			c.Abort()
			return
		}

		writer := &bufferingWriter{ResponseWriter: c.Writer}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 400 {
			return
		}

		record := &port.IdempotencyRecord{
			StatusCode: status,
			Header:     writer.Header().Clone(),
			Body:       writer.body.Bytes(),
			CreatedAt:  time.Now().UTC(),
		}
		record.Header.Del(ReplayHeader)

		// Asynchronous: recording must not add latency to the response.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Put(ctx, key, record, ttl); err != nil {
				log.Errorw("failed to record idempotent response", "key", key, "error", err)
			}
		}()
	}
}

// idempotencyCacheKey derives the cache key from the token, the route and
// the caller identity.
func idempotencyCacheKey(method, route string, id *auth.Identity, token string) string {
	caller := "anon"
	if id != nil && id.UserID != "" {
		caller = id.UserID
	}
	return fmt.Sprintf("idem:%s %s:%s:%s", method, route, caller, token)
}
