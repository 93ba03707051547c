package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"wallet_settlement/internal/cache"

	"github.com/gin-gonic/gin"
)

const IdempotencyHeader = "Idempotency-Key"

// IdempotencyStore is the subset of the redis client the middleware needs.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type idempotencyRecord struct {
	Pending     bool   `json:"pending,omitempty"`
	Status      int    `json:"status,omitempty"`
	Body        string `json:"body,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	RequestHash string `json:"request_hash"`
}

// Idempotency replays the stored response when a POST is retried with the
// same Idempotency-Key and body. Requests without the header pass through.
// Server errors and panics release the key so the client can retry.
func Idempotency(store IdempotencyStore, ttl time.Duration, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if store == nil || key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		if len(key) > 128 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Idempotency-Key too long"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "read request"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ctx := c.Request.Context()
		requestHash := hashBody(body)
		storeKey := store.IdempotencyKey(scope(c), key)

		stored, err := store.Get(ctx, storeKey)
		switch {
		case errors.Is(err, cache.ErrMiss):
		case err != nil:
			logger.Error("Idempotency lookup failed", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
			return
		default:
			replay(c, stored, requestHash, logger)
			return
		}

		pending, _ := json.Marshal(idempotencyRecord{Pending: true, RequestHash: requestHash})
		won, err := store.SetNX(ctx, storeKey, string(pending), ttl)
		if err != nil {
			logger.Error("Idempotency reservation failed", slog.Any("err", err))
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
			return
		}
		if !won {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress"})
			return
		}

		// Persist even if the client already disconnected.
		saveCtx := context.WithoutCancel(ctx)
		release := func() {
			if err := store.Del(saveCtx, storeKey); err != nil {
				logger.Warn("Failed to release idempotency key", slog.Any("err", err))
			}
		}
		defer func() {
			if p := recover(); p != nil {
				release()
				panic(p)
			}
		}()

		capture := &responseCapture{ResponseWriter: c.Writer}
		c.Writer = capture
		c.Next()

		status := capture.Status()
		if status >= http.StatusInternalServerError {
			release()
			return
		}
		payload, err := json.Marshal(idempotencyRecord{
			Status:      status,
			Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
			ContentType: capture.Header().Get("Content-Type"),
			RequestHash: requestHash,
		})
		if err != nil {
			logger.Error("Failed to encode idempotency record", slog.Any("err", err))
			return
		}
		if err := store.Set(saveCtx, storeKey, string(payload), ttl); err != nil {
			logger.Warn("Failed to persist idempotency record", slog.Any("err", err))
		}
	}
}

func replay(c *gin.Context, stored, requestHash string, logger *slog.Logger) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(stored), &record); err != nil {
		logger.Error("Corrupt idempotency record", slog.Any("err", err))
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "idempotency store unavailable"})
		return
	}
	if record.RequestHash != requestHash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": "Idempotency-Key reused with a different request body"})
		return
	}
	if record.Pending {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "request with this Idempotency-Key is in progress"})
		return
	}
	body, err := base64.StdEncoding.DecodeString(record.Body)
	if err != nil {
		body = nil
	}
	contentType := record.ContentType
	if contentType == "" {
		contentType = "application/json; charset=utf-8"
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(record.Status, contentType, body)
	c.Abort()
}

func scope(c *gin.Context) string {
	caller := ""
	if id, ok := UserID(c); ok {
		caller = id.String()
	}
	return strings.Join([]string{caller, c.Request.Method, c.Request.URL.Path}, "|")
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

type responseCapture struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseCapture) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseCapture) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
