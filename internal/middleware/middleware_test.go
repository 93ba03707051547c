package middleware

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"wallet_settlement/internal/cache"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrMiss
	}
	return v, nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = fmt.Sprint(value)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func authedRouter(handler gin.HandlerFunc, extra ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	chain := append([]gin.HandlerFunc{Auth(testSecret)}, extra...)
	chain = append(chain, handler)
	r.POST("/x", chain...)
	r.GET("/x", chain...)
	return r
}

func bearer(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, role, time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestAuth_SetsCaller(t *testing.T) {
	userID := uuid.New()
	r := authedRouter(func(c *gin.Context) {
		id, ok := UserID(c)
		assert.True(t, ok)
		c.String(http.StatusOK, id.String())
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", bearer(t, userID, RoleUser))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String(), w.Body.String())
}

func TestAuth_Rejects(t *testing.T) {
	r := authedRouter(func(c *gin.Context) { c.Status(http.StatusOK) })
	expired, err := IssueToken(testSecret, uuid.New(), RoleUser, -time.Minute)
	require.NoError(t, err)
	foreign, err := IssueToken("other-secret", uuid.New(), RoleUser, time.Minute)
	require.NoError(t, err)

	cases := map[string]string{
		"missing":      "",
		"not bearer":   "Basic abc",
		"garbage":      "Bearer not-a-token",
		"expired":      "Bearer " + expired,
		"wrong secret": "Bearer " + foreign,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestAdminGuard(t *testing.T) {
	r := authedRouter(func(c *gin.Context) { c.Status(http.StatusNoContent) }, AdminGuard())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), RoleUser))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", bearer(t, uuid.New(), RoleAdmin))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := authedRouter(func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"call": calls})
	}, Idempotency(store, time.Hour, testLogger))
	auth := bearer(t, uuid.New(), RoleAdmin)

	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(body))
		req.Header.Set("Authorization", auth)
		req.Header.Set(IdempotencyHeader, "key-1")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	first := send(`{"a":1}`)
	second := send(`{"a":1}`)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, 1, calls)

	mismatch := send(`{"a":2}`)
	assert.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_ServerErrorReleasesKey(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := authedRouter(func(c *gin.Context) {
		calls++
		if calls == 1 {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	}, Idempotency(store, time.Hour, testLogger))
	auth := bearer(t, uuid.New(), RoleAdmin)

	for _, want := range []int{http.StatusServiceUnavailable, http.StatusOK, http.StatusOK} {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set(IdempotencyHeader, "key-2")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotency_WithoutHeaderPassesThrough(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := authedRouter(func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	}, Idempotency(store, time.Hour, testLogger))
	auth := bearer(t, uuid.New(), RoleAdmin)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.Header.Set("Authorization", auth)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, store.data)
}

func TestIdempotency_PendingKeyConflicts(t *testing.T) {
	store := newMemoryStore()
	userID := uuid.New()
	r := authedRouter(func(c *gin.Context) { c.Status(http.StatusOK) }, Idempotency(store, time.Hour, testLogger))

	// Simulate a first request still in flight.
	key := store.IdempotencyKey(userID.String()+"|POST|/x", "key-3")
	store.data[key] = `{"pending":true,"request_hash":"` + hashBody([]byte(`{}`)) + `"}`

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, userID, RoleAdmin))
	req.Header.Set(IdempotencyHeader, "key-3")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_PanicReleasesKey(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	r := gin.New()
	r.Use(gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, _ any) {
		c.AbortWithStatus(http.StatusInternalServerError)
	}))
	r.POST("/x", Auth(testSecret), Idempotency(store, time.Hour, testLogger), func(c *gin.Context) {
		calls++
		if calls == 1 {
			panic("handler bug")
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	auth := bearer(t, uuid.New(), RoleAdmin)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set(IdempotencyHeader, "key-panic")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusInternalServerError, send().Code)
	assert.Empty(t, store.data)
	assert.Equal(t, http.StatusOK, send().Code)
	assert.Equal(t, 2, calls)
}
