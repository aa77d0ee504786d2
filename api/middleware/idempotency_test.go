package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wildroots/wildroots-backend/pkg/errors"
)

type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
	ops  []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "setnx")
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "set")
	str, _ := value.(string)
	f.data[key] = str
	f.ttls[key] = ttl
	return nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, "del")
	for _, key := range keys {
		delete(f.data, key)
		delete(f.ttls, key)
	}
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return "fake:" + scope + ":" + id
}

func (f *fakeStore) only(t *testing.T) (string, time.Duration) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Len(t, f.data, 1)
	for key, value := range f.data {
		return value, f.ttls[key]
	}
	return "", 0
}

var testPolicy = IdempotencyPolicy{Scope: "checkout", TTL: time.Hour}

func checkoutRequest(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/donations/checkout", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload.Error.Code
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	called := false
	handler := Idempotency(newFakeStore(), testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, strings.Repeat("k", maxIdempotencyKeyLength+1)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, called)
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"donationId":"d-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest(`{"amount":500}`, "abc"))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Empty(t, first.Header().Get(IdempotentReplayHeader))

	stored, ttl := store.only(t)
	assert.Equal(t, time.Hour, ttl)
	assert.Contains(t, stored, `"state":"complete"`)
	// the in-flight marker is overwritten, never deleted first
	assert.Equal(t, []string{"setnx", "set"}, store.ops)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest(`{"amount":500}`, "abc"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))
	assert.Equal(t, "true", second.Header().Get(IdempotentReplayHeader))
	assert.JSONEq(t, `{"donationId":"d-1"}`, second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotencyRejectsChangedBody(t *testing.T) {
	handler := Idempotency(newFakeStore(), testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(`{"amount":500}`, "xyz"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":900}`, "xyz"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))
}

func TestIdempotencyRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := Idempotency(store, testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusCreated)
	}))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, "dup"))
		done <- rec.Code
	}()
	<-entered

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, "dup"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(pkgerrors.CodeIdempotency), errorCode(t, rec))

	close(release)
	assert.Equal(t, http.StatusCreated, <-done)
}

func TestIdempotencyForgetsServerErrors(t *testing.T) {
	store := newFakeStore()
	status := http.StatusServiceUnavailable
	var calls int
	handler := Idempotency(store, testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(status)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, "retry-me"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, store.data)

	status = http.StatusCreated
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest(`{"amount":500}`, "retry-me"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 2, calls)
}

func TestIdempotencyKeysAreScopedByPath(t *testing.T) {
	store := newFakeStore()
	var calls int
	handler := Idempotency(store, IdempotencyPolicy{Scope: "project-owner"}, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for _, path := range []string{"/api/v1/projects/a/pause", "/api/v1/projects/b/pause"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set(IdempotencyKeyHeader, "same")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Len(t, store.data, 2)
	for key, ttl := range store.ttls {
		assert.True(t, strings.HasPrefix(key, "fake:project-owner|/api/v1/projects/"))
		assert.Equal(t, 24*time.Hour, ttl)
	}
}

func TestIdempotencyPassThroughWithoutStore(t *testing.T) {
	var called bool
	handler := Idempotency(nil, testPolicy, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest(`{}`, ""))
	assert.True(t, called)
}
