package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/grainhub/warehouse-backend/api/validators"
	"github.com/grainhub/warehouse-backend/pkg/enums"
	pkgerrors "github.com/grainhub/warehouse-backend/pkg/errors"
)

const actionPath = "/api/v1/transactions/deposit/0b7c3a8e-3f0e-4a0c-9a51-0d8f6f6f3a10/action"

type fakeStore struct {
	data map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string)}
}

func (f *fakeStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := f.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := f.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	f.data[key] = str
	return true, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	str, _ := value.(string)
	f.data[key] = str
	return nil
}

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("fake:%s:%s", scope, id)
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.data, key)
	}
	return nil
}

func actorRequest(method, url, body string, actor uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	return req.WithContext(WithActor(req.Context(), actor, enums.ActorRoleSupervisor))
}

func TestRouteTTLSelection(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		want   time.Duration
		ok     bool
	}{
		{"request creation", http.MethodPost, "/api/v1/transactions/deposit", requestIdempotencyTTL, true},
		{"request creation trailing slash", http.MethodPost, "/api/v1/transactions/sell/", requestIdempotencyTTL, true},
		{"approval action", http.MethodPost, actionPath, actionIdempotencyTTL, true},
		{"list is read only", http.MethodGet, "/api/v1/transactions/deposit", 0, false},
		{"detail is read only", http.MethodGet, "/api/v1/transactions/deposit/abc", 0, false},
		{"unknown post", http.MethodPost, "/api/v1/transactions/deposit/abc/cancel", 0, false},
		{"ledger read", http.MethodPost, "/api/v1/ledgers/abc", 0, false},
	}

	for _, tt := range tests {
		ttl, ok := routeTTL(tt.method, tt.path)
		if ok != tt.ok {
			t.Fatalf("%s: expected ok=%v got %v", tt.name, tt.ok, ok)
		}
		if ok && ttl != tt.want {
			t.Fatalf("%s: expected ttl=%v got %v", tt.name, tt.want, ttl)
		}
	}
}

func TestIdempotencyMiddlewareRequiresHeader(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run without idempotency key")
	}
}

func TestIdempotencyMiddlewareReplaysStoredResponse(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	actor := uuid.New()
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{"message":"deposit approved by supervisor"}}`))
	})

	first := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
	first.Header.Set("Idempotency-Key", "abc")
	mw(handler).ServeHTTP(httptest.NewRecorder(), first)

	replay := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
	replay.Header.Set("Idempotency-Key", "abc")
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, replay)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected replay status 200 got %d", rec.Code)
	}
	if rec.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected replay marker header")
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Fatalf("expected content-type header preserved")
	}
	if !strings.Contains(rec.Body.String(), "deposit approved by supervisor") {
		t.Fatalf("expected stored body got %s", rec.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler executed %d times, expected 1", calls)
	}
}

func TestIdempotencyKeysAreScopedPerUser(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	var calls int
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	})

	for _, actor := range []uuid.UUID{uuid.New(), uuid.New()} {
		req := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
		req.Header.Set("Idempotency-Key", "shared")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", calls)
	}
}

func TestIdempotencyMiddlewareSkipsServerErrors(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	req := actorRequest(http.MethodPost, "/api/v1/transactions/withdraw", `{}`, uuid.New())
	req.Header.Set("Idempotency-Key", "retry-me")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	if len(store.data) != 0 {
		t.Fatalf("expected no stored record for a 503, got %d", len(store.data))
	}
}

func TestIdempotencyMiddlewareDetectsBodyChange(t *testing.T) {
	mw := Idempotency(newFakeStore(), nil)
	actor := uuid.New()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
	req.Header.Set("Idempotency-Key", "xyz")
	mw(handler).ServeHTTP(httptest.NewRecorder(), req)

	replay := actorRequest(http.MethodPost, actionPath, `{"action":"reject"}`, actor)
	replay.Header.Set("Idempotency-Key", "xyz")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, replay)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d", resp.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if payload.Error.Code != string(pkgerrors.CodeIdempotency) {
		t.Fatalf("expected error code %s got %s", pkgerrors.CodeIdempotency, payload.Error.Code)
	}
}

func TestIdempotencyMiddlewareCapsBodySize(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	oversized := `{"lines":"` + strings.Repeat("x", validators.MaxBodyBytes) + `"}`
	req := actorRequest(http.MethodPost, "/api/v1/transactions/deposit", oversized, uuid.New())
	req.Header.Set("Idempotency-Key", "big")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if handlerCalled {
		t.Fatalf("handler should not run for an oversized body")
	}
	if len(store.data) != 0 {
		t.Fatalf("expected nothing stored, got %d", len(store.data))
	}
	if !strings.Contains(resp.Body.String(), "request body too large") {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestIdempotencyMiddlewareRejectsConcurrentDuplicate(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	actor := uuid.New()

	var inner *httptest.ResponseRecorder
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dup := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
		dup.Header.Set("Idempotency-Key", "double")
		inner = httptest.NewRecorder()
		Idempotency(store, nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatalf("duplicate submit reached the handler")
		})).ServeHTTP(inner, dup)
		w.WriteHeader(http.StatusOK)
	})

	req := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
	req.Header.Set("Idempotency-Key", "double")
	resp := httptest.NewRecorder()
	mw(handler).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected first submit to succeed, got %d", resp.Code)
	}
	if inner.Code != http.StatusConflict || !strings.Contains(inner.Body.String(), "still in progress") {
		t.Fatalf("expected in-progress conflict, got %d %s", inner.Code, inner.Body.String())
	}

	replay := actorRequest(http.MethodPost, actionPath, `{"action":"approve"}`, actor)
	replay.Header.Set("Idempotency-Key", "double")
	after := httptest.NewRecorder()
	mw(handler).ServeHTTP(after, replay)
	if after.Header().Get("Idempotent-Replay") != "true" {
		t.Fatalf("expected stored response after the claim resolved")
	}
}

func TestIdempotencyMiddlewareReleasesClaimOnServerError(t *testing.T) {
	store := newFakeStore()
	mw := Idempotency(store, nil)
	actor := uuid.New()
	calls := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	for i := 0; i < 2; i++ {
		req := actorRequest(http.MethodPost, "/api/v1/transactions/deposit", `{}`, actor)
		req.Header.Set("Idempotency-Key", "again")
		mw(handler).ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("expected retry after 503 to run the handler, got %d calls", calls)
	}
	if len(store.data) != 1 {
		t.Fatalf("expected the 201 to be stored, got %d records", len(store.data))
	}
}
