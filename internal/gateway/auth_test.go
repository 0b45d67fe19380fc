package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthenticateMissingHeader(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/proxy/example/get", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "missing x-relaykey") {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if n := len(f.usage.all()); n != 0 {
		t.Fatalf("usage events = %d, want 0 for auth failure", n)
	}
}

func TestAuthenticateUnknownKey(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/proxy/example/get", nil)
	req.Header.Set("x-relaykey", "rk_test_not_a_real_key")
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid virtual key") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAuthenticateDisabledKey(t *testing.T) {
	f := newFixture("http://upstream.test")
	f.store.keysByHash[f.vk.KeyHash].Enabled = false

	rec := f.do(http.MethodGet, "/proxy/example/get", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "virtual key disabled") {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if n := len(f.usage.all()); n != 0 {
		t.Fatalf("usage events = %d, want 0", n)
	}
}

func TestAuthenticateStoreErrorFailsClosed(t *testing.T) {
	f := newFixture("http://upstream.test")
	f.store.keyErr = errors.New("connection refused")

	rec := f.do(http.MethodGet, "/proxy/example/get", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "db error") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestAuthenticateMissingPolicy(t *testing.T) {
	f := newFixture("http://upstream.test")
	delete(f.srv.policies.(*fakePolicies).policies, f.vk.PolicyID)

	rec := f.do(http.MethodGet, "/proxy/example/get", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "policy not found") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRequireAdminUnconfigured(t *testing.T) {
	f := newFixture("http://upstream.test")
	f.srv.adminToken = ""

	req := httptest.NewRequest(http.MethodGet, "/admin/virtual-keys", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "admin not configured") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestRequireAdminWrongToken(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/admin/virtual-keys", nil)
	req.Header.Set("x-admin-token", "wrong")
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRequestIDEchoedAndGenerated(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-abc-123")
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-Id"); got != "req-abc-123" {
		t.Fatalf("request id = %q, want echo of client value", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	rec = httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected a generated request id")
	}
}

func TestHealth(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestReadyReportsCacheFailure(t *testing.T) {
	f := newFixture("http://upstream.test")
	f.srv.cachePing = func(ctx context.Context) error {
		return errors.New("redis: connection refused")
	}

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "redis not ready") {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestReadyOK(t *testing.T) {
	f := newFixture("http://upstream.test")

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "ready" {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}
