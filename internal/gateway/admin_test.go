package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

func adminRequest(t *testing.T, f *fixture, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("x-admin-token", "test-admin-token")
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}

func TestCreateVirtualKey(t *testing.T) {
	f := newFixture("http://upstream.test")

	body := `{"name":"ci-bot","environment":"live","tags":["ci","bot"],"policy_id":"` + f.policy.ID.String() + `"}`
	rec := adminRequest(t, f, http.MethodPost, "/admin/virtual-keys", body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}

	var resp createVirtualKeyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ID == uuid.Nil {
		t.Fatal("response id is nil")
	}
	if !strings.HasPrefix(resp.Key, "rk_live_") {
		t.Fatalf("key = %q, want rk_live_ prefix", resp.Key)
	}

	if len(f.store.inserted) != 1 {
		t.Fatalf("inserted = %d rows, want 1", len(f.store.inserted))
	}
	row := f.store.inserted[0]
	if row.Name != "ci-bot" || row.Environment != "live" || row.PolicyID != f.policy.ID {
		t.Fatalf("row = %+v", row)
	}
	// Only the hash is stored, and it must match the returned plaintext.
	if row.KeyHash != keyhash.Sum(testSalt, resp.Key) {
		t.Fatal("stored hash does not match returned key")
	}
	if row.KeyHash == resp.Key {
		t.Fatal("plaintext key was stored")
	}
}

func TestCreateVirtualKeyValidation(t *testing.T) {
	f := newFixture("http://upstream.test")

	cases := []struct {
		name string
		body string
		want string
	}{
		{"bad json", "{", "invalid request body"},
		{"missing name", `{"environment":"live","policy_id":"` + f.policy.ID.String() + `"}`, "name is required"},
		{"missing environment", `{"name":"x","policy_id":"` + f.policy.ID.String() + `"}`, "environment is required"},
		{"bad policy id", `{"name":"x","environment":"live","policy_id":"nope"}`, "invalid policy_id"},
		{"unknown policy", `{"name":"x","environment":"live","policy_id":"` + uuid.NewString() + `"}`, "policy not found"},
	}
	for _, tc := range cases {
		rec := adminRequest(t, f, http.MethodPost, "/admin/virtual-keys", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tc.want) {
			t.Errorf("%s: body = %q, want %q", tc.name, rec.Body.String(), tc.want)
		}
	}
	if len(f.store.inserted) != 0 {
		t.Fatalf("inserted = %d rows, want 0", len(f.store.inserted))
	}
}

func TestListVirtualKeys(t *testing.T) {
	f := newFixture("http://upstream.test")
	now := time.Now().UTC().Truncate(time.Second)
	f.store.listed = []store.VirtualKey{
		{ID: uuid.New(), Name: "a", Environment: "live", Tags: []string{"t1"}, KeyHash: "secret-hash", Enabled: true, PolicyID: f.policy.ID, CreatedAt: now},
		{ID: uuid.New(), Name: "b", Environment: "test", Enabled: false, PolicyID: f.policy.ID, CreatedAt: now},
	}

	rec := adminRequest(t, f, http.MethodGet, "/admin/virtual-keys", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "secret-hash") {
		t.Fatal("key hash leaked in list response")
	}

	var out []virtualKeySummary
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("listed = %d, want 2", len(out))
	}
	if out[0].Name != "a" || !out[0].Enabled || out[1].Name != "b" || out[1].Enabled {
		t.Fatalf("out = %+v", out)
	}
	if out[1].Tags == nil || len(out[1].Tags) != 0 {
		t.Fatalf("nil tags should serialize as empty list, got %+v", out[1].Tags)
	}
}
