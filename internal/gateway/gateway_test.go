package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/keyhash"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/retrypolicy"
	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

const (
	testSalt   = "test-salt"
	testRawKey = "rk_test_AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
)

// fakeStore serves fixtures keyed the way the real store is queried.
type fakeStore struct {
	keysByHash  map[string]*store.VirtualKey
	partners    map[string]*store.Partner
	credentials map[uuid.UUID]*store.Credential

	keyErr     error
	partnerErr error
	credErr    error

	inserted []store.VirtualKey
	listed   []store.VirtualKey
	listErr  error
}

func (f *fakeStore) VirtualKeyByHash(ctx context.Context, keyHash string) (*store.VirtualKey, error) {
	if f.keyErr != nil {
		return nil, f.keyErr
	}
	return f.keysByHash[keyHash], nil
}

func (f *fakeStore) PartnerByName(ctx context.Context, name string) (*store.Partner, error) {
	if f.partnerErr != nil {
		return nil, f.partnerErr
	}
	return f.partners[name], nil
}

func (f *fakeStore) CredentialForPartner(ctx context.Context, partnerID uuid.UUID) (*store.Credential, error) {
	if f.credErr != nil {
		return nil, f.credErr
	}
	return f.credentials[partnerID], nil
}

func (f *fakeStore) InsertVirtualKey(ctx context.Context, name, environment string, tags []string, keyHash string, policyID uuid.UUID) (uuid.UUID, error) {
	id := uuid.New()
	f.inserted = append(f.inserted, store.VirtualKey{
		ID: id, Name: name, Environment: environment, Tags: tags,
		KeyHash: keyHash, Enabled: true, PolicyID: policyID,
	})
	return id, nil
}

func (f *fakeStore) ListVirtualKeys(ctx context.Context) ([]store.VirtualKey, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listed, nil
}

func (f *fakeStore) Ping(ctx context.Context) error { return nil }

type fakePolicies struct {
	policies map[uuid.UUID]*store.Policy
	err      error
}

func (f *fakePolicies) Load(ctx context.Context, policyID uuid.UUID) (*store.Policy, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.policies[policyID], nil
}

type fakeRateLimiter struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeRateLimiter) Allow(ctx context.Context, vkID uuid.UUID, rate, capacity int32) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type fakeQuota struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeQuota) AllowAndIncr(ctx context.Context, vkID uuid.UUID, limit int32) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type fakeBudget struct {
	allowed bool
	calls   int
}

func (f *fakeBudget) AllowRetryDual(ctx context.Context, partnerName string, vkID uuid.UUID) retrypolicy.Decision {
	f.calls++
	if f.allowed {
		return retrypolicy.Decision{Allowed: true}
	}
	return retrypolicy.Decision{Allowed: false, Reason: "retry_budget_exhausted"}
}

type fakeUsage struct {
	mu     sync.Mutex
	events []store.UsageEvent
}

func (f *fakeUsage) Record(ctx context.Context, ev store.UsageEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
}

func (f *fakeUsage) all() []store.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.UsageEvent, len(f.events))
	copy(out, f.events)
	return out
}

// fixture bundles a wired test server with its fakes.
type fixture struct {
	srv     *Server
	store   *fakeStore
	rate    *fakeRateLimiter
	quota   *fakeQuota
	budget  *fakeBudget
	usage   *fakeUsage
	vk      store.VirtualKey
	policy  *store.Policy // shared with the policy loader; mutate before the request
	partner store.Partner
}

func i32(v int32) *int32 { return &v }

// newFixture wires a server around one enabled key, its policy, and one
// partner with a credential. baseURL is the partner origin; tests point
// it at an httptest server.
func newFixture(baseURL string) *fixture {
	policyID := uuid.New()
	partnerID := uuid.New()

	policy := store.Policy{
		ID:        policyID,
		Name:      "test-policy",
		RPSLimit:  i32(10),
		RPSBurst:  i32(20),
		TimeoutMS: 5000,
	}
	vk := store.VirtualKey{
		ID:          uuid.New(),
		Name:        "test-key",
		Environment: "test",
		KeyHash:     keyhash.Sum(testSalt, testRawKey),
		Enabled:     true,
		PolicyID:    policyID,
		CreatedAt:   time.Now().UTC(),
	}
	partner := store.Partner{ID: partnerID, Name: "example", BaseURL: baseURL}

	fs := &fakeStore{
		keysByHash:  map[string]*store.VirtualKey{vk.KeyHash: &vk},
		partners:    map[string]*store.Partner{"example": &partner},
		credentials: map[uuid.UUID]*store.Credential{partnerID: {HeaderName: "X-Upstream-Key", HeaderValue: "demo-upstream-secret"}},
	}
	fp := &fakePolicies{policies: map[uuid.UUID]*store.Policy{policyID: &policy}}
	rate := &fakeRateLimiter{allowed: true}
	quota := &fakeQuota{allowed: true}
	budget := &fakeBudget{allowed: true}
	usage := &fakeUsage{}

	srv := New(Deps{
		Log:         zerolog.Nop(),
		Store:       fs,
		Policies:    fp,
		RateLimit:   rate,
		Quota:       quota,
		RetryBudget: budget,
		RetryPolicy: retrypolicy.Policy{
			MaxAttempts: 2,
			BaseBackoff: time.Millisecond,
			MaxBackoff:  time.Millisecond,
		},
		Usage:      usage,
		KeySalt:    testSalt,
		AdminToken: "test-admin-token",
		Clock:      clockwork.NewRealClock(),
	})

	return &fixture{
		srv: srv, store: fs, rate: rate, quota: quota,
		budget: budget, usage: usage,
		vk: vk, policy: &policy, partner: partner,
	}
}

// proxyRequest builds an authenticated request through the full router.
func (f *fixture) do(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.Header.Set("x-relaykey", testRawKey)
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
	rec := httptest.NewRecorder()
	f.srv.Router().ServeHTTP(rec, req)
	return rec
}
