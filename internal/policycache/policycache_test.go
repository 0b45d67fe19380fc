package policycache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SecondBreakfastLabs/relaykey-backend/internal/store"
)

type fakeCache struct {
	data    map[string]string
	sets    map[string]string
	setTTLs map[string]time.Duration
	getErr  error
	setErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string]string{}, sets: map[string]string{}, setTTLs: map[string]time.Duration{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, bool, error) {
	if f.getErr != nil {
		return "", false, f.getErr
	}
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeCache) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets[key] = value
	f.setTTLs[key] = ttl
	return nil
}

type fakePolicyStore struct {
	policy *store.Policy
	err    error
	loads  int
}

func (f *fakePolicyStore) PolicyByID(ctx context.Context, id uuid.UUID) (*store.Policy, error) {
	f.loads++
	return f.policy, f.err
}

func samplePolicy() *store.Policy {
	rps := int32(10)
	return &store.Policy{
		ID:                uuid.New(),
		Name:              "default",
		EndpointAllowlist: []string{"/v1/*"},
		RPSLimit:          &rps,
		TimeoutMS:         5000,
	}
}

func TestLoadCacheHitSkipsStore(t *testing.T) {
	p := samplePolicy()
	buf, _ := json.Marshal(p)
	fc := newFakeCache()
	fc.data[CacheKey(p.ID)] = string(buf)
	fs := &fakePolicyStore{policy: p}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.Name != "default" || got.TimeoutMS != 5000 {
		t.Fatalf("bad policy from cache: %+v", got)
	}
	if fs.loads != 0 {
		t.Fatalf("store consulted on cache hit: %d loads", fs.loads)
	}
}

func TestLoadMissFillsCache(t *testing.T) {
	p := samplePolicy()
	fc := newFakeCache()
	fs := &fakePolicyStore{policy: p}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || got.ID != p.ID {
		t.Fatalf("bad policy: %+v", got)
	}
	if fs.loads != 1 {
		t.Fatalf("expected one store load, got %d", fs.loads)
	}
	if _, ok := fc.sets[CacheKey(p.ID)]; !ok {
		t.Fatal("cache not filled after store hit")
	}
	if fc.setTTLs[CacheKey(p.ID)] != DefaultTTL {
		t.Fatalf("fill TTL = %v, want %v", fc.setTTLs[CacheKey(p.ID)], DefaultTTL)
	}
}

func TestLoadCacheErrorFallsThrough(t *testing.T) {
	p := samplePolicy()
	fc := newFakeCache()
	fc.getErr = errors.New("redis down")
	fs := &fakePolicyStore{policy: p}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("cache outage must not fail the load: %v", err)
	}
	if got == nil {
		t.Fatal("expected policy from store")
	}
}

func TestLoadDecodeErrorFallsThrough(t *testing.T) {
	p := samplePolicy()
	fc := newFakeCache()
	fc.data[CacheKey(p.ID)] = "{not json"
	fs := &fakePolicyStore{policy: p}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || fs.loads != 1 {
		t.Fatalf("corrupt entry must fall through to store (loads=%d)", fs.loads)
	}
}

func TestLoadAbsentPolicyNotCached(t *testing.T) {
	fc := newFakeCache()
	fs := &fakePolicyStore{policy: nil}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for absent policy, got %+v", got)
	}
	if len(fc.sets) != 0 {
		t.Fatal("negative result must not be cached")
	}
}

func TestLoadStoreErrorSurfaces(t *testing.T) {
	fc := newFakeCache()
	fs := &fakePolicyStore{err: errors.New("pg down")}

	c := New(fc, fs, 0, zerolog.Nop())
	if _, err := c.Load(context.Background(), uuid.New()); err == nil {
		t.Fatal("store error must surface")
	}
}

func TestLoadFillErrorIgnored(t *testing.T) {
	p := samplePolicy()
	fc := newFakeCache()
	fc.setErr = errors.New("redis down")
	fs := &fakePolicyStore{policy: p}

	c := New(fc, fs, 0, zerolog.Nop())
	got, err := c.Load(context.Background(), p.ID)
	if err != nil || got == nil {
		t.Fatalf("fill failure must be silent: got=%v err=%v", got, err)
	}
}
