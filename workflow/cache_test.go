package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

type stubOrigin struct {
	workflows map[string]domain.Workflow
	calls     int
}

func (s *stubOrigin) FetchWorkflow(ctx context.Context, id string) (domain.Workflow, error) {
	s.calls++
	return s.workflows[id], nil
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheFetchesOriginOnce(t *testing.T) {
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}
	c := NewCache(origin, nil, time.Hour)

	for i := 0; i < 3; i++ {
		wf, err := c.Workflow(context.Background(), "wf-1")
		if err != nil {
			t.Fatalf("workflow: %v", err)
		}
		if wf.ID != "wf-1" {
			t.Fatalf("unexpected workflow: %+v", wf)
		}
	}
	if origin.calls != 1 {
		t.Fatalf("expected one origin fetch, got %d", origin.calls)
	}
}

func TestCacheSharesDefinitionsThroughRedis(t *testing.T) {
	_, client := newTestRedis(t)
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}

	first := NewCache(origin, client, time.Hour)
	if _, err := first.Workflow(context.Background(), "wf-1"); err != nil {
		t.Fatalf("workflow: %v", err)
	}

	// A second process with a cold in-memory map hits redis, not the origin.
	second := NewCache(origin, client, time.Hour)
	wf, err := second.Workflow(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}
	if wf.ID != "wf-1" || len(wf.Transitions) != 3 {
		t.Fatalf("workflow lost fields through redis: %+v", wf)
	}
	if origin.calls != 1 {
		t.Fatalf("expected the origin untouched, got %d calls", origin.calls)
	}
}

func TestCacheRedisEntryExpires(t *testing.T) {
	mr, client := newTestRedis(t)
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}

	c := NewCache(origin, client, time.Minute)
	if _, err := c.Workflow(context.Background(), "wf-1"); err != nil {
		t.Fatalf("workflow: %v", err)
	}
	if ttl := mr.TTL("workflow:wf-1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	mr.FastForward(2 * time.Minute)
	if mr.Exists("workflow:wf-1") {
		t.Fatal("entry must expire")
	}
}

func TestCacheCorruptRedisValueFallsBackToOrigin(t *testing.T) {
	mr, client := newTestRedis(t)
	if err := mr.Set("workflow:wf-1", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}

	c := NewCache(origin, client, time.Hour)
	wf, err := c.Workflow(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("workflow: %v", err)
	}
	if wf.ID != "wf-1" {
		t.Fatalf("unexpected workflow: %+v", wf)
	}
	if origin.calls != 1 {
		t.Fatalf("expected an origin fetch, got %d", origin.calls)
	}
	// The corrupt value was replaced by a good one.
	got, err := mr.Get("workflow:wf-1")
	if err != nil || got == "{not json" {
		t.Fatalf("corrupt value not replaced: %q err=%v", got, err)
	}
}

func TestCacheRedisDownFallsBackToOrigin(t *testing.T) {
	mr, client := newTestRedis(t)
	mr.Close()
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}

	c := NewCache(origin, client, time.Hour)
	wf, err := c.Workflow(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("redis outage must not fail the lookup: %v", err)
	}
	if wf.ID != "wf-1" {
		t.Fatalf("unexpected workflow: %+v", wf)
	}
}

func TestCacheInvalidateClearsBothTiers(t *testing.T) {
	mr, client := newTestRedis(t)
	origin := &stubOrigin{workflows: map[string]domain.Workflow{"wf-1": testWorkflow()}}

	c := NewCache(origin, client, time.Hour)
	if _, err := c.Workflow(context.Background(), "wf-1"); err != nil {
		t.Fatalf("workflow: %v", err)
	}

	c.Invalidate(context.Background())
	if mr.Exists("workflow:wf-1") {
		t.Fatal("invalidate must delete the redis entry")
	}
	if _, err := c.Workflow(context.Background(), "wf-1"); err != nil {
		t.Fatalf("workflow: %v", err)
	}
	if origin.calls != 2 {
		t.Fatalf("expected a fresh origin fetch after invalidate, got %d", origin.calls)
	}
}
