package workflow

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

// Fetcher retrieves a workflow definition from its origin, usually the
// board API.
type Fetcher interface {
	FetchWorkflow(ctx context.Context, workflowID string) (domain.Workflow, error)
}

// Cache memoizes workflow definitions per board session: at most one origin
// fetch per workflow id until Invalidate is called. An optional Redis layer
// shares definitions across processes; Redis failures fall back to the
// origin without failing the lookup.
type Cache struct {
	base  Fetcher
	redis *redis.Client
	ttl   time.Duration

	mu  sync.Mutex
	mem map[string]domain.Workflow
	ids map[string]struct{}
}

// NewCache creates a caching definition source. client may be nil for a
// purely in-process cache.
func NewCache(base Fetcher, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("workflow.NewCache: base fetcher is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
		mem:   make(map[string]domain.Workflow),
		ids:   make(map[string]struct{}),
	}
}

// Workflow resolves a definition, consulting the in-process map, then
// Redis, then the origin.
func (c *Cache) Workflow(ctx context.Context, id string) (domain.Workflow, error) {
	c.mu.Lock()
	if wf, ok := c.mem[id]; ok {
		c.mu.Unlock()
		return wf, nil
	}
	c.mu.Unlock()

	if wf, ok := c.loadFromRedis(ctx, id); ok {
		c.remember(id, wf)
		return wf, nil
	}

	wf, err := c.base.FetchWorkflow(ctx, id)
	if err != nil {
		return domain.Workflow{}, err
	}
	c.remember(id, wf)
	c.storeInRedis(ctx, id, wf)
	return wf, nil
}

// Invalidate drops every cached definition. Call it on any board
// configuration change.
func (c *Cache) Invalidate(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	c.mem = make(map[string]domain.Workflow)
	c.ids = make(map[string]struct{})
	c.mu.Unlock()

	if c.redis == nil || len(ids) == 0 {
		return
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = workflowCacheKey(id)
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

func (c *Cache) remember(id string, wf domain.Workflow) {
	c.mu.Lock()
	c.mem[id] = wf
	c.ids[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) loadFromRedis(ctx context.Context, id string) (domain.Workflow, bool) {
	if c.redis == nil {
		return domain.Workflow{}, false
	}
	data, err := c.redis.Get(ctx, workflowCacheKey(id)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the origin without failing.
			_ = c.redis.Del(ctx, workflowCacheKey(id)).Err()
		}
		return domain.Workflow{}, false
	}
	var wf domain.Workflow
	if err := sonic.Unmarshal(data, &wf); err != nil {
		_ = c.redis.Del(ctx, workflowCacheKey(id)).Err()
		return domain.Workflow{}, false
	}
	return wf, true
}

func (c *Cache) storeInRedis(ctx context.Context, id string, wf domain.Workflow) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(wf)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, workflowCacheKey(id), data, c.ttl).Err()
}

func workflowCacheKey(id string) string {
	return "workflow:" + id
}
