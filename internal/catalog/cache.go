package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	firstPageKey   = "catalog:products:list:latest"
	productKeyBase = "catalog:products:detail:"
)

type cachedList struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
}

// Cache keeps product JSON in Redis for the public read paths. Every write to
// a product drops its detail entry and the first listing page. A nil Cache, or
// one built without a client, caches nothing.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a Cache whose entries expire after ttl (one minute when unset).
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool { return c != nil && c.client != nil }

// Product returns the cached detail for id.
func (c *Cache) Product(ctx context.Context, id string) (Product, bool) {
	var p Product
	return p, c.load(ctx, productKeyBase+id, &p)
}

// PutProduct caches p under its id.
func (c *Cache) PutProduct(ctx context.Context, p Product) error {
	return c.save(ctx, productKeyBase+p.ID, p)
}

// FirstPage returns the cached unfiltered first listing page.
func (c *Cache) FirstPage(ctx context.Context) ([]Product, int64, bool) {
	var page cachedList
	if !c.load(ctx, firstPageKey, &page) {
		return nil, 0, false
	}
	return page.Items, page.Total, true
}

// PutFirstPage caches the unfiltered first listing page.
func (c *Cache) PutFirstPage(ctx context.Context, items []Product, total int64) error {
	return c.save(ctx, firstPageKey, cachedList{Items: items, Total: total})
}

// InvalidateProduct drops the cached detail for id and the first listing page.
func (c *Cache) InvalidateProduct(ctx context.Context, id string) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Del(ctx, productKeyBase+id, firstPageKey).Err()
}

// load reports a hit only when the entry exists and decodes. Redis errors,
// redis.Nil included, are misses.
func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if !c.enabled() {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (c *Cache) save(ctx context.Context, key string, v any) error {
	if !c.enabled() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}
