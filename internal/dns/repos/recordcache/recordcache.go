// Package recordcache wraps a RecordStore with an in-memory LRU cache
// and a bloom-filter membership prefilter.
//
// The prefilter answers "was this name ever written here" without a
// store round trip: lookups for names this deployment has never managed
// short-circuit to ErrNotFound. That is only sound when this process is
// the table's sole writer, which is the deployment model (one
// reconciler per table). False positives just cost a store read.
package recordcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	bitsbloom "github.com/bits-and-blooms/bloom/v3"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/jhearn/taskdns/internal/dns/domain"
	"github.com/jhearn/taskdns/internal/dns/repos/records"
)

// Options configures a Cache.
type Options struct {
	// Store is the backing record store. Required.
	Store records.RecordStore

	// Size is the LRU capacity in records. Required, >= 1.
	Size int

	// ExpectedKeys sizes the bloom prefilter. Defaults to 1024.
	ExpectedKeys uint

	// FalsePositiveRate for the prefilter. Defaults to 0.01.
	FalsePositiveRate float64
}

// Cache is a read-through record cache. It satisfies the RecordStore
// port itself, so callers wire it in place of the raw store.
type Cache struct {
	store records.RecordStore
	lru   *lru.Cache[string, domain.DnsRecord]

	mu   sync.RWMutex
	seen *bitsbloom.BloomFilter
}

// New constructs a Cache. Call Warm before serving reads so the
// prefilter knows the keys already in the store.
func New(opts Options) (*Cache, error) {
	if opts.Store == nil {
		return nil, errors.New("recordcache: store is required")
	}
	if opts.Size < 1 {
		return nil, fmt.Errorf("recordcache: invalid cache size %d", opts.Size)
	}
	expected := opts.ExpectedKeys
	if expected == 0 {
		expected = 1024
	}
	fpRate := opts.FalsePositiveRate
	if fpRate == 0 {
		fpRate = 0.01
	}

	cache, err := lru.New[string, domain.DnsRecord](opts.Size)
	if err != nil {
		return nil, err
	}
	return &Cache{
		store: opts.Store,
		lru:   cache,
		seen:  bitsbloom.NewWithEstimates(expected, fpRate),
	}, nil
}

// Warm seeds the membership prefilter from the backing store's keys.
func (c *Cache) Warm(ctx context.Context) error {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return fmt.Errorf("recordcache warm: %w", err)
	}
	c.mu.Lock()
	for _, key := range keys {
		c.seen.Add([]byte(key.String()))
	}
	c.mu.Unlock()
	return nil
}

// Get returns the cached record if present, otherwise reads through to
// the store. Names the prefilter has never seen miss without I/O.
func (c *Cache) Get(ctx context.Context, key domain.RecordKey) (domain.DnsRecord, error) {
	ck := key.String()
	if rec, ok := c.lru.Get(ck); ok {
		return rec.Clone(), nil
	}

	c.mu.RLock()
	mightExist := c.seen.Test([]byte(ck))
	c.mu.RUnlock()
	if !mightExist {
		return domain.DnsRecord{}, records.ErrNotFound
	}

	rec, err := c.store.Get(ctx, key)
	if err != nil {
		return domain.DnsRecord{}, err
	}
	c.lru.Add(ck, rec.Clone())
	return rec, nil
}

// Put writes through to the store and refreshes the cached entry.
func (c *Cache) Put(ctx context.Context, record domain.DnsRecord) error {
	if err := c.store.Put(ctx, record); err != nil {
		return err
	}
	ck := record.Key.String()
	c.lru.Add(ck, record.Clone())
	c.mu.Lock()
	c.seen.Add([]byte(ck))
	c.mu.Unlock()
	return nil
}

// Delete removes the item from the store and evicts the cached entry.
// The prefilter cannot unlearn a key; a deleted name costs one store
// read on its next lookup.
func (c *Cache) Delete(ctx context.Context, key domain.RecordKey) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return err
	}
	c.lru.Remove(key.String())
	return nil
}

// Keys delegates to the backing store.
func (c *Cache) Keys(ctx context.Context) ([]domain.RecordKey, error) {
	return c.store.Keys(ctx)
}

// Len returns the number of cached records.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Close closes the backing store.
func (c *Cache) Close() error {
	return c.store.Close()
}

var _ records.RecordStore = (*Cache)(nil)
