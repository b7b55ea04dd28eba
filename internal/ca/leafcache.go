package ca

import (
	"crypto/ecdsa"
	"crypto/x509"
	"sync"
	"time"

	"github.com/syrahproxy/syrah/internal/metrics"
)

// DefaultCapacity is the leaf cache's default bound.
const DefaultCapacity = 500

// evictionFraction is the portion of the cache removed, oldest-first, once
// the cache is full.
const evictionFraction = 0.25

type leafEntry struct {
	key       *ecdsa.PrivateKey
	cert      *x509.Certificate
	insertedAt int64
	seq       uint64
}

// LeafCache generates and caches one leaf certificate per host, signed on
// demand by a Store, with bounded eviction and in-flight generation
// de-duplication.
type LeafCache struct {
	store    *Store
	capacity int

	mu       sync.Mutex
	entries  map[string]*leafEntry
	inFlight map[string]*sync.WaitGroup
	seq      uint64
}

// NewLeafCache returns a LeafCache backed by store with the given capacity.
// A capacity <= 0 selects DefaultCapacity.
func NewLeafCache(store *Store, capacity int) *LeafCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &LeafCache{
		store:    store,
		capacity: capacity,
		entries:  make(map[string]*leafEntry),
		inFlight: make(map[string]*sync.WaitGroup),
	}
}

// GetOrGenerate returns the cached leaf for host, generating (and caching)
// one if absent. Concurrent calls for the same host that is mid-generation
// block on the in-progress generation instead of racing to generate and
// discard duplicate leaves.
func (c *LeafCache) GetOrGenerate(host string) (*ecdsa.PrivateKey, *x509.Certificate, error) {
	for {
		c.mu.Lock()
		if entry, ok := c.entries[host]; ok {
			c.mu.Unlock()
			return entry.key, entry.cert, nil
		}
		if wg, ok := c.inFlight[host]; ok {
			c.mu.Unlock()
			wg.Wait()
			continue
		}

		wg := &sync.WaitGroup{}
		wg.Add(1)
		c.inFlight[host] = wg
		c.mu.Unlock()

		key, cert, err := c.store.SignLeaf(host, nil, 0)

		c.mu.Lock()
		delete(c.inFlight, host)
		if err == nil {
			c.seq++
			c.entries[host] = &leafEntry{key: key, cert: cert, insertedAt: time.Now().UnixNano(), seq: c.seq}
			c.evictLocked(host)
			metrics.Registry.IncrCounter(metrics.LeafCertsGenerated, 1)
			metrics.Registry.SetGauge(metrics.LeafCacheSize, float32(len(c.entries)))
		}
		c.mu.Unlock()
		wg.Done()

		return key, cert, err
	}
}

// evictLocked removes the oldest 25% of entries once the cache is at or
// over capacity. It must be called with c.mu held, and never evicts
// justInserted.
func (c *LeafCache) evictLocked(justInserted string) {
	if len(c.entries) < c.capacity {
		return
	}

	type hostSeq struct {
		host string
		seq  uint64
	}
	ordered := make([]hostSeq, 0, len(c.entries))
	for host, entry := range c.entries {
		if host == justInserted {
			continue
		}
		ordered = append(ordered, hostSeq{host, entry.seq})
	}
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].seq < ordered[j-1].seq; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	toRemove := int(float64(len(c.entries)) * evictionFraction)
	if toRemove == 0 {
		toRemove = 1
	}
	if toRemove > len(ordered) {
		toRemove = len(ordered)
	}
	for i := 0; i < toRemove; i++ {
		delete(c.entries, ordered[i].host)
	}
}

// Len reports the current number of cached entries.
func (c *LeafCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
