// Package mediacache holds PreparedMedia instances keyed by media file
// id, bounded by entry count and idle TTL, with single-flight build
// coalescing so concurrent misses for the same file share one parse.
package mediacache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mediacore/hlsengine/internal/engineerr"
	"github.com/mediacore/hlsengine/internal/segplan"
)

// DefaultCapacity and DefaultIdleTTL are the cache's default bounds.
const (
	DefaultCapacity = 64
	DefaultIdleTTL  = 30 * time.Minute
)

// PreparedMedia is the fully precomputed, immutable result of parsing
// and segment-planning one source file. It is shared by reference
// between the cache and any number of in-flight HTTP responses.
type PreparedMedia struct {
	FilePath              string
	Width, Height         uint32
	DurationSecs          float64
	InitSegmentBytes      []byte
	VariantPlaylistText   string
	Segments              []segplan.PrecomputedSegment
	TargetDurationSeconds int
}

// BuildFunc produces a PreparedMedia for a cache miss. Returning an
// error does not poison the cache: the next request for the same id
// retries from scratch.
type BuildFunc func(ctx context.Context) (*PreparedMedia, error)

type entry struct {
	media      *PreparedMedia
	lastAccess time.Time
}

// Cache is a bounded, TTL-evicting map from media file id to its
// PreparedMedia, safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	capacity int
	idleTTL  time.Duration
	group    singleflight.Group
}

// New creates a Cache with the given capacity and idle TTL. A
// non-positive value for either falls back to the package default.
func New(capacity int, idleTTL time.Duration) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Cache{
		entries:  make(map[string]*entry),
		capacity: capacity,
		idleTTL:  idleTTL,
	}
}

// GetOrInsert returns the cached PreparedMedia for id, building it via
// build on a miss. Concurrent callers racing on the same id's miss
// share a single build; all see the same result or the same error.
//
// A build aborted by ctx (the requesting client disconnected, or its
// request deadline passed while this or a concurrent caller's build was
// in flight) is reported as engineerr.ErrCacheBusy rather than whatever
// error the half-finished build produced: the source file itself was
// never shown to be a problem, so the caller should retry rather than
// treat it as a permanent parse failure.
func (c *Cache) GetOrInsert(ctx context.Context, id string, build BuildFunc) (*PreparedMedia, error) {
	if media, ok := c.get(id); ok {
		return media, nil
	}

	result, err, _ := c.group.Do(id, func() (interface{}, error) {
		if media, ok := c.get(id); ok {
			return media, nil
		}
		media, err := build(ctx)
		if err != nil {
			return nil, err
		}
		c.insert(id, media)
		return media, nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w", engineerr.ErrCacheBusy, err)
		}
		return nil, err
	}
	return result.(*PreparedMedia), nil
}

func (c *Cache) get(id string) (*PreparedMedia, bool) {
	c.mu.RLock()
	e, ok := c.entries[id]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	c.mu.Lock()
	e.lastAccess = time.Now()
	c.mu.Unlock()
	return e.media, true
}

func (c *Cache) insert(id string, media *PreparedMedia) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[id]; !exists && len(c.entries) >= c.capacity {
		c.evictOldestLocked()
	}
	c.entries[id] = &entry{media: media, lastAccess: time.Now()}
}

func (c *Cache) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	first := true
	for id, e := range c.entries {
		if first || e.lastAccess.Before(oldest) {
			oldestID, oldest, first = id, e.lastAccess, false
		}
	}
	if !first {
		delete(c.entries, oldestID)
	}
}

// Invalidate drops id's entry, if present, so the next request rebuilds
// it from the (presumably replaced) source file.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Sweep drops entries whose last access is older than the cache's idle
// TTL. Intended to be called periodically by a scheduled job.
func (c *Cache) Sweep() int {
	cutoff := time.Now().Add(-c.idleTTL)
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the current number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
