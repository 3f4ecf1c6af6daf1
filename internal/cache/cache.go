// Package cache memoizes computed group balances.
//
// Entries are derived data: a write to a group's expenses, settlements or
// members must Invalidate the group after it commits. Every Invalidate
// advances the group's generation, and Set drops an entry computed under an
// older generation, so a read that raced a write cannot repopulate the
// cache with balances from before it.
package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/opensplit/internal/calculator"
)

// Entry is the cached balance view of one group.
type Entry struct {
	Balances  *calculator.Balances  `json:"balances"`
	Transfers []calculator.Transfer `json:"transfers"`
}

// BalanceCache stores balance views by group ID.
type BalanceCache interface {
	// Get returns the entry for groupID and the group's current
	// generation. ok is false on a miss.
	Get(ctx context.Context, groupID string) (entry *Entry, gen uint64, ok bool, err error)

	// Set stores the entry for groupID unless the group was invalidated
	// since gen was read.
	Set(ctx context.Context, groupID string, gen uint64, entry *Entry) error

	// Invalidate drops the entry for groupID and advances its generation.
	Invalidate(ctx context.Context, groupID string) error
}

// LRU is an in-process BalanceCache.
type LRU struct {
	mu      sync.Mutex
	entries *LRUCache[*Entry]
	gens    map[string]uint64
}

// NewLRU returns an LRU holding at most size groups for ttl each.
func NewLRU(size int, ttl time.Duration) *LRU {
	return &LRU{
		entries: NewLRUCache[*Entry](size, ttl),
		gens:    make(map[string]uint64),
	}
}

func (c *LRU) Get(_ context.Context, groupID string) (*Entry, uint64, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries.Get(groupID)
	return entry, c.gens[groupID], ok, nil
}

func (c *LRU) Set(_ context.Context, groupID string, gen uint64, entry *Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[groupID] != gen {
		slog.Debug("Stale balances not cached", "group_id", groupID)
		return nil
	}
	c.entries.Set(groupID, entry)
	return nil
}

func (c *LRU) Invalidate(_ context.Context, groupID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[groupID]++
	c.entries.Delete(groupID)
	return nil
}

// Run removes expired entries every interval until ctx is done.
func (c *LRU) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := c.entries.CleanExpired(); n > 0 {
				slog.Debug("Expired balance cache entries removed", "count", n)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) (*Entry, uint64, bool, error) { return nil, 0, false, nil }
func (Noop) Set(context.Context, string, uint64, *Entry) error         { return nil }
func (Noop) Invalidate(context.Context, string) error                  { return nil }
