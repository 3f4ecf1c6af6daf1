package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/opensplit/internal/calculator"
	"github.com/mmynk/opensplit/internal/money"
)

func TestLRUCache_Eviction(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	// Touch a so b becomes the oldest.
	_, ok := c.Get("a")
	require.True(t, ok)
	c.Set("c", 3)

	_, ok = c.Get("b")
	assert.False(t, ok, "least recently used entry is evicted")
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 2, c.Size())

	c.Set("a", 10)
	v, _ = c.Get("a")
	assert.Equal(t, 10, v)
	assert.Equal(t, 2, c.Size())

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }

	c.Set("a", "x")
	c.Set("b", "y")
	now = now.Add(30 * time.Second)
	c.Set("c", "z")

	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(45 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok, "expired on read")
	assert.Equal(t, 1, c.CleanExpired(), "b expired, c still fresh")
	assert.Equal(t, 1, c.Size())
}

func sampleEntry() *Entry {
	php := func(v int64) money.Money { return money.New(v, "PHP") }
	return &Entry{
		Balances: &calculator.Balances{
			Currency: "PHP",
			Members: []calculator.MemberBalance{
				{UserID: "alice", Net: php(500), TotalPaid: php(1000), TotalOwed: php(500)},
				{UserID: "bob", Net: php(-500), TotalPaid: php(0), TotalOwed: php(500)},
			},
			Pairwise: []calculator.DebtEdge{{From: "bob", To: "alice", Amount: php(500)}},
		},
		Transfers: []calculator.Transfer{{From: "bob", To: "alice", Amount: php(500)}},
	}
}

func testBalanceCache(t *testing.T, c BalanceCache) {
	ctx := context.Background()

	_, gen, ok, err := c.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "g1", gen, sampleEntry()))
	got, _, ok, err := c.Get(ctx, "g1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleEntry(), got)

	require.NoError(t, c.Invalidate(ctx, "g1"))
	_, _, ok, err = c.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Invalidating an absent key is fine.
	require.NoError(t, c.Invalidate(ctx, "g1"))
}

// testStaleSet computes under one generation, invalidates, then tries to
// store the now outdated entry.
func testStaleSet(t *testing.T, c BalanceCache) {
	ctx := context.Background()

	_, gen, ok, err := c.Get(ctx, "g2")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Invalidate(ctx, "g2"))
	require.NoError(t, c.Set(ctx, "g2", gen, sampleEntry()))

	_, next, ok, err := c.Get(ctx, "g2")
	require.NoError(t, err)
	assert.False(t, ok, "entry computed before the invalidation is dropped")
	assert.NotEqual(t, gen, next)

	require.NoError(t, c.Set(ctx, "g2", next, sampleEntry()))
	_, _, ok, err = c.Get(ctx, "g2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLRU(t *testing.T) {
	testBalanceCache(t, NewLRU(16, time.Minute))
	testStaleSet(t, NewLRU(16, time.Minute))
}

func TestLRU_Run(t *testing.T) {
	c := NewLRU(16, time.Millisecond)
	require.NoError(t, c.Set(context.Background(), "g1", 0, sampleEntry()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- c.Run(ctx, 5*time.Millisecond) }()

	assert.Eventually(t, func() bool { return c.entries.Size() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	var c BalanceCache = Noop{}
	require.NoError(t, c.Set(ctx, "g1", 0, sampleEntry()))
	_, _, ok, err := c.Get(ctx, "g1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	c, err := NewRedis(context.Background(), url, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	testBalanceCache(t, c)
	testStaleSet(t, c)
}
