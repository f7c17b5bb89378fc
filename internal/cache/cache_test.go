package cache

import (
	"testing"
	"time"

	itemdomain "github.com/guidely/guidely/internal/item/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 20*time.Millisecond)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok, "entry should expire")
}

func TestTTLCacheDelete(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok, "zero-ttl set should be dropped")
}

func TestGuideResolverCacheRoundTrip(t *testing.T) {
	c := NewGuideResolverCache()

	item := &itemdomain.Item{ID: 42, Code: "shelf", Status: itemdomain.StatusLive}
	c.Set("shelf", item)

	got, ok := c.Get("shelf")
	require.True(t, ok)
	assert.Equal(t, item.ID, got.ID)

	c.Invalidate("shelf")
	_, ok = c.Get("shelf")
	assert.False(t, ok, "invalidated code should miss")
}

func TestGuideResolverCacheSkipsNil(t *testing.T) {
	c := NewGuideResolverCache()

	c.Set("shelf", nil)
	_, ok := c.Get("shelf")
	assert.False(t, ok, "nil item should stay uncached")
}
