package cache

import (
	"time"

	itemdomain "github.com/guidely/guidely/internal/item/domain"
)

const defaultGuideTTL = 30 * time.Second

// GuideResolverCache stores code-to-item resolutions for the public
// guide surface, where every scan and recorded event resolves the same
// code. Only hits are cached; misses stay uncached so an item going
// live is visible immediately. Deletion invalidates.
type GuideResolverCache interface {
	Get(code string) (*itemdomain.Item, bool)
	Set(code string, item *itemdomain.Item)
	Invalidate(code string)
}

type guideResolverCache struct {
	items Cache[string, *itemdomain.Item]
	ttl   time.Duration
}

func NewGuideResolverCache() GuideResolverCache {
	return &guideResolverCache{
		items: NewTTLCache[string, *itemdomain.Item](),
		ttl:   defaultGuideTTL,
	}
}

func (c *guideResolverCache) Get(code string) (*itemdomain.Item, bool) {
	return c.items.Get(code)
}

func (c *guideResolverCache) Set(code string, item *itemdomain.Item) {
	if item == nil {
		return
	}
	c.items.Set(code, item, c.ttl)
}

func (c *guideResolverCache) Invalidate(code string) {
	c.items.Delete(code)
}
