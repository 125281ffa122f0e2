package binutils

import (
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultCacheSize = 1024

// IdentityCache maps module paths to their identity. It is shared by every
// process of a session; concurrent derivations of the same path produce
// the same value, so the first stored result wins.
type IdentityCache struct {
	entries *lru.Cache[string, *ModuleInfo]
}

func NewIdentityCache(size int) (*IdentityCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New[string, *ModuleInfo](size)
	if err != nil {
		return nil, err
	}
	return &IdentityCache{entries: c}, nil
}

// Get returns the cached identity of path, deriving it on first use.
func (c *IdentityCache) Get(path, root string) (*ModuleInfo, error) {
	key := filepath.Join(root, path)
	if info, ok := c.entries.Get(key); ok {
		return info, nil
	}

	info, err := Identify(path, root)
	if err != nil {
		return nil, err
	}

	if prev, ok, _ := c.entries.PeekOrAdd(key, info); ok {
		return prev, nil
	}
	return info, nil
}

// Store seeds the cache with the identity of info.Path as seen below root.
func (c *IdentityCache) Store(root string, info *ModuleInfo) {
	c.entries.Add(filepath.Join(root, info.Path), info)
}

func (c *IdentityCache) Len() int {
	return c.entries.Len()
}
