// Package pattern decides whether a literal token satisfies a declared pattern.
//
// Patterns use glob syntax: literal text, `*` for any run of characters,
// `?` for exactly one character, `[abc]` / `[!abc]` character classes and
// `{a,b}` alternatives. There are no separators, so `*` also spans `:` and `.`
// in key names such as `user:1:bio`.
//
// Compiled patterns are kept in an LRU cache so repeated declarations of the
// same pattern share one compiled matcher.
package pattern

import (
	"fmt"
	"sync"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Any matches every token.
const Any = "*"

// DefaultCacheSize is the number of compiled patterns kept by default.
const DefaultCacheSize = 1024

// Matcher reports whether a token satisfies a compiled pattern.
type Matcher interface {
	Match(token string) bool
}

type anyMatcher struct{}

func (anyMatcher) Match(string) bool { return true }

var (
	cacheMu sync.RWMutex
	cache   *lru.Cache[string, Matcher]
)

func init() {
	c, err := lru.New[string, Matcher](DefaultCacheSize)
	if err != nil {
		panic(err)
	}
	cache = c
}

// SetCacheSize replaces the compiled pattern cache with one of the given size.
func SetCacheSize(size int) error {
	c, err := lru.New[string, Matcher](size)
	if err != nil {
		return fmt.Errorf("invalid pattern cache size %d: %w", size, err)
	}

	cacheMu.Lock()
	cache = c
	cacheMu.Unlock()
	return nil
}

// Compile returns a matcher for the pattern, reusing a cached one if present.
func Compile(pattern string) (Matcher, error) {
	if pattern == Any {
		return anyMatcher{}, nil
	}

	cacheMu.RLock()
	c := cache
	cacheMu.RUnlock()

	if m, ok := c.Get(pattern); ok {
		return m, nil
	}

	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	c.Add(pattern, g)
	return g, nil
}

// Match reports whether token satisfies pattern. An invalid pattern matches
// nothing.
func Match(pattern, token string) bool {
	m, err := Compile(pattern)
	if err != nil {
		return false
	}
	return m.Match(token)
}
