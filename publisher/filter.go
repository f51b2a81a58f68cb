package publisher

import (
	"fmt"

	"github.com/maxpert/kvstream/pattern"
)

// GlobFilter accepts events whose channel and function match any of the
// configured patterns. An empty pattern list accepts everything.
type GlobFilter struct {
	channels  []pattern.Matcher
	functions []pattern.Matcher
}

// NewGlobFilter compiles channel and function patterns
func NewGlobFilter(channelPatterns, functionPatterns []string) (*GlobFilter, error) {
	channels, err := compileAll(channelPatterns)
	if err != nil {
		return nil, fmt.Errorf("channel filter: %w", err)
	}
	functions, err := compileAll(functionPatterns)
	if err != nil {
		return nil, fmt.Errorf("function filter: %w", err)
	}
	return &GlobFilter{channels: channels, functions: functions}, nil
}

func compileAll(patterns []string) ([]pattern.Matcher, error) {
	out := make([]pattern.Matcher, 0, len(patterns))
	for _, p := range patterns {
		m, err := pattern.Compile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *GlobFilter) Match(channel, function string) bool {
	return matchAny(f.channels, channel) && matchAny(f.functions, function)
}

func matchAny(matchers []pattern.Matcher, s string) bool {
	if len(matchers) == 0 {
		return true
	}
	for _, m := range matchers {
		if m.Match(s) {
			return true
		}
	}
	return false
}
