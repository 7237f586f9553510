package jobs

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"

	"jobsched/internal/job"
)

// KeyMatcher selects job keys by a glob over "category/type/id".
// '*' does not cross '/', "**" does. An empty pattern matches everything.
type KeyMatcher struct {
	g glob.Glob
}

func CompileKeyPattern(pattern string) (KeyMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return KeyMatcher{}, nil
	}
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return KeyMatcher{}, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
	}
	return KeyMatcher{g: g}, nil
}

func (m KeyMatcher) Match(k job.Key) bool {
	if m.g == nil {
		return true
	}
	return m.g.Match(k.String())
}

// FilterStatuses keeps the statuses whose key matches.
func FilterStatuses(m KeyMatcher, in []job.Status) []job.Status {
	if m.g == nil {
		return in
	}
	out := make([]job.Status, 0, len(in))
	for _, st := range in {
		if m.Match(st.Key) {
			out = append(out, st)
		}
	}
	return out
}
