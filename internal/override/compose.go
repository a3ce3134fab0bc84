package override

import (
	"sort"

	"github.com/dhkts1/yoga-app-sub002/internal/content"
)

// Compose overlays values onto base. With no values, base is returned as is
// so callers can compare slices by identity to detect "nothing changed".
// Otherwise a new slice is returned where each overridden position holds
// apply(item, seconds) and every other position holds the original item.
// Indices outside base are ignored.
func Compose[T any](values Values, base []T, apply func(T, int) T) []T {
	if len(values) == 0 {
		return base
	}

	out := make([]T, len(base))
	copy(out, base)
	for i, seconds := range values {
		if i < 0 || i >= len(out) {
			continue
		}
		out[i] = apply(out[i], seconds)
	}
	return out
}

// WithSeconds is the apply function for session poses.
func WithSeconds(p content.SessionPose, seconds int) content.SessionPose {
	p.Seconds = seconds
	return p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
