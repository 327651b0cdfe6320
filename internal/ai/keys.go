package ai

import (
	"strings"
	"sync/atomic"
)

// keyRing hands out indexes into a key list in round-robin order.
type keyRing struct {
	n    int
	next atomic.Uint64
}

func (k *keyRing) pick() int {
	return int((k.next.Add(1) - 1) % uint64(k.n))
}

// CleanKeys trims keys and drops empty entries.
func CleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
