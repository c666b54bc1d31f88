package device

import (
	"hash/fnv"
	"sort"
	"sync"
)

// lockStripes is the number of mutexes pins are hashed onto.
const lockStripes = 64

// pinLocks serialises work per pin without a global lock. Two pins may
// share a stripe; that only costs parallelism, never correctness.
type pinLocks struct {
	stripes [lockStripes]sync.Mutex
}

func stripeFor(pin string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(pin)) //nolint:errcheck // hash.Hash never fails
	return int(h.Sum32() % lockStripes)
}

// lock acquires the stripe for pin and returns its unlock func.
func (l *pinLocks) lock(pin string) func() {
	mu := &l.stripes[stripeFor(pin)]
	mu.Lock()
	return mu.Unlock
}

// lockAll acquires the stripes for every pin in ascending stripe order,
// so concurrent fleet updates cannot deadlock each other.
func (l *pinLocks) lockAll(pins []string) func() {
	seen := make(map[int]struct{}, len(pins))
	idx := make([]int, 0, len(pins))
	for _, pin := range pins {
		s := stripeFor(pin)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		idx = append(idx, s)
	}
	sort.Ints(idx)

	for _, s := range idx {
		l.stripes[s].Lock()
	}
	return func() {
		for i := len(idx) - 1; i >= 0; i-- {
			l.stripes[idx[i]].Unlock()
		}
	}
}
