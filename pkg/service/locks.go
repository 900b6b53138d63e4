package service

import (
	"sort"
	"sync"
)

// keyedMutex hands out one mutex per item id. Entries are dropped once no
// goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock locks every key, in sorted order so that two callers locking the same
// pair cannot deadlock, and returns the unlock function.
func (k *keyedMutex) Lock(keys ...string) func() {
	keys = uniqueSorted(keys)

	held := make([]*refMutex, 0, len(keys))
	for _, key := range keys {
		k.mu.Lock()
		m, ok := k.locks[key]
		if !ok {
			m = &refMutex{}
			k.locks[key] = m
		}
		m.refs++
		k.mu.Unlock()

		m.Lock()
		held = append(held, m)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, keys[i])
			}
			k.mu.Unlock()
		}
	}
}

func uniqueSorted(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
