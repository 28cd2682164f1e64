package faststore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Fake is an in-process Store used by package tests across internal/ranking,
// internal/ingest and internal/mappack — avoiding a live Redis dependency for
// unit tests, matching the teacher's preference for constructing dependency
// structs directly in tests (see leaderboard_rank_cache_test.go) over
// spinning up the real backing service.
type Fake struct {
	mu      sync.Mutex
	zsets   map[string]map[string]int64
	order   map[string][]string // insertion order per key, for tie-break determinism
	scalars map[string]string
	sets    map[string]map[string]struct{}
	ttls    map[string]time.Duration
}

var _ Store = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		zsets:   make(map[string]map[string]int64),
		order:   make(map[string][]string),
		scalars: make(map[string]string),
		sets:    make(map[string]map[string]struct{}),
		ttls:    make(map[string]time.Duration),
	}
}

// TTL returns the last TTL applied to key via Set or Expire, for test
// assertions; ok is false if the key has never had one applied.
func (f *Fake) TTL(key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.ttls[key]
	return ttl, ok
}

func (f *Fake) Add(_ context.Context, key, member string, score int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zsets[key]
	if !ok {
		z = make(map[string]int64)
		f.zsets[key] = z
	}
	if _, exists := z[member]; !exists {
		f.order[key] = append(f.order[key], member)
	}
	z[member] = score
	return nil
}

func (f *Fake) Del(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.zsets, key)
	delete(f.order, key)
	return nil
}

func (f *Fake) Count(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.zsets[key])), nil
}

func (f *Fake) sortedMembers(key string) []string {
	z := f.zsets[key]
	members := make([]string, 0, len(z))
	for _, m := range f.order[key] {
		if _, ok := z[m]; ok {
			members = append(members, m)
		}
	}
	insertionIndex := make(map[string]int, len(members))
	for i, m := range members {
		insertionIndex[m] = i
	}
	sort.SliceStable(members, func(i, j int) bool {
		si, sj := z[members[i]], z[members[j]]
		if si != sj {
			return si < sj
		}
		return insertionIndex[members[i]] < insertionIndex[members[j]]
	})
	return members
}

func (f *Fake) Rank(_ context.Context, key, member string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.zsets[key][member]; !ok {
		return 0, false, nil
	}
	for i, m := range f.sortedMembers(key) {
		if m == member {
			return int64(i), true, nil
		}
	}
	return 0, false, nil
}

func (f *Fake) Score(_ context.Context, key, member string) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.zsets[key][member]
	return s, ok, nil
}

func (f *Fake) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members := f.sortedMembers(key)
	n := int64(len(members))
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || n == 0 {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, members[start:stop+1])
	return out, nil
}

func (f *Fake) RangeByScore(_ context.Context, key string, lo, hi int64, limit int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z := f.zsets[key]
	out := make([]string, 0)
	for _, m := range f.sortedMembers(key) {
		s := z[m]
		if s < lo || s > hi {
			continue
		}
		out = append(out, m)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}

func (f *Fake) ReplaceAll(_ context.Context, key string, members []Member) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	z := make(map[string]int64, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		if _, exists := z[m.Member]; !exists {
			order = append(order, m.Member)
		}
		z[m.Member] = m.Score
	}
	f.zsets[key] = z
	f.order[key] = order
	return nil
}

func (f *Fake) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.scalars[key]
	return v, ok, nil
}

func (f *Fake) Set(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scalars[key] = value
	if ttl > 0 {
		f.ttls[key] = ttl
	} else {
		delete(f.ttls, key)
	}
	return nil
}

func (f *Fake) Persist(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ttls, key)
	return nil
}

func (f *Fake) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ttl <= 0 {
		delete(f.ttls, key)
		return nil
	}
	f.ttls[key] = ttl
	return nil
}

func (f *Fake) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		s = make(map[string]struct{})
		f.sets[key] = s
	}
	for _, m := range members {
		s[m] = struct{}{}
	}
	return nil
}

func (f *Fake) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sets[key]
	if !ok {
		return nil
	}
	for _, m := range members {
		delete(s, m)
	}
	return nil
}

func (f *Fake) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sets[key]
	out := make([]string, 0, len(s))
	for m := range s {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}
