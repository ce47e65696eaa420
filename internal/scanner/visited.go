package scanner

import "sync"

// VisitedSet records plot numbers confirmed present per village for the life
// of the process. Workers read it while the coordinating goroutine writes it.
type VisitedSet struct {
	mu    sync.RWMutex
	plots map[string]map[int]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{plots: make(map[string]map[int]struct{})}
}

// Contains reports whether plotNo was already found in village.
func (v *VisitedSet) Contains(village string, plotNo int) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	_, ok := v.plots[village][plotNo]
	return ok
}

// Add marks plotNo as found in village.
func (v *VisitedSet) Add(village string, plotNo int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	set, ok := v.plots[village]
	if !ok {
		set = make(map[int]struct{})
		v.plots[village] = set
	}
	set[plotNo] = struct{}{}
}

// Len returns the number of plots recorded for village.
func (v *VisitedSet) Len(village string) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.plots[village])
}
