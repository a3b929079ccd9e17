package session

import (
	"sync"
)

// DefaultHistorySize is the number of results a session keeps.
const DefaultHistorySize = 10

// History is a fixed-capacity ring of scan results.
type History struct {
	mu       sync.RWMutex
	results  []ScanResult
	head     int
	size     int
	capacity int
}

// NewHistory creates a ring holding capacity results.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}

	return &History{
		results:  make([]ScanResult, capacity),
		capacity: capacity,
	}
}

// Add appends r, evicting the oldest result when full.
func (h *History) Add(r ScanResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results[h.head] = r

	h.head = (h.head + 1) % h.capacity
	if h.size < h.capacity {
		h.size++
	}
}

// List returns up to limit results, newest first. limit <= 0 returns all.
func (h *History) List(limit int) []ScanResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if limit <= 0 || limit > h.size {
		limit = h.size
	}

	out := make([]ScanResult, limit)
	for i := range limit {
		out[i] = h.results[(h.head-1-i+h.capacity)%h.capacity]
	}

	return out
}

// Len returns the number of stored results.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.size
}

// Clear drops all results.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = make([]ScanResult, h.capacity)
	h.head = 0
	h.size = 0
}
