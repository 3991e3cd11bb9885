// Package subscription tracks which symbols a client wants streamed and
// whether each one has been sent to the provider yet.
package subscription

import (
	"sort"
	"strings"
	"sync"
)

// Registry partitions the desired symbols into pending (not yet sent) and
// active (subscribe sent). A symbol is never in both.
type Registry struct {
	mu      sync.Mutex
	pending map[string]struct{}
	active  map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[string]struct{}),
		active:  make(map[string]struct{}),
	}
}

// EnqueuePending queues symbols for the next flush. Symbols already active
// stay active. Returns the symbols that were newly queued.
func (r *Registry) EnqueuePending(symbols []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := r.active[s]; ok {
			continue
		}
		if _, ok := r.pending[s]; ok {
			continue
		}
		r.pending[s] = struct{}{}
		added = append(added, s)
	}
	sort.Strings(added)
	return added
}

// FlushToActive moves every pending symbol to active and returns them
func (r *Registry) FlushToActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushed := make([]string, 0, len(r.pending))
	for s := range r.pending {
		r.active[s] = struct{}{}
		flushed = append(flushed, s)
	}
	clear(r.pending)
	sort.Strings(flushed)
	return flushed
}

// MarkActive records symbols as sent and returns the ones that were not
// active before. Used when subscribing on a ready connection.
func (r *Registry) MarkActive(symbols []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []string
	for _, s := range symbols {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		delete(r.pending, s)
		if _, ok := r.active[s]; ok {
			continue
		}
		r.active[s] = struct{}{}
		added = append(added, s)
	}
	sort.Strings(added)
	return added
}

// Remove drops symbols from both partitions. Removing an unknown symbol is a no-op.
func (r *Registry) Remove(symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range symbols {
		s = strings.TrimSpace(s)
		delete(r.pending, s)
		delete(r.active, s)
	}
}

// RequeueActive moves every active symbol back to pending so the next ready
// connection subscribes them again. Returns the requeued symbols.
func (r *Registry) RequeueActive() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	requeued := make([]string, 0, len(r.active))
	for s := range r.active {
		r.pending[s] = struct{}{}
		requeued = append(requeued, s)
	}
	clear(r.active)
	sort.Strings(requeued)
	return requeued
}

func (r *Registry) IsPending(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[symbol]
	return ok
}

func (r *Registry) IsActive(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[symbol]
	return ok
}

// Pending returns the pending symbols, sorted
func (r *Registry) Pending() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.pending)
}

// Active returns the active symbols, sorted
func (r *Registry) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.active)
}

// Desired returns pending plus active, sorted
func (r *Registry) Desired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.pending)+len(r.active))
	for s := range r.pending {
		out = append(out, s)
	}
	for s := range r.active {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
