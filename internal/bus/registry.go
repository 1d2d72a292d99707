package bus

import (
	"slices"
	"sync"
	"sync/atomic"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// registry accumulates registrations until frozen. After freeze the dispatch
// table is immutable and read without locking.
type registry struct {
	mu     sync.RWMutex
	frozen atomic.Bool
	table  [schema.CategoryCount][]entry
}

func (r *registry) register(c schema.EventCategory, l Listener) error {
	h, err := bind(c, l)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return exception.ErrRegistrationFrozen
	}
	r.table[c] = append(r.table[c], entry{name: listenerName(l), handle: h})
	return nil
}

// registerAll binds l to every category before adding any, so a capability
// error leaves the table untouched.
func (r *registry) registerAll(categories []schema.EventCategory, l Listener) error {
	bound := make([]handler, len(categories))
	for i, c := range categories {
		h, err := bind(c, l)
		if err != nil {
			return err
		}
		bound[i] = h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return exception.ErrRegistrationFrozen
	}
	name := listenerName(l)
	for i, c := range categories {
		r.table[c] = append(r.table[c], entry{name: name, handle: bound[i]})
	}
	return nil
}

func (r *registry) freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return
	}
	for i := range r.table {
		r.table[i] = slices.Clip(r.table[i])
	}
	r.frozen.Store(true)
}

func (r *registry) entries(c schema.EventCategory) []entry {
	if r.frozen.Load() {
		return r.table[c]
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.table[c])
}

func (r *registry) count(c schema.EventCategory) int {
	return len(r.entries(c))
}
