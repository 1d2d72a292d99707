package state

import (
	"sync"
	"time"

	"tradecore/internal/bus"
	"tradecore/internal/schema"
)

var _ bus.ExecutionListener = (*Positions)(nil)

// Positions tracks net quantity per symbol from executions.
type Positions struct {
	mu        sync.RWMutex
	positions map[string]schema.Quantity
	last      time.Time
}

func NewPositions() *Positions {
	return &Positions{positions: make(map[string]schema.Quantity)}
}

func (r *Positions) Name() string {
	return "positions"
}

func (r *Positions) OnExecution(exec schema.ExecutionInfo) error {
	r.Apply(exec)
	return nil
}

// Apply updates the position and returns the new quantity.
func (r *Positions) Apply(exec schema.ExecutionInfo) schema.Quantity {
	r.mu.Lock()
	defer r.mu.Unlock()
	current := r.positions[exec.Symbol]
	next := current
	switch exec.Side {
	case schema.OrderSideBuy:
		next = current + exec.Qty
	case schema.OrderSideSell:
		next = current - exec.Qty
	}
	r.positions[exec.Symbol] = next
	if exec.Time.After(r.last) {
		r.last = exec.Time
	}
	return next
}

// ApplySnapshot replaces positions with a snapshot.
func (r *Positions) ApplySnapshot(snapshot Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.positions)
	for _, entry := range snapshot.Positions {
		r.positions[entry.Symbol] = entry.Qty
	}
	r.last = snapshot.LastEventTime
}

func (r *Positions) Position(symbol string) schema.Quantity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.positions[symbol]
}

func (r *Positions) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.positions)
}
