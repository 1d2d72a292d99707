package recorder

import (
	"context"

	"tradecore/internal/codec"
	"tradecore/internal/persist"
	"tradecore/internal/schema"
)

var _ persist.Store = (*Store)(nil)

// Store persists bus events to WAL segments.
type Store struct {
	w *Writer
}

// NewStore opens a WAL store. Start must be called before Insert.
func NewStore(cfg Config) (*Store, error) {
	w, err := NewWriter(cfg)
	if err != nil {
		return nil, err
	}
	return &Store{w: w}, nil
}

func (s *Store) Start(ctx context.Context) error {
	return s.w.Start(ctx)
}

// Insert encodes e and queues it, waiting while the queue is full.
func (s *Store) Insert(e schema.Event) error {
	payload, err := codec.Encode(nil, e)
	if err != nil {
		return err
	}
	return s.w.Append(e.Header, payload)
}

// WriteToDisk flushes and syncs everything inserted so far.
func (s *Store) WriteToDisk() error {
	return s.w.Flush()
}

// FinalizeDisk writes the remaining queue and closes the segment. The store
// accepts no inserts afterwards.
func (s *Store) FinalizeDisk() error {
	return s.w.Close()
}

func (s *Store) PendingQueueSize() int {
	return s.w.Pending()
}

func (s *Store) ActiveWriterCount() int {
	return s.w.Active()
}
