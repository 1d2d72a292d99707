package pgstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"tradecore/internal/persist"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

const (
	defaultWriters       = 2
	defaultBatchSize     = 500
	defaultQueueSize     = 8192
	defaultFlushInterval = 200 * time.Millisecond
)

// Config controls the Postgres batch writer.
type Config struct {
	Writers       int           `json:"writers" yaml:"writers"`
	BatchSize     int           `json:"batchSize" yaml:"batchSize"`
	QueueSize     int           `json:"queueSize" yaml:"queueSize"`
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
	AutoMigrate   bool          `json:"autoMigrate" yaml:"autoMigrate"`
}

func (c Config) withDefaults() Config {
	if c.Writers == 0 {
		c.Writers = defaultWriters
	}
	if c.BatchSize == 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = defaultFlushInterval
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Writers <= 0 {
		return fmt.Errorf("invalid pgstore config: Writers must be > 0")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("invalid pgstore config: BatchSize must be > 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid pgstore config: QueueSize must be > 0")
	}
	if c.FlushInterval < 0 {
		return fmt.Errorf("invalid pgstore config: FlushInterval must be >= 0")
	}
	return nil
}

type sink interface {
	insertBatch(ctx context.Context, rows []EventRecord) error
}

type gormSink struct {
	db *gorm.DB
}

func (s gormSink) insertBatch(ctx context.Context, rows []EventRecord) error {
	return s.db.WithContext(ctx).CreateInBatches(rows, len(rows)).Error
}

var _ persist.Store = (*Store)(nil)

// Store writes bus events to the event_records table with a pool of batch
// writers.
type Store struct {
	cfg  Config
	sink sink

	mu      sync.RWMutex
	closed  bool
	started atomic.Bool
	ch      chan EventRecord
	flushes []chan chan error
	g       errgroup.Group

	active atomic.Int32
	failed atomic.Uint64
}

// New creates a store on db, migrating the table when AutoMigrate is set.
func New(db *gorm.DB, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&EventRecord{}); err != nil {
			return nil, fmt.Errorf("migrate event_records: %w", err)
		}
	}
	return newStore(gormSink{db: db}, cfg), nil
}

func newStore(s sink, cfg Config) *Store {
	st := &Store{
		cfg:     cfg,
		sink:    s,
		ch:      make(chan EventRecord, cfg.QueueSize),
		flushes: make([]chan chan error, cfg.Writers),
	}
	for i := range st.flushes {
		st.flushes[i] = make(chan chan error)
	}
	return st
}

// Start launches the writers. Database calls outlive ctx cancellation so
// FinalizeDisk can still write the tail.
func (s *Store) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pgstore already started")
	}
	ctx = context.WithoutCancel(ctx)
	for i := range s.flushes {
		flushC := s.flushes[i]
		s.g.Go(func() error {
			s.run(ctx, flushC)
			return nil
		})
	}
	return nil
}

// Insert queues e, waiting while the queue is full.
func (s *Store) Insert(e schema.Event) error {
	row, err := NewRecord(e)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return exception.ErrStoreClosed
	}
	s.ch <- row
	return nil
}

// WriteToDisk makes every writer drain the queue and write its partial batch.
// The first write error since the last call is returned.
func (s *Store) WriteToDisk() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return exception.ErrStoreClosed
	}
	if !s.started.Load() {
		return fmt.Errorf("pgstore not started")
	}

	acks := make([]chan error, len(s.flushes))
	for i, flushC := range s.flushes {
		acks[i] = make(chan error, 1)
		flushC <- acks[i]
	}
	var first error
	for _, ack := range acks {
		if err := <-ack; err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FinalizeDisk stops accepting events and waits for the writers to finish.
func (s *Store) FinalizeDisk() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	s.mu.Unlock()

	if !s.started.Load() {
		return nil
	}
	_ = s.g.Wait()
	if n := s.failed.Load(); n > 0 {
		return fmt.Errorf("pgstore dropped %d events on write failures", n)
	}
	return nil
}

func (s *Store) PendingQueueSize() int {
	return len(s.ch)
}

func (s *Store) ActiveWriterCount() int {
	return int(s.active.Load())
}

// Failed returns the number of events lost to write errors.
func (s *Store) Failed() uint64 {
	return s.failed.Load()
}

func (s *Store) run(ctx context.Context, flushC chan chan error) {
	batch := make([]EventRecord, 0, s.cfg.BatchSize)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	// add marks the writer busy from the first buffered row until the batch is
	// written.
	add := func(row EventRecord) error {
		if len(batch) == 0 {
			s.active.Add(1)
		}
		batch = append(batch, row)
		if len(batch) >= s.cfg.BatchSize {
			return s.write(ctx, &batch)
		}
		return nil
	}

	for {
		select {
		case row, ok := <-s.ch:
			if !ok {
				_ = s.write(ctx, &batch)
				return
			}
			_ = add(row)
		case ack := <-flushC:
			var err error
			for drained := false; !drained; {
				select {
				case row, ok := <-s.ch:
					if !ok {
						drained = true
						break
					}
					if e := add(row); e != nil && err == nil {
						err = e
					}
				default:
					drained = true
				}
			}
			if e := s.write(ctx, &batch); e != nil && err == nil {
				err = e
			}
			ack <- err
		case <-ticker.C:
			_ = s.write(ctx, &batch)
		}
	}
}

func (s *Store) write(ctx context.Context, batch *[]EventRecord) error {
	rows := *batch
	if len(rows) == 0 {
		return nil
	}
	defer func() {
		*batch = rows[:0]
		s.active.Add(-1)
	}()
	if err := s.sink.insertBatch(ctx, rows); err != nil {
		s.failed.Add(uint64(len(rows)))
		logs.Errorf("pgstore insert %d rows (seq %d..%d), err: %+v", len(rows), rows[0].Seq, rows[len(rows)-1].Seq, err)
		return err
	}
	return nil
}
