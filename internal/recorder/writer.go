package recorder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"tradecore/internal/schema"
)

var (
	ErrQueueFull       = errors.New("wal queue full")
	ErrClosed          = errors.New("wal writer closed")
	ErrNotStarted      = errors.New("wal writer not started")
	ErrAlreadyStarted  = errors.New("wal writer already started")
	ErrPayloadTooLarge = errors.New("wal payload too large")
)

const maxPayloadLen = uint64(^uint32(0))

// Writer appends records to WAL segments from a buffered queue on a single
// goroutine.
type Writer struct {
	cfg    Config
	ch     chan request
	done   chan struct{}
	exited chan struct{}
	err    atomic.Pointer[errBox]

	started   uint32
	closed    uint32
	active    atomic.Int32
	closeOnce sync.Once
}

// NewWriter creates a WAL writer and ensures the target directory exists.
func NewWriter(cfg Config) (*Writer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	return &Writer{
		cfg:    cfg,
		ch:     make(chan request, cfg.QueueSize),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Start runs the writer loop in a new goroutine.
func (w *Writer) Start(ctx context.Context) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if !atomic.CompareAndSwapUint32(&w.started, 0, 1) {
		return ErrAlreadyStarted
	}
	go func() {
		defer close(w.exited)
		w.run(ctx)
	}()
	return nil
}

// Close stops accepting records, writes what is queued and closes the
// current segment.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		atomic.StoreUint32(&w.closed, 1)
		close(w.done)
	})
	if atomic.LoadUint32(&w.started) != 0 {
		<-w.exited
	}
	return w.Err()
}

// Err returns the first error observed by the writer, if any.
func (w *Writer) Err() error {
	if b := w.err.Load(); b != nil {
		return b.err
	}
	return nil
}

// Pending returns the number of queued requests.
func (w *Writer) Pending() int {
	return len(w.ch)
}

// Active returns 1 while the writer goroutine is handling a request.
func (w *Writer) Active() int {
	return int(w.active.Load())
}

func (w *Writer) check(payload []byte) error {
	if atomic.LoadUint32(&w.closed) != 0 {
		return ErrClosed
	}
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	if err := w.Err(); err != nil {
		return err
	}
	if uint64(len(payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}
	return nil
}

func normalize(header schema.EventHeader) schema.EventHeader {
	if header.Version == 0 {
		header.Version = schema.SchemaVersion
	}
	return header
}

// TryAppend enqueues a record without blocking. The writer owns payload
// afterwards.
func (w *Writer) TryAppend(header schema.EventHeader, payload []byte) error {
	if err := w.check(payload); err != nil {
		return err
	}
	select {
	case w.ch <- request{header: normalize(header), payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Append enqueues a record, waiting for queue space. The writer owns payload
// afterwards.
func (w *Writer) Append(header schema.EventHeader, payload []byte) error {
	if err := w.check(payload); err != nil {
		return err
	}
	select {
	case w.ch <- request{header: normalize(header), payload: payload}:
		return nil
	case <-w.done:
		return ErrClosed
	case <-w.exited:
		return w.exitErr()
	}
}

// Flush waits until every record queued before the call is written and
// synced to disk.
func (w *Writer) Flush() error {
	if atomic.LoadUint32(&w.started) == 0 {
		return ErrNotStarted
	}
	ack := make(chan error, 1)
	select {
	case w.ch <- request{flush: ack}:
	case <-w.done:
		return ErrClosed
	case <-w.exited:
		return w.exitErr()
	}
	select {
	case err := <-ack:
		return err
	case <-w.exited:
		select {
		case err := <-ack:
			return err
		default:
			return w.exitErr()
		}
	}
}

func (w *Writer) exitErr() error {
	if err := w.Err(); err != nil {
		return err
	}
	return ErrClosed
}

func (w *Writer) run(ctx context.Context) {
	var (
		seg         *segmentWriter
		segID       uint64
		headerBuf   = make([]byte, recordHeaderSize)
		checksumBuf [recordChecksumSize]byte
		flushC      <-chan time.Time
		syncC       <-chan time.Time
	)

	if w.cfg.FlushInterval > 0 {
		t := time.NewTicker(w.cfg.FlushInterval)
		defer t.Stop()
		flushC = t.C
	}
	if w.cfg.SyncInterval > 0 {
		t := time.NewTicker(w.cfg.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	defer func() {
		if err := w.closeSegment(seg); err != nil {
			w.setErr(err)
		}
	}()

	handle := func(req request) bool {
		w.active.Store(1)
		if req.flush != nil {
			err := w.syncSegment(seg)
			if err != nil {
				w.setErr(err)
			}
			w.active.Store(0)
			req.flush <- err
			return err == nil
		}
		err := w.writeRecord(&seg, &segID, headerBuf, &checksumBuf, req)
		w.active.Store(0)
		if err != nil {
			w.setErr(err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			w.drain(handle)
			return
		case <-w.done:
			w.drain(handle)
			return
		case req := <-w.ch:
			if !handle(req) {
				w.failPending()
				return
			}
		case <-flushC:
			if err := w.flushSegment(seg); err != nil {
				w.setErr(err)
				w.failPending()
				return
			}
		case <-syncC:
			if err := w.syncSegment(seg); err != nil {
				w.setErr(err)
				w.failPending()
				return
			}
		}
	}
}

func (w *Writer) drain(handle func(request) bool) {
	for {
		select {
		case req := <-w.ch:
			if !handle(req) {
				w.failPending()
				return
			}
		default:
			return
		}
	}
}

// failPending answers queued flush requests after a fatal write error.
func (w *Writer) failPending() {
	for {
		select {
		case req := <-w.ch:
			if req.flush != nil {
				req.flush <- w.Err()
			}
		default:
			return
		}
	}
}

func (w *Writer) writeRecord(seg **segmentWriter, segID *uint64, headerBuf []byte, checksumBuf *[recordChecksumSize]byte, req request) error {
	if uint64(len(req.payload)) > maxPayloadLen {
		return ErrPayloadTooLarge
	}

	now := time.Now().UTC()
	recordSize := int64(recordHeaderSize + len(req.payload) + recordChecksumSize)
	if w.shouldRotate(*seg, now, recordSize) {
		if err := w.closeSegment(*seg); err != nil {
			return err
		}
		opened, err := w.openSegment(segID, now)
		if err != nil {
			return err
		}
		*seg = opened
	}

	encodeHeader(headerBuf, req.header, len(req.payload))
	binary.LittleEndian.PutUint32(checksumBuf[:], checksum(headerBuf, req.payload))

	if _, err := (*seg).buf.Write(headerBuf); err != nil {
		return err
	}
	if _, err := (*seg).buf.Write(req.payload); err != nil {
		return err
	}
	if _, err := (*seg).buf.Write(checksumBuf[:]); err != nil {
		return err
	}
	(*seg).size += recordSize
	return nil
}

func (w *Writer) shouldRotate(seg *segmentWriter, now time.Time, nextSize int64) bool {
	if seg == nil {
		return true
	}
	if seg.size > 0 && seg.size+nextSize > w.cfg.SegmentMaxBytes {
		return true
	}
	return w.cfg.SegmentMaxDuration > 0 && now.Sub(seg.openedAt) >= w.cfg.SegmentMaxDuration
}

func (w *Writer) flushSegment(seg *segmentWriter) error {
	if seg == nil {
		return nil
	}
	return seg.buf.Flush()
}

func (w *Writer) syncSegment(seg *segmentWriter) error {
	if seg == nil {
		return nil
	}
	if err := seg.buf.Flush(); err != nil {
		return err
	}
	return seg.file.Sync()
}

func (w *Writer) closeSegment(seg *segmentWriter) error {
	if seg == nil {
		return nil
	}
	if err := w.syncSegment(seg); err != nil {
		_ = seg.file.Close()
		return err
	}
	return seg.file.Close()
}

func (w *Writer) openSegment(segID *uint64, now time.Time) (*segmentWriter, error) {
	ts := now.Format("20060102-150405")
	for {
		*segID++
		name := fmt.Sprintf("%s-%s-%06d.wal", w.cfg.FilePrefix, ts, *segID)
		file, err := os.OpenFile(filepath.Join(w.cfg.Dir, name), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return nil, err
		}
		return &segmentWriter{
			file:     file,
			buf:      bufio.NewWriterSize(file, w.cfg.BufferSize),
			openedAt: now,
		}, nil
	}
}

func (w *Writer) setErr(err error) {
	if err == nil {
		return
	}
	w.err.CompareAndSwap(nil, &errBox{err: err})
}

type errBox struct{ err error }

// request is either a record or, when flush is set, a flush barrier.
type request struct {
	header  schema.EventHeader
	payload []byte
	flush   chan error
}

type segmentWriter struct {
	file     *os.File
	buf      *bufio.Writer
	size     int64
	openedAt time.Time
}
