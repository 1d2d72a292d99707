package recorder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
)

var (
	ErrChecksumMismatch = errors.New("wal checksum mismatch")
	// ErrTruncated marks a record cut short, typically the tail of a segment
	// that was still being written.
	ErrTruncated = errors.New("wal truncated record")
)

// ReaderOptions controls record decoding.
type ReaderOptions struct {
	DisableChecksum bool
	MaxPayloadSize  int
}

// Reader decodes WAL records sequentially.
type Reader struct {
	r         *bufio.Reader
	opts      ReaderOptions
	headerBuf []byte
	payload   []byte
}

// NewReader wraps an io.Reader with WAL decoding.
func NewReader(r io.Reader, opts ReaderOptions) *Reader {
	return &Reader{
		r:         bufio.NewReader(r),
		opts:      opts,
		headerBuf: make([]byte, recordHeaderSize),
	}
}

// Next returns the next record header and raw payload. The payload is only
// valid until the next call to Next.
func (r *Reader) Next() (schema.EventHeader, []byte, error) {
	var header schema.EventHeader

	if n, err := io.ReadFull(r.r, r.headerBuf); err != nil {
		if err == io.EOF && n == 0 {
			return header, nil, io.EOF
		}
		return header, nil, truncated(err)
	}

	header, payloadLen, err := decodeRecordHeader(r.headerBuf)
	if err != nil {
		return header, nil, err
	}
	if r.opts.MaxPayloadSize > 0 && payloadLen > uint32(r.opts.MaxPayloadSize) {
		return header, nil, ErrPayloadTooLarge
	}

	if cap(r.payload) < int(payloadLen) {
		r.payload = make([]byte, payloadLen)
	}
	r.payload = r.payload[:payloadLen]
	if _, err := io.ReadFull(r.r, r.payload); err != nil {
		return header, nil, truncated(err)
	}

	var checksumBuf [recordChecksumSize]byte
	if _, err := io.ReadFull(r.r, checksumBuf[:]); err != nil {
		return header, nil, truncated(err)
	}
	if !r.opts.DisableChecksum && checksum(r.headerBuf, r.payload) != binary.LittleEndian.Uint32(checksumBuf[:]) {
		return header, nil, ErrChecksumMismatch
	}
	return header, r.payload, nil
}

// NextEvent returns the next record decoded into an event.
func (r *Reader) NextEvent() (schema.Event, error) {
	header, payload, err := r.Next()
	if err != nil {
		return schema.Event{}, err
	}
	return codec.Decode(header, payload)
}

func truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ErrTruncated
	}
	return err
}
