package recorder

import (
	"fmt"
	"time"
)

const (
	defaultSegmentMaxBytes int64 = 256 << 20
	defaultQueueSize             = 8192
	defaultBufferSize            = 256 * 1024
	defaultFilePrefix            = "events"
)

var defaultSegmentMaxDuration = time.Hour

// Config controls the WAL writer.
type Config struct {
	Dir                string        `json:"dir" yaml:"dir"`
	FilePrefix         string        `json:"filePrefix" yaml:"filePrefix"`
	SegmentMaxBytes    int64         `json:"segmentMaxBytes" yaml:"segmentMaxBytes"`
	SegmentMaxDuration time.Duration `json:"segmentMaxDuration" yaml:"segmentMaxDuration"`
	QueueSize          int           `json:"queueSize" yaml:"queueSize"`
	BufferSize         int           `json:"bufferSize" yaml:"bufferSize"`
	// FlushInterval and SyncInterval add periodic flushes on top of explicit
	// WriteToDisk calls. Zero disables them.
	FlushInterval time.Duration `json:"flushInterval" yaml:"flushInterval"`
	SyncInterval  time.Duration `json:"syncInterval" yaml:"syncInterval"`
}

// DefaultConfig returns a baseline configuration for the WAL writer.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                dir,
		FilePrefix:         defaultFilePrefix,
		SegmentMaxBytes:    defaultSegmentMaxBytes,
		SegmentMaxDuration: defaultSegmentMaxDuration,
		QueueSize:          defaultQueueSize,
		BufferSize:         defaultBufferSize,
	}
}

func (c Config) withDefaults() Config {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	if c.SegmentMaxBytes == 0 {
		c.SegmentMaxBytes = defaultSegmentMaxBytes
	}
	if c.QueueSize == 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.BufferSize == 0 {
		c.BufferSize = defaultBufferSize
	}
	return c
}

// Validate checks if the configuration is usable.
func (c Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid recorder config: Dir is empty")
	}
	if c.FilePrefix == "" {
		return fmt.Errorf("invalid recorder config: FilePrefix is empty")
	}
	if c.SegmentMaxBytes <= 0 {
		return fmt.Errorf("invalid recorder config: SegmentMaxBytes must be > 0")
	}
	if c.SegmentMaxDuration < 0 {
		return fmt.Errorf("invalid recorder config: SegmentMaxDuration must be >= 0")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("invalid recorder config: QueueSize must be > 0")
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid recorder config: BufferSize must be > 0")
	}
	if c.FlushInterval < 0 || c.SyncInterval < 0 {
		return fmt.Errorf("invalid recorder config: FlushInterval and SyncInterval must be >= 0")
	}
	return nil
}
