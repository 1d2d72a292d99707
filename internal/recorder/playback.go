package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// PlaybackConfig controls WAL playback.
type PlaybackConfig struct {
	Dir        string
	FilePrefix string
	// Categories limits playback to these categories. Empty plays all.
	Categories []schema.EventCategory
	// Speed paces playback by event time; 1 is real time, 0 is as fast as
	// possible.
	Speed           float64
	UseRecvTime     bool
	DisableChecksum bool
	MaxPayloadSize  int
}

func (c PlaybackConfig) withDefaults() PlaybackConfig {
	if c.FilePrefix == "" {
		c.FilePrefix = defaultFilePrefix
	}
	return c
}

// Validate checks if the config is usable.
func (c PlaybackConfig) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("invalid playback config: Dir is empty")
	}
	if c.Speed < 0 {
		return fmt.Errorf("invalid playback config: Speed must be >= 0")
	}
	if c.MaxPayloadSize < 0 {
		return fmt.Errorf("invalid playback config: MaxPayloadSize must be >= 0")
	}
	return nil
}

// Sleeper allows deterministic pacing in tests.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Playback replays WAL records in segment order.
type Playback struct {
	cfg     PlaybackConfig
	sleeper Sleeper
	filter  [schema.CategoryCount]bool
}

// NewPlayback validates the config and creates a playback engine.
func NewPlayback(cfg PlaybackConfig) (*Playback, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Playback{cfg: cfg, sleeper: realSleeper{}}
	for _, c := range schema.Categories() {
		p.filter[c] = len(cfg.Categories) == 0 || slices.Contains(cfg.Categories, c)
	}
	return p, nil
}

// WithSleeper swaps the pacing implementation.
func (p *Playback) WithSleeper(s Sleeper) *Playback {
	if s != nil {
		p.sleeper = s
	}
	return p
}

// Run decodes records and calls handler for each selected event. Undecodable
// payloads and a truncated segment tail are logged and skipped; a handler
// error stops playback.
func (p *Playback) Run(ctx context.Context, handler func(schema.Event) error) error {
	if handler == nil {
		return errors.New("playback handler is nil")
	}
	files, err := p.Files()
	if err != nil {
		return err
	}

	var prevTS int64
	for _, path := range files {
		if err := p.playFile(ctx, path, handler, &prevTS); err != nil {
			return err
		}
	}
	return nil
}

// Files lists the segments in write order.
func (p *Playback) Files() ([]string, error) {
	entries, err := os.ReadDir(p.cfg.Dir)
	if err != nil {
		return nil, err
	}
	prefix := p.cfg.FilePrefix + "-"
	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".wal") {
			continue
		}
		files = append(files, filepath.Join(p.cfg.Dir, name))
	}
	sort.Strings(files)
	return files, nil
}

func (p *Playback) playFile(ctx context.Context, path string, handler func(schema.Event) error, prevTS *int64) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := NewReader(file, ReaderOptions{
		DisableChecksum: p.cfg.DisableChecksum,
		MaxPayloadSize:  p.cfg.MaxPayloadSize,
	})

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		header, payload, err := reader.Next()
		switch {
		case err == io.EOF:
			return nil
		case errors.Is(err, ErrTruncated):
			logs.Errorf("wal %s ends with a truncated record after seq %d", path, header.Seq)
			return nil
		case err != nil:
			return fmt.Errorf("read %s: %w", path, err)
		}
		if !header.Category.IsAvailable() || !p.filter[header.Category] {
			continue
		}

		e, err := codec.Decode(header, payload)
		if err != nil {
			if errors.Is(err, exception.ErrPayloadDecode) {
				logs.Errorf("wal %s seq %d, err: %+v", path, header.Seq, err)
				continue
			}
			return err
		}
		if err := p.pace(ctx, header, prevTS); err != nil {
			return err
		}
		if err := handler(e); err != nil {
			return err
		}
	}
}

func (p *Playback) pace(ctx context.Context, header schema.EventHeader, prevTS *int64) error {
	if p.cfg.Speed <= 0 {
		return nil
	}
	current := header.TsEvent
	if p.cfg.UseRecvTime {
		current = header.TsRecv
	}
	if current <= 0 {
		return nil
	}
	if *prevTS > 0 {
		if delta := current - *prevTS; delta > 0 {
			if err := p.sleeper.Sleep(ctx, time.Duration(float64(delta)/p.cfg.Speed)); err != nil {
				return err
			}
		}
	}
	*prevTS = current
	return nil
}
