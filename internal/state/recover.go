package state

import (
	"context"
	"fmt"

	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

// RecoverConfig controls snapshot + WAL recovery.
type RecoverConfig struct {
	WALDir          string
	SnapshotPath    string
	FilePrefix      string
	DisableChecksum bool
	MaxPayloadSize  int
}

// RecoverResult contains recovered state and metadata.
type RecoverResult struct {
	Positions *Positions
	Applied   int
	LastSeq   uint64
}

// RecoverPositions loads a snapshot and replays the executions recorded after
// it to rebuild positions.
func RecoverPositions(ctx context.Context, cfg RecoverConfig) (RecoverResult, error) {
	if cfg.WALDir == "" {
		return RecoverResult{}, fmt.Errorf("wal dir is empty")
	}
	positions := NewPositions()
	var snapshot Snapshot
	if cfg.SnapshotPath != "" {
		var err error
		snapshot, err = ReadSnapshot(cfg.SnapshotPath)
		if err != nil {
			return RecoverResult{}, err
		}
		positions.ApplySnapshot(snapshot)
	}

	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             cfg.WALDir,
		FilePrefix:      cfg.FilePrefix,
		Categories:      []schema.EventCategory{schema.CategoryExecutionInfo},
		DisableChecksum: cfg.DisableChecksum,
		MaxPayloadSize:  cfg.MaxPayloadSize,
	})
	if err != nil {
		return RecoverResult{}, err
	}

	result := RecoverResult{Positions: positions}
	err = pb.Run(ctx, func(e schema.Event) error {
		exec, ok := e.Payload.(schema.ExecutionInfo)
		if !ok {
			return nil
		}
		if !snapshot.LastEventTime.IsZero() && !exec.Time.After(snapshot.LastEventTime) {
			return nil
		}
		positions.Apply(exec)
		result.Applied++
		if e.Header.Seq > result.LastSeq {
			result.LastSeq = e.Header.Seq
		}
		return nil
	})
	if err != nil {
		return RecoverResult{}, err
	}
	return result, nil
}
