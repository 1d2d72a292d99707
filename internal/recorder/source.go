package recorder

import (
	"context"

	"tradecore/internal/replay"
	"tradecore/internal/schema"
)

var _ replay.Source = (*HistorySource)(nil)

// HistorySource serves market data recorded in WAL segments to the replay
// driver. Each Load scans the segments once.
type HistorySource struct {
	playback *Playback
}

func NewHistorySource(dir, prefix string) (*HistorySource, error) {
	p, err := NewPlayback(PlaybackConfig{
		Dir:        dir,
		FilePrefix: prefix,
		Categories: []schema.EventCategory{schema.CategoryMarketData},
	})
	if err != nil {
		return nil, err
	}
	return &HistorySource{playback: p}, nil
}

func (h *HistorySource) Load(ctx context.Context, q replay.Query) ([]schema.MarketUpdate, error) {
	var out []schema.MarketUpdate
	err := h.playback.Run(ctx, func(e schema.Event) error {
		if md, ok := e.Payload.(schema.MarketUpdate); ok && q.Contains(md) {
			out = append(out, md)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	replay.SortByTime(out)
	return out, nil
}
