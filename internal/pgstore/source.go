package pgstore

import (
	"context"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"gorm.io/gorm"

	"tradecore/internal/replay"
	"tradecore/internal/schema"
)

var _ replay.Source = (*HistorySource)(nil)

// HistorySource serves market data rows from event_records to the replay
// driver.
type HistorySource struct {
	db *gorm.DB
}

func NewHistorySource(db *gorm.DB) *HistorySource {
	return &HistorySource{db: db}
}

func (h *HistorySource) Load(ctx context.Context, q replay.Query) ([]schema.MarketUpdate, error) {
	tx := h.db.WithContext(ctx).
		Where("category = ? AND event_time >= ? AND event_time < ?", uint8(schema.CategoryMarketData), q.Start.UTC(), q.End.UTC())
	if len(q.Symbols) != 0 {
		tx = tx.Where("symbol IN ?", q.Symbols)
	}

	var rows []EventRecord
	if err := tx.Order("event_time, seq").Find(&rows).Error; err != nil {
		return nil, errors.Wrapf(err, "load market data [%s, %s)", q.Start, q.End)
	}
	return marketUpdates(rows), nil
}

// marketUpdates decodes rows, logging and skipping those that do not decode.
func marketUpdates(rows []EventRecord) []schema.MarketUpdate {
	out := make([]schema.MarketUpdate, 0, len(rows))
	for _, row := range rows {
		e, err := row.Event()
		if err != nil {
			logs.Errorf("event_records id %d, err: %+v", row.ID, err)
			continue
		}
		if md, ok := e.Payload.(schema.MarketUpdate); ok {
			out = append(out, md)
		}
	}
	replay.SortByTime(out)
	return out
}
