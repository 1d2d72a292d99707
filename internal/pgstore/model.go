package pgstore

import (
	"time"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
)

// EventRecord is one persisted bus event. Payloads are stored as JSON so the
// table stays queryable from SQL.
type EventRecord struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Category  uint8     `gorm:"column:category;not null;index:idx_event_records_lookup,priority:1"`
	Source    uint16    `gorm:"column:source;not null"`
	Flags     uint16    `gorm:"column:flags;not null"`
	Seq       int64     `gorm:"column:seq;not null"`
	TraceID   int64     `gorm:"column:trace_id"`
	Symbol    string    `gorm:"column:symbol;type:varchar(32);index:idx_event_records_lookup,priority:2"`
	EventTime time.Time `gorm:"column:event_time;not null;index:idx_event_records_lookup,priority:3"`
	RecvTime  time.Time `gorm:"column:recv_time"`
	Payload   []byte    `gorm:"column:payload;type:jsonb;not null"`
}

func (EventRecord) TableName() string {
	return "event_records"
}

// NewRecord converts a bus event into a row.
func NewRecord(e schema.Event) (EventRecord, error) {
	payload, err := codec.EncodeJSON(e)
	if err != nil {
		return EventRecord{}, err
	}
	h := e.Header
	return EventRecord{
		Category:  uint8(h.Category),
		Source:    h.Source,
		Flags:     h.Flags,
		Seq:       int64(h.Seq),
		TraceID:   int64(h.TraceID),
		Symbol:    schema.Symbol(e.Payload),
		EventTime: schema.EventTime(e.Payload).UTC(),
		RecvTime:  fromUnixNano(h.TsRecv),
		Payload:   payload,
	}, nil
}

// Event rebuilds the bus event stored in r.
func (r EventRecord) Event() (schema.Event, error) {
	c := schema.EventCategory(r.Category)
	p, err := codec.DecodeJSON(c, r.Payload)
	if err != nil {
		return schema.Event{}, err
	}
	header := schema.NewHeader(c, r.Source, uint64(r.Seq), unixNano(r.EventTime), unixNano(r.RecvTime))
	header.Flags = r.Flags
	header.TraceID = uint64(r.TraceID)
	return schema.Event{Header: header, Payload: p}, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
