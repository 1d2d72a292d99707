package schema

import (
	"fmt"

	"github.com/yanun0323/errors"

	"tradecore/pkg/exception"
)

// SchemaVersion is the current event schema version.
const SchemaVersion uint16 = 1

// EventCategory is the closed set of event kinds carried by the bus. Each
// category is bound to exactly one payload type.
type EventCategory uint8

const (
	_category_beg EventCategory = iota
	CategoryMarketData
	CategoryMarketOrder
	CategoryOrderStatus
	CategoryPosition
	CategoryIndicator
	CategoryModelInfo
	CategoryPLInfo
	CategoryExecutionInfo
	CategoryTimerInfo
	CategorySystemInfo
	_category_end
)

// CategoryCount sizes arrays indexed by EventCategory.
const CategoryCount = int(_category_end)

var categoryNames = [_category_end]string{
	CategoryMarketData:    "MarketData",
	CategoryMarketOrder:   "MarketOrder",
	CategoryOrderStatus:   "OrderStatus",
	CategoryPosition:      "Position",
	CategoryIndicator:     "Indicator",
	CategoryModelInfo:     "ModelInfo",
	CategoryPLInfo:        "PLInfo",
	CategoryExecutionInfo: "ExecutionInfo",
	CategoryTimerInfo:     "TimerInfo",
	CategorySystemInfo:    "SystemInfo",
}

// Categories returns every available category in declaration order.
func Categories() []EventCategory {
	out := make([]EventCategory, 0, CategoryCount-1)
	for c := _category_beg + 1; c < _category_end; c++ {
		out = append(out, c)
	}
	return out
}

func (c EventCategory) IsAvailable() bool {
	return c > _category_beg && c < _category_end
}

func (c EventCategory) String() string {
	if !c.IsAvailable() {
		return fmt.Sprintf("Category(%d)", c)
	}
	return categoryNames[c]
}

// ParseCategory resolves a category by its String form.
func ParseCategory(name string) (EventCategory, error) {
	for c := _category_beg + 1; c < _category_end; c++ {
		if categoryNames[c] == name {
			return c, nil
		}
	}
	return 0, errors.Wrap(exception.ErrUnknownCategory, name)
}

func (c EventCategory) MarshalText() ([]byte, error) {
	if !c.IsAvailable() {
		return nil, exception.ErrUnknownCategory
	}
	return []byte(categoryNames[c]), nil
}

func (c *EventCategory) UnmarshalText(text []byte) error {
	parsed, err := ParseCategory(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Header flags.
const (
	// FlagWarmup marks events replayed only to warm up stateful listeners.
	FlagWarmup uint16 = 1 << iota
	// FlagReplay marks events produced by the historical replay driver.
	FlagReplay
)

// EventHeader is the common metadata attached to every event.
type EventHeader struct {
	Category EventCategory
	Version  uint16
	Source   uint16
	Flags    uint16
	Seq      uint64
	TsEvent  int64
	TsRecv   int64
	TraceID  uint64
}

// NewHeader builds a header with the current schema version.
func NewHeader(category EventCategory, source uint16, seq uint64, tsEvent, tsRecv int64) EventHeader {
	return EventHeader{
		Category: category,
		Version:  SchemaVersion,
		Source:   source,
		Seq:      seq,
		TsEvent:  tsEvent,
		TsRecv:   tsRecv,
	}
}

// Event is the unit passed through the bus.
type Event struct {
	Header  EventHeader
	Payload Payload
}

// NewEvent builds an event whose header category is taken from the payload.
func NewEvent(payload Payload) Event {
	var category EventCategory
	if payload != nil {
		category = payload.Category()
	}
	return Event{
		Header:  EventHeader{Category: category, Version: SchemaVersion},
		Payload: payload,
	}
}

// Category returns the declared category of the event.
func (e Event) Category() EventCategory {
	return e.Header.Category
}

// Validate rejects events whose declared category is unknown or does not
// match the payload type.
func (e Event) Validate() error {
	if !e.Header.Category.IsAvailable() {
		return exception.ErrUnknownCategory
	}
	if e.Payload == nil {
		return exception.ErrNilPayload
	}
	if got := e.Payload.Category(); got != e.Header.Category {
		return errors.Wrapf(exception.ErrCategoryMismatch, "declared %s, payload %T is %s", e.Header.Category, e.Payload, got)
	}
	return nil
}
