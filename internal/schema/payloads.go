package schema

import (
	"time"

	"github.com/yanun0323/decimal"

	"tradecore/internal/period"
)

// Price is a scaled integer. The scale is defined by configuration.
type Price int64

// Quantity is a scaled integer. The scale is defined by configuration.
type Quantity int64

// Fee is a scaled integer. The scale is defined by configuration.
type Fee int64

// Payload is implemented by every event body. The set is closed: only the
// types in this file implement it.
type Payload interface {
	Category() EventCategory
	payload()
}

var (
	_ Payload = MarketUpdate{}
	_ Payload = MarketOrder{}
	_ Payload = OrderStatus{}
	_ Payload = PositionUpdate{}
	_ Payload = IndicatorUpdate{}
	_ Payload = ModelInfo{}
	_ Payload = PLInfo{}
	_ Payload = ExecutionInfo{}
	_ Payload = TimerInfo{}
	_ Payload = SystemInfo{}
)

// QuoteCondition is the venue quote condition code.
type QuoteCondition uint16

const (
	QuoteConditionNormal QuoteCondition = iota
	QuoteConditionIndicative
	QuoteConditionFast
	QuoteConditionClosed
)

// MarketUpdate is the payload for CategoryMarketData.
type MarketUpdate struct {
	Symbol    string         `json:"symbol"`
	Bid       Price          `json:"bid"`
	Ask       Price          `json:"ask"`
	BidSize   Quantity       `json:"bidSize"`
	AskSize   Quantity       `json:"askSize"`
	Condition QuoteCondition `json:"condition"`
	Flags     uint16         `json:"flags"`
	EventTime time.Time      `json:"eventTime"`
}

// Mid returns the midpoint of bid and ask, rounded toward zero.
func (m MarketUpdate) Mid() Price {
	return (m.Bid + m.Ask) / 2
}

// OrderSide describes order direction.
type OrderSide uint16

const (
	OrderSideUnknown OrderSide = iota
	OrderSideBuy
	OrderSideSell
)

// OrderType describes order type.
type OrderType uint16

const (
	OrderTypeUnknown OrderType = iota
	OrderTypeLimit
	OrderTypeMarket
)

// TimeInForce describes order time-in-force.
type TimeInForce uint16

const (
	TimeInForceUnknown TimeInForce = iota
	TimeInForceGTC
	TimeInForceIOC
	TimeInForceFOK
)

// MarketOrder is the payload for CategoryMarketOrder.
type MarketOrder struct {
	OrderID     uint64      `json:"orderId"`
	Model       string      `json:"model"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	TimeInForce TimeInForce `json:"timeInForce"`
	Price       Price       `json:"price"`
	Qty         Quantity    `json:"qty"`
	Time        time.Time   `json:"time"`
}

// OrderState describes the lifecycle state of an order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateAccepted
	OrderStatePartiallyFilled
	OrderStateFilled
	OrderStateCanceled
	OrderStateRejected
)

// OrderStatus is the payload for CategoryOrderStatus.
type OrderStatus struct {
	OrderID   uint64     `json:"orderId"`
	Symbol    string     `json:"symbol"`
	State     OrderState `json:"state"`
	FilledQty Quantity   `json:"filledQty"`
	LeavesQty Quantity   `json:"leavesQty"`
	AvgPrice  Price      `json:"avgPrice"`
	Reason    string     `json:"reason,omitempty"`
	Time      time.Time  `json:"time"`
}

// PositionUpdate is the payload for CategoryPosition.
type PositionUpdate struct {
	Model    string    `json:"model"`
	Symbol   string    `json:"symbol"`
	Qty      Quantity  `json:"qty"`
	AvgPrice Price     `json:"avgPrice"`
	Time     time.Time `json:"time"`
}

// IndicatorUpdate is the payload for CategoryIndicator.
type IndicatorUpdate struct {
	Name   string        `json:"name"`
	Symbol string        `json:"symbol"`
	Period period.Period `json:"period"`
	Value  float64       `json:"value"`
	Time   time.Time     `json:"time"`
}

// ModelAction is the control verb carried by ModelInfo.
type ModelAction uint8

const (
	ModelActionInfo ModelAction = iota
	ModelActionStart
	ModelActionStop
)

func (a ModelAction) String() string {
	switch a {
	case ModelActionStart:
		return "start"
	case ModelActionStop:
		return "stop"
	default:
		return "info"
	}
}

// ModelInfo is the payload for CategoryModelInfo.
type ModelInfo struct {
	Model    string      `json:"model,omitempty"`
	Action   ModelAction `json:"action"`
	Tradable bool        `json:"tradable"`
	Message  string      `json:"message,omitempty"`
	Time     time.Time   `json:"time"`
}

// PLInfo is the payload for CategoryPLInfo.
type PLInfo struct {
	Model      string          `json:"model"`
	Symbol     string          `json:"symbol"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
	Time       time.Time       `json:"time"`
}

// ExecutionInfo is the payload for CategoryExecutionInfo.
type ExecutionInfo struct {
	OrderID uint64    `json:"orderId"`
	Symbol  string    `json:"symbol"`
	Side    OrderSide `json:"side"`
	Price   Price     `json:"price"`
	Qty     Quantity  `json:"qty"`
	Fee     Fee       `json:"fee"`
	Time    time.Time `json:"time"`
}

// TimerKind distinguishes boundary crossings from weekly session edges.
type TimerKind uint8

const (
	TimerBoundary TimerKind = iota
	TimerWeekEnd
	TimerWeekStart
)

func (k TimerKind) String() string {
	switch k {
	case TimerWeekEnd:
		return "week-end"
	case TimerWeekStart:
		return "week-start"
	default:
		return "boundary"
	}
}

// TimerInfo is the payload for CategoryTimerInfo. For boundary notifications
// Current is the boundary just reached and Next the following one.
type TimerInfo struct {
	Kind    TimerKind     `json:"kind"`
	Period  period.Period `json:"period,omitempty"`
	Current time.Time     `json:"current"`
	Next    time.Time     `json:"next"`
}

// SystemKind describes a SystemInfo notice.
type SystemKind uint8

const (
	SystemNotice SystemKind = iota
	SystemStartup
	SystemShutdown
	SystemWindowStart
	SystemWindowEnd
	SystemReplayComplete
)

// SystemInfo is the payload for CategorySystemInfo.
type SystemInfo struct {
	Kind    SystemKind `json:"kind"`
	Message string     `json:"message,omitempty"`
	Time    time.Time  `json:"time"`
}

func (MarketUpdate) Category() EventCategory    { return CategoryMarketData }
func (MarketOrder) Category() EventCategory     { return CategoryMarketOrder }
func (OrderStatus) Category() EventCategory     { return CategoryOrderStatus }
func (PositionUpdate) Category() EventCategory  { return CategoryPosition }
func (IndicatorUpdate) Category() EventCategory { return CategoryIndicator }
func (ModelInfo) Category() EventCategory       { return CategoryModelInfo }
func (PLInfo) Category() EventCategory          { return CategoryPLInfo }
func (ExecutionInfo) Category() EventCategory   { return CategoryExecutionInfo }
func (TimerInfo) Category() EventCategory       { return CategoryTimerInfo }
func (SystemInfo) Category() EventCategory      { return CategorySystemInfo }

func (MarketUpdate) payload()    {}
func (MarketOrder) payload()     {}
func (OrderStatus) payload()     {}
func (PositionUpdate) payload()  {}
func (IndicatorUpdate) payload() {}
func (ModelInfo) payload()       {}
func (PLInfo) payload()          {}
func (ExecutionInfo) payload()   {}
func (TimerInfo) payload()       {}
func (SystemInfo) payload()      {}

// EventTime returns the event-time timestamp carried by a payload.
func EventTime(p Payload) time.Time {
	switch v := p.(type) {
	case MarketUpdate:
		return v.EventTime
	case MarketOrder:
		return v.Time
	case OrderStatus:
		return v.Time
	case PositionUpdate:
		return v.Time
	case IndicatorUpdate:
		return v.Time
	case ModelInfo:
		return v.Time
	case PLInfo:
		return v.Time
	case ExecutionInfo:
		return v.Time
	case TimerInfo:
		return v.Current
	case SystemInfo:
		return v.Time
	default:
		return time.Time{}
	}
}

// Symbol returns the instrument a payload refers to, or "" when it has none.
func Symbol(p Payload) string {
	switch v := p.(type) {
	case MarketUpdate:
		return v.Symbol
	case MarketOrder:
		return v.Symbol
	case OrderStatus:
		return v.Symbol
	case PositionUpdate:
		return v.Symbol
	case IndicatorUpdate:
		return v.Symbol
	case PLInfo:
		return v.Symbol
	case ExecutionInfo:
		return v.Symbol
	default:
		return ""
	}
}
