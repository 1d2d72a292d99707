package bus

import (
	"fmt"

	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Listener is any value implementing the capability interface of the
// categories it registers for, or EventListener for every category.
type Listener any

// EventListener receives events of any category.
type EventListener interface {
	OnEvent(schema.Event) error
}

// HandlerFunc adapts a function to EventListener.
type HandlerFunc func(schema.Event) error

func (f HandlerFunc) OnEvent(e schema.Event) error { return f(e) }

// Named listeners are logged by name instead of by type.
type Named interface {
	Name() string
}

type MarketUpdateListener interface {
	OnMarketUpdate(schema.MarketUpdate) error
}

type MarketOrderListener interface {
	OnMarketOrder(schema.MarketOrder) error
}

type OrderStatusListener interface {
	OnOrderStatus(schema.OrderStatus) error
}

type PositionListener interface {
	OnPosition(schema.PositionUpdate) error
}

type IndicatorListener interface {
	OnIndicator(schema.IndicatorUpdate) error
}

type ModelInfoListener interface {
	OnModelInfo(schema.ModelInfo) error
}

type PLListener interface {
	OnPL(schema.PLInfo) error
}

type ExecutionListener interface {
	OnExecution(schema.ExecutionInfo) error
}

type TimerListener interface {
	OnTimer(schema.TimerInfo) error
}

type SystemListener interface {
	OnSystem(schema.SystemInfo) error
}

type handler func(schema.Event) error

type entry struct {
	name   string
	handle handler
}

func listenerName(l Listener) string {
	if n, ok := l.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", l)
}

// bind resolves the capability of l for category c once, at registration.
// Payload assertions are safe because events are validated before dispatch.
func bind(c schema.EventCategory, l Listener) (handler, error) {
	if l == nil {
		return nil, exception.ErrNilListener
	}
	if !c.IsAvailable() {
		return nil, exception.ErrUnknownCategory
	}
	if el, ok := l.(EventListener); ok {
		return el.OnEvent, nil
	}

	var h handler
	switch c {
	case schema.CategoryMarketData:
		if v, ok := l.(MarketUpdateListener); ok {
			h = func(e schema.Event) error { return v.OnMarketUpdate(e.Payload.(schema.MarketUpdate)) }
		}
	case schema.CategoryMarketOrder:
		if v, ok := l.(MarketOrderListener); ok {
			h = func(e schema.Event) error { return v.OnMarketOrder(e.Payload.(schema.MarketOrder)) }
		}
	case schema.CategoryOrderStatus:
		if v, ok := l.(OrderStatusListener); ok {
			h = func(e schema.Event) error { return v.OnOrderStatus(e.Payload.(schema.OrderStatus)) }
		}
	case schema.CategoryPosition:
		if v, ok := l.(PositionListener); ok {
			h = func(e schema.Event) error { return v.OnPosition(e.Payload.(schema.PositionUpdate)) }
		}
	case schema.CategoryIndicator:
		if v, ok := l.(IndicatorListener); ok {
			h = func(e schema.Event) error { return v.OnIndicator(e.Payload.(schema.IndicatorUpdate)) }
		}
	case schema.CategoryModelInfo:
		if v, ok := l.(ModelInfoListener); ok {
			h = func(e schema.Event) error { return v.OnModelInfo(e.Payload.(schema.ModelInfo)) }
		}
	case schema.CategoryPLInfo:
		if v, ok := l.(PLListener); ok {
			h = func(e schema.Event) error { return v.OnPL(e.Payload.(schema.PLInfo)) }
		}
	case schema.CategoryExecutionInfo:
		if v, ok := l.(ExecutionListener); ok {
			h = func(e schema.Event) error { return v.OnExecution(e.Payload.(schema.ExecutionInfo)) }
		}
	case schema.CategoryTimerInfo:
		if v, ok := l.(TimerListener); ok {
			h = func(e schema.Event) error { return v.OnTimer(e.Payload.(schema.TimerInfo)) }
		}
	case schema.CategorySystemInfo:
		if v, ok := l.(SystemListener); ok {
			h = func(e schema.Event) error { return v.OnSystem(e.Payload.(schema.SystemInfo)) }
		}
	}
	if h == nil {
		return nil, errors.Wrapf(exception.ErrListenerCapability, "%s for %s", listenerName(l), c)
	}
	return h, nil
}
