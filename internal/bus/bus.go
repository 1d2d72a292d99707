package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yanun0323/errors"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(e schema.Event) error
}

// Bus is the publish/subscribe contract shared by both engines.
//
// Registrations happen before Freeze (Start freezes implicitly); afterwards
// the dispatch table is immutable. Publish returns an error only for invalid
// events or a closed bus. Listener failures and backpressure drops are logged
// and counted, never returned.
type Bus interface {
	Publisher
	RegisterListener(c schema.EventCategory, l Listener) error
	RegisterListeners(categories []schema.EventCategory, l Listener) error
	Freeze()
	Start(ctx context.Context) error
	Close() error
	Stats() Stats
	Metrics() *obs.Metrics
}

// Engine selects the delivery semantics.
type Engine string

const (
	EngineConcurrent Engine = "concurrent"
	EngineSync       Engine = "sync"
)

// Overflow is the policy applied when a category queue is full.
type Overflow uint8

const (
	// OverflowDrop waits up to EnqueueTimeout, then discards the event.
	OverflowDrop Overflow = iota
	// OverflowBlock waits until the queue has space or the bus closes.
	OverflowBlock
)

func (o Overflow) String() string {
	if o == OverflowBlock {
		return "block"
	}
	return "drop"
}

func (o Overflow) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Overflow) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "", "drop":
		*o = OverflowDrop
	case "block":
		*o = OverflowBlock
	default:
		return fmt.Errorf("unknown overflow policy: %q", text)
	}
	return nil
}

const (
	defaultEnqueueTimeout = 5 * time.Millisecond
	defaultWorkers        = 16
	defaultQueueCapacity  = 1024
)

var defaultCapacities = map[schema.EventCategory]int{
	schema.CategoryMarketData: 1 << 16,
	schema.CategoryIndicator:  1 << 14,
	schema.CategoryTimerInfo:  1 << 12,
}

// Order flow is not idempotent; shedding it silently corrupts downstream state.
var defaultOverflow = map[schema.EventCategory]Overflow{
	schema.CategoryMarketOrder:   OverflowBlock,
	schema.CategoryOrderStatus:   OverflowBlock,
	schema.CategoryPosition:      OverflowBlock,
	schema.CategoryExecutionInfo: OverflowBlock,
}

// Config controls engine selection and the concurrent engine's resources.
type Config struct {
	Engine         Engine
	QueueCapacity  map[schema.EventCategory]int
	Overflow       map[schema.EventCategory]Overflow
	EnqueueTimeout time.Duration
	Workers        int
	StatusInterval time.Duration
	Metrics        *obs.Metrics
}

// DefaultConfig returns a baseline configuration for the given engine.
func DefaultConfig(engine Engine) Config {
	return Config{Engine: engine}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Engine == "" {
		c.Engine = EngineConcurrent
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = defaultEnqueueTimeout
	}
	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}
	if c.Metrics == nil {
		c.Metrics = obs.NewMetrics()
	}
	capacity := make(map[schema.EventCategory]int, schema.CategoryCount)
	overflow := make(map[schema.EventCategory]Overflow, schema.CategoryCount)
	for _, cat := range schema.Categories() {
		capacity[cat] = defaultQueueCapacity
		if n, ok := defaultCapacities[cat]; ok {
			capacity[cat] = n
		}
		if n, ok := c.QueueCapacity[cat]; ok && n > 0 {
			capacity[cat] = n
		}
		overflow[cat] = defaultOverflow[cat]
		if o, ok := c.Overflow[cat]; ok {
			overflow[cat] = o
		}
	}
	c.QueueCapacity = capacity
	c.Overflow = overflow
	return c
}

// Validate checks if the config is usable.
func (c Config) Validate() error {
	switch c.Engine {
	case EngineConcurrent, EngineSync:
	default:
		return errors.Wrap(exception.ErrUnsupportedBusEngine, string(c.Engine))
	}
	if c.EnqueueTimeout < 0 {
		return fmt.Errorf("invalid bus config: EnqueueTimeout must be >= 0")
	}
	if c.Workers < 0 {
		return fmt.Errorf("invalid bus config: Workers must be >= 0")
	}
	if c.StatusInterval < 0 {
		return fmt.Errorf("invalid bus config: StatusInterval must be >= 0")
	}
	for cat, n := range c.QueueCapacity {
		if !cat.IsAvailable() {
			return errors.Wrapf(exception.ErrUnknownCategory, "queue capacity for %d", cat)
		}
		if n < 0 {
			return fmt.Errorf("invalid bus config: capacity of %s must be >= 0", cat)
		}
	}
	for cat := range c.Overflow {
		if !cat.IsAvailable() {
			return errors.Wrapf(exception.ErrUnknownCategory, "overflow policy for %d", cat)
		}
	}
	return nil
}

// New builds the engine named by cfg.Engine. The choice is fixed for the life
// of the process.
func New(cfg Config) (Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.withDefaults().Engine {
	case EngineSync:
		return NewSync(cfg), nil
	default:
		return NewConcurrent(cfg)
	}
}

// Stats is an operational view of a bus. It is not part of the delivery
// contract.
type Stats struct {
	Engine         Engine
	Queues         []obs.QueueDepth
	ActiveDispatch int64
	// PendingDispatch counts listener tasks waiting in worker pool lanes.
	PendingDispatch int
	Metrics         obs.Snapshot
}
