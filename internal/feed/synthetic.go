package feed

import (
	"context"
	"fmt"
	"time"

	"tradecore/internal/schema"
)

// SyntheticConfig shapes generated quotes.
type SyntheticConfig struct {
	Symbols   []string        `json:"symbols" yaml:"symbols"`
	BasePrice schema.Price    `json:"basePrice" yaml:"basePrice"`
	BaseSize  schema.Quantity `json:"baseSize" yaml:"baseSize"`
	Spread    schema.Price    `json:"spread" yaml:"spread"`
	Interval  time.Duration   `json:"interval" yaml:"interval"`
	// Start switches to simulated time: quotes are stamped Start, Start +
	// Interval, ... and produced without waiting.
	Start time.Time `json:"start" yaml:"start"`
	// Count stops the feed after that many quotes. Zero runs until ctx is done.
	Count int `json:"count" yaml:"count"`
}

// Synthetic produces round-robin quotes for a fixed symbol list.
type Synthetic struct {
	cfg   SyntheticConfig
	index int
	step  int64
}

func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("invalid synthetic config: Symbols is empty")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid synthetic config: Interval must be > 0")
	}
	if cfg.Count < 0 {
		return nil, fmt.Errorf("invalid synthetic config: Count must be >= 0")
	}
	if cfg.BaseSize <= 0 {
		cfg.BaseSize = 1
	}
	if cfg.Spread < 0 {
		cfg.Spread = 0
	}
	return &Synthetic{cfg: cfg}, nil
}

// Next creates the next quote in sequence. The mid walks up and down in a
// saw-tooth of 16 ticks.
func (g *Synthetic) Next(now time.Time) schema.MarketUpdate {
	symbol := g.cfg.Symbols[g.index]
	g.index = (g.index + 1) % len(g.cfg.Symbols)
	offset := g.step % 16
	if g.step/16%2 == 1 {
		offset = 16 - offset
	}
	g.step++
	mid := g.cfg.BasePrice + schema.Price(offset)
	return schema.MarketUpdate{
		Symbol:    symbol,
		Bid:       mid - g.cfg.Spread,
		Ask:       mid + g.cfg.Spread,
		BidSize:   g.cfg.BaseSize,
		AskSize:   g.cfg.BaseSize,
		EventTime: now,
	}
}

func (g *Synthetic) Run(ctx context.Context, handle func(schema.MarketUpdate)) error {
	if !g.cfg.Start.IsZero() {
		for i := 0; g.cfg.Count == 0 || i < g.cfg.Count; i++ {
			if ctx.Err() != nil {
				return nil
			}
			handle(g.Next(g.cfg.Start.Add(time.Duration(i) * g.cfg.Interval)))
		}
		return nil
	}

	ticker := time.NewTicker(g.cfg.Interval)
	defer ticker.Stop()
	for i := 0; g.cfg.Count == 0 || i < g.cfg.Count; i++ {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			handle(g.Next(now))
		}
	}
	return nil
}
