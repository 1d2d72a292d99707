package feed

import (
	"context"

	"tradecore/internal/schema"
)

// Feed pushes live market updates to handle, in arrival order and from a
// single goroutine, until ctx is done or the source fails.
type Feed interface {
	Run(ctx context.Context, handle func(schema.MarketUpdate)) error
}
