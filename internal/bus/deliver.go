package bus

import (
	"time"

	"github.com/yanun0323/logs"

	"tradecore/internal/obs"
	"tradecore/internal/schema"
)

// invoke runs one listener for one event. Errors and panics stay here.
func invoke(ent entry, e schema.Event, metrics *obs.Metrics) {
	start := time.Now()
	failed := false
	defer func() {
		if r := recover(); r != nil {
			failed = true
			logs.Errorf("listener %s panicked on %s seq %d: %v", ent.name, e.Category(), e.Header.Seq, r)
		}
		metrics.ObserveDelivery(e.Category(), time.Since(start), failed)
	}()

	if err := ent.handle(e); err != nil {
		failed = true
		logs.Errorf("listener %s failed on %s seq %d, err: %+v", ent.name, e.Category(), e.Header.Seq, err)
	}
}
