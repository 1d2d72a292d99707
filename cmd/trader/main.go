package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"
	"golang.org/x/sync/errgroup"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/feed"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/persist"
	"tradecore/internal/replay"
	"tradecore/internal/schema"
	"tradecore/internal/state"
)

const liveSourceID uint16 = 0xA1

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config")
	recoverEnabled := flag.Bool("recover", false, "Rebuild positions from the snapshot and the WAL store before going live")
	flag.Parse()

	if *configPath == "" {
		logs.Errorf("-config is required")
		os.Exit(2)
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}

	if loaded.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: loaded.Profiling.ApplicationName,
			ServerAddress:   loaded.Profiling.ServerAddress,
			Tags:            map[string]string{"mode": string(loaded.Mode)},
			Logger:          profilerLogger{},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %+v", err)
			os.Exit(1)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-sys.Shutdown()
		logs.Info("shutdown signal received")
		cancel()
	}()

	switch loaded.Mode {
	case ops.ModeLive:
		err = runLive(ctx, loaded, *recoverEnabled)
	default:
		err = runBacktest(ctx, loaded)
	}
	if err != nil {
		logs.Errorf("%s run failed, err: %+v", loaded.Mode, err)
		os.Exit(1)
	}
}

func runBacktest(ctx context.Context, loaded ops.Loaded) error {
	res := &resources{pg: loaded.Postgres}
	defer res.Close()

	b, err := bus.New(loaded.Bus)
	if err != nil {
		return err
	}
	positions, history, err := registerState(b)
	if err != nil {
		return err
	}
	store, err := res.openStore(ctx, loaded.Store)
	if err != nil {
		return err
	}
	if store != nil {
		if _, err := persist.Register(b, "store", store, loaded.Store.Categories...); err != nil {
			return err
		}
	}
	source, err := res.openSource(loaded.Source)
	if err != nil {
		return err
	}

	opts := []replay.Option{replay.WithPruner(history)}
	// The driver may only finalize the store when delivery is synchronous;
	// otherwise queued events would reach a closed store. Config resolution
	// rejects flushToDisk in that case.
	driverOwnsStore := store != nil && loaded.Bus.Engine == bus.EngineSync
	if driverOwnsStore {
		opts = append(opts, replay.WithStore(store))
	} else if store != nil {
		logs.Infof("bus engine %s: store is finalized after the bus closes, per-window flushing is off", loaded.Bus.Engine)
	}
	driver, err := replay.NewDriver(loaded.Replay, source, loaded.Session, b, opts...)
	if err != nil {
		return err
	}

	stopMetrics := serveMetrics(loaded.Metrics, b)
	defer stopMetrics()

	if err := b.Start(ctx); err != nil {
		return err
	}
	result, runErr := driver.Run(ctx)
	if err := b.Close(); err != nil {
		logs.Errorf("close bus, err: %+v", err)
	}
	if store != nil && !driverOwnsStore {
		if err := store.FinalizeDisk(); err != nil {
			logs.Errorf("finalize store, err: %+v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	logs.Infof("backtest windows=%d empty=%d records=%d warmup=%d failures=%d positions=%d indicators=%d",
		result.Windows, result.EmptyWindows, result.Records, result.WarmupRecords, result.Failures, positions.Count(), history.Len())
	logStats(b)
	return writeSnapshot(loaded.Snapshot, positions)
}

func runLive(ctx context.Context, loaded ops.Loaded, recoverPositions bool) error {
	res := &resources{pg: loaded.Postgres}
	defer res.Close()

	b, err := bus.New(loaded.Bus)
	if err != nil {
		return err
	}
	positions, _, err := registerState(b)
	if err != nil {
		return err
	}
	if recoverPositions {
		if err := recoverInto(ctx, positions, loaded); err != nil {
			return err
		}
	}
	store, err := res.openStore(ctx, loaded.Store)
	if err != nil {
		return err
	}
	if store != nil {
		if _, err := persist.Register(b, "store", store, loaded.Store.Categories...); err != nil {
			return err
		}
	}
	f, err := openFeed(loaded.Feed)
	if err != nil {
		return err
	}

	em := bus.NewEmitter(b, liveSourceID, bus.WithTrace(obs.NewTraceGenerator(uint64(time.Now().UnixNano()))))
	pump := feed.NewPump(clock.New(loaded.Session, em), em, loaded.Models...)

	stopMetrics := serveMetrics(loaded.Metrics, b)
	defer stopMetrics()

	if err := b.Start(ctx); err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pump.Run(gctx, f)
	})
	runErr := g.Wait()

	if err := b.Close(); err != nil {
		logs.Errorf("close bus, err: %+v", err)
	}
	if store != nil {
		if err := store.FinalizeDisk(); err != nil {
			logs.Errorf("finalize store, err: %+v", err)
		}
	}
	logStats(b)
	if err := writeSnapshot(loaded.Snapshot, positions); err != nil {
		return err
	}
	return runErr
}

func registerState(b bus.Bus) (*state.Positions, *state.History, error) {
	positions := state.NewPositions()
	history := state.NewHistory()
	if err := b.RegisterListener(schema.CategoryExecutionInfo, positions); err != nil {
		return nil, nil, err
	}
	if err := b.RegisterListener(schema.CategoryIndicator, history); err != nil {
		return nil, nil, err
	}
	return positions, history, nil
}

func logStats(b bus.Bus) {
	s := b.Stats()
	for c, counters := range s.Metrics.Categories {
		if counters.Published == 0 {
			continue
		}
		logs.Infof("bus %s %s: published=%d delivered=%d dropped=%d listener_failures=%d",
			s.Engine, c, counters.Published, counters.Delivered, counters.Dropped, counters.ListenerFailures)
	}
	logs.Infof("bus %s dispatch avg=%s max=%s", s.Engine, s.Metrics.DispatchLatency.Avg, s.Metrics.DispatchLatency.Max)
}

func writeSnapshot(path string, positions *state.Positions) error {
	if path == "" {
		return nil
	}
	snap := positions.Snapshot()
	if err := state.WriteSnapshot(path, snap); err != nil {
		return err
	}
	logs.Infof("positions snapshot written to %s, symbols=%d", path, len(snap.Positions))
	return nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...interface{})  {}
func (profilerLogger) Debugf(format string, args ...interface{}) {}
func (profilerLogger) Errorf(format string, args ...interface{}) { logs.Errorf(format, args...) }
