package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/logs"

	"tradecore/internal/bus"
	"tradecore/internal/feed"
	"tradecore/internal/obs"
	"tradecore/internal/ops"
	"tradecore/internal/persist"
	"tradecore/internal/pgstore"
	"tradecore/internal/recorder"
	"tradecore/internal/replay"
	"tradecore/internal/state"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

// resources owns the connections shared by the store and the source.
type resources struct {
	pg     conn.Option
	client *conn.Client
}

func (r *resources) postgres() (*conn.Client, error) {
	if r.client != nil {
		return r.client, nil
	}
	client, err := conn.New(r.pg)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

func (r *resources) Close() {
	if r.client == nil {
		return
	}
	if err := r.client.Close(); err != nil {
		logs.Errorf("close postgres, err: %+v", err)
	}
}

// openStore returns nil when persistence is disabled.
func (r *resources) openStore(ctx context.Context, spec ops.StoreSpec) (persist.Store, error) {
	switch spec.Kind {
	case ops.KindWAL:
		s, err := recorder.NewStore(spec.Recorder)
		if err != nil {
			return nil, err
		}
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		logs.Infof("recording to wal %s", spec.Recorder.Dir)
		return s, nil
	case ops.KindPostgres:
		client, err := r.postgres()
		if err != nil {
			return nil, err
		}
		s, err := pgstore.New(client.DB(), spec.PgStore)
		if err != nil {
			return nil, err
		}
		if err := s.Start(ctx); err != nil {
			return nil, err
		}
		logs.Info("recording to postgres")
		return s, nil
	default:
		return nil, nil
	}
}

func (r *resources) openSource(spec ops.SourceSpec) (replay.Source, error) {
	switch spec.Kind {
	case ops.KindWAL:
		return recorder.NewHistorySource(spec.Dir, spec.FilePrefix)
	case ops.KindPostgres:
		client, err := r.postgres()
		if err != nil {
			return nil, err
		}
		return pgstore.NewHistorySource(client.DB()), nil
	default:
		return nil, fmt.Errorf("%w: %s", exception.ErrUnsupportedSource, spec.Kind)
	}
}

func openFeed(spec ops.FeedSpec) (feed.Feed, error) {
	switch spec.Kind {
	case ops.KindKafka:
		return feed.NewKafka(spec.Kafka)
	case ops.KindSynthetic:
		return feed.NewSynthetic(spec.Synthetic)
	default:
		return nil, fmt.Errorf("unsupported feed kind %q", spec.Kind)
	}
}

func recoverInto(ctx context.Context, positions *state.Positions, loaded ops.Loaded) error {
	if loaded.Store.Kind != ops.KindWAL {
		return fmt.Errorf("recovery needs a wal store, got %q", loaded.Store.Kind)
	}
	cfg := state.RecoverConfig{
		WALDir:     loaded.Store.Recorder.Dir,
		FilePrefix: loaded.Store.Recorder.FilePrefix,
	}
	if loaded.Snapshot != "" {
		if _, err := os.Stat(loaded.Snapshot); err == nil {
			cfg.SnapshotPath = loaded.Snapshot
		}
	}
	result, err := state.RecoverPositions(ctx, cfg)
	if err != nil {
		return err
	}
	positions.ApplySnapshot(result.Positions.Snapshot())
	logs.Infof("recovered positions=%d applied=%d last_seq=%d", positions.Count(), result.Applied, result.LastSeq)
	return nil
}

// serveMetrics exposes bus metrics for scraping. The returned func stops the
// server.
func serveMetrics(cfg ops.MetricsConfig, b bus.Bus) func() {
	if cfg.Addr == "" {
		return func() {}
	}
	registry := prometheus.NewRegistry()
	registry.MustRegister(obs.NewBusCollector("tradecore", b.Metrics(), func() []obs.QueueDepth {
		return b.Stats().Queues
	}))
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logs.Infof("metrics listening on %s%s", cfg.Addr, cfg.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.Errorf("metrics server, err: %+v", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
