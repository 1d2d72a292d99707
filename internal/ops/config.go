package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"gopkg.in/yaml.v3"

	"tradecore/internal/bus"
	"tradecore/internal/clock"
	"tradecore/internal/feed"
	"tradecore/internal/pgstore"
	"tradecore/internal/recorder"
	"tradecore/internal/replay"
	"tradecore/internal/schema"
	"tradecore/pkg/conn"
	"tradecore/pkg/exception"
)

// Mode selects how the trader is driven.
type Mode string

const (
	ModeLive     Mode = "live"
	ModeBacktest Mode = "backtest"
)

// Source, store and feed kinds.
const (
	KindNone      = "none"
	KindWAL       = "wal"
	KindPostgres  = "postgres"
	KindKafka     = "kafka"
	KindSynthetic = "synthetic"
)

// FileConfig mirrors the config file layout. JSON and YAML share it.
type FileConfig struct {
	Mode      Mode                `json:"mode" yaml:"mode"`
	Symbols   []string            `json:"symbols" yaml:"symbols"`
	Models    []string            `json:"models" yaml:"models"`
	Bus       BusConfig           `json:"bus" yaml:"bus"`
	Session   clock.SessionConfig `json:"session" yaml:"session"`
	Replay    ReplayConfig        `json:"replay" yaml:"replay"`
	Source    SourceConfig        `json:"source" yaml:"source"`
	Store     StoreConfig         `json:"store" yaml:"store"`
	Postgres  PostgresConfig      `json:"postgres" yaml:"postgres"`
	Feed      FeedConfig          `json:"feed" yaml:"feed"`
	Snapshot  string              `json:"snapshot" yaml:"snapshot"`
	Profiling ProfilingConfig     `json:"profiling" yaml:"profiling"`
	Metrics   MetricsConfig       `json:"metrics" yaml:"metrics"`
}

// BusConfig keys its maps by category name, e.g. "MarketData".
type BusConfig struct {
	Engine         bus.Engine        `json:"engine" yaml:"engine"`
	QueueCapacity  map[string]int    `json:"queueCapacity" yaml:"queueCapacity"`
	Overflow       map[string]string `json:"overflow" yaml:"overflow"`
	EnqueueTimeout Duration          `json:"enqueueTimeout" yaml:"enqueueTimeout"`
	Workers        int               `json:"workers" yaml:"workers"`
	StatusInterval Duration          `json:"statusInterval" yaml:"statusInterval"`
}

// ReplayConfig dates are "2006-01-02" in the session location or RFC 3339.
type ReplayConfig struct {
	Start            string         `json:"start" yaml:"start"`
	End              string         `json:"end" yaml:"end"`
	IncrementDays    int            `json:"incrementDays" yaml:"incrementDays"`
	SeedDays         int            `json:"seedDays" yaml:"seedDays"`
	Binning          replay.Binning `json:"binning" yaml:"binning"`
	RetentionHorizon Duration       `json:"retentionHorizon" yaml:"retentionHorizon"`
	FlushToDisk      bool           `json:"flushToDisk" yaml:"flushToDisk"`
	DrainPoll        Duration       `json:"drainPoll" yaml:"drainPoll"`
}

// SourceConfig selects where backtests read market data.
type SourceConfig struct {
	Kind       string `json:"kind" yaml:"kind"`
	Dir        string `json:"dir" yaml:"dir"`
	FilePrefix string `json:"filePrefix" yaml:"filePrefix"`
}

// StoreConfig selects where published events are persisted. Categories
// defaults to every category.
type StoreConfig struct {
	Kind       string   `json:"kind" yaml:"kind"`
	Categories []string `json:"categories" yaml:"categories"`
	// WAL
	Dir                string   `json:"dir" yaml:"dir"`
	FilePrefix         string   `json:"filePrefix" yaml:"filePrefix"`
	SegmentMaxBytes    int64    `json:"segmentMaxBytes" yaml:"segmentMaxBytes"`
	SegmentMaxDuration Duration `json:"segmentMaxDuration" yaml:"segmentMaxDuration"`
	FlushInterval      Duration `json:"flushInterval" yaml:"flushInterval"`
	SyncInterval       Duration `json:"syncInterval" yaml:"syncInterval"`
	QueueSize          int      `json:"queueSize" yaml:"queueSize"`
	// Postgres
	Writers     int  `json:"writers" yaml:"writers"`
	BatchSize   int  `json:"batchSize" yaml:"batchSize"`
	AutoMigrate bool `json:"autoMigrate" yaml:"autoMigrate"`
}

type PostgresConfig struct {
	Host            string            `json:"host" yaml:"host"`
	Port            int               `json:"port" yaml:"port"`
	User            string            `json:"user" yaml:"user"`
	Password        string            `json:"password" yaml:"password"`
	Database        string            `json:"database" yaml:"database"`
	SSLMode         string            `json:"sslMode" yaml:"sslMode"`
	Params          map[string]string `json:"params" yaml:"params"`
	ConnString      string            `json:"connString" yaml:"connString"`
	MaxOpenConns    int               `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int               `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime Duration          `json:"connMaxLifetime" yaml:"connMaxLifetime"`
}

// FeedConfig selects the live market data feed.
type FeedConfig struct {
	Kind string `json:"kind" yaml:"kind"`
	// Kafka
	Brokers        []string `json:"brokers" yaml:"brokers"`
	Topic          string   `json:"topic" yaml:"topic"`
	GroupID        string   `json:"groupId" yaml:"groupId"`
	Encoding       string   `json:"encoding" yaml:"encoding"`
	CommitInterval Duration `json:"commitInterval" yaml:"commitInterval"`
	FromBeginning  bool     `json:"fromBeginning" yaml:"fromBeginning"`
	// Synthetic
	Interval  Duration        `json:"interval" yaml:"interval"`
	BasePrice schema.Price    `json:"basePrice" yaml:"basePrice"`
	BaseSize  schema.Quantity `json:"baseSize" yaml:"baseSize"`
	Spread    schema.Price    `json:"spread" yaml:"spread"`
	Count     int             `json:"count" yaml:"count"`
}

type ProfilingConfig struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	ServerAddress   string `json:"serverAddress" yaml:"serverAddress"`
	ApplicationName string `json:"applicationName" yaml:"applicationName"`
}

// MetricsConfig enables the Prometheus scrape endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `json:"addr" yaml:"addr"`
	Path string `json:"path" yaml:"path"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	Mode      Mode
	Symbols   []string
	Models    []string
	Bus       bus.Config
	Session   *clock.Session
	Replay    replay.Config
	Source    SourceSpec
	Store     StoreSpec
	Postgres  conn.Option
	Feed      FeedSpec
	Snapshot  string
	Profiling ProfilingConfig
	Metrics   MetricsConfig
}

// SourceSpec is the resolved backtest source.
type SourceSpec struct {
	Kind       string
	Dir        string
	FilePrefix string
}

// StoreSpec is the resolved persistence target.
type StoreSpec struct {
	Kind       string
	Categories []schema.EventCategory
	Recorder   recorder.Config
	PgStore    pgstore.Config
}

// FeedSpec is the resolved live feed.
type FeedSpec struct {
	Kind      string
	Kafka     feed.KafkaConfig
	Synthetic feed.SyntheticConfig
}

// Load reads a JSON or YAML config file, chosen by extension, and resolves
// it.
func Load(path string) (Loaded, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return Loaded{}, err
	}
	return Resolve(cfg)
}

// ReadFile parses a config file without resolving it.
func ReadFile(path string) (FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = sonic.Unmarshal(data, &cfg)
	}
	if err != nil {
		return FileConfig{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Resolve applies defaults, validates and builds the runtime configuration.
func Resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Mode == "" {
		cfg.Mode = ModeBacktest
	}
	if cfg.Mode != ModeLive && cfg.Mode != ModeBacktest {
		return Loaded{}, fmt.Errorf("invalid config: unknown mode %q", cfg.Mode)
	}

	session, err := clock.NewSession(cfg.Session)
	if err != nil {
		return Loaded{}, err
	}
	busCfg, err := resolveBus(cfg)
	if err != nil {
		return Loaded{}, err
	}
	store, err := resolveStore(cfg.Store)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{
		Mode:      cfg.Mode,
		Symbols:   cfg.Symbols,
		Models:    cfg.Models,
		Bus:       busCfg,
		Session:   session,
		Store:     store,
		Postgres:  resolvePostgres(cfg.Postgres),
		Snapshot:  cfg.Snapshot,
		Profiling: cfg.Profiling,
		Metrics:   cfg.Metrics,
	}
	if loaded.Metrics.Addr != "" && loaded.Metrics.Path == "" {
		loaded.Metrics.Path = "/metrics"
	}
	if loaded.Profiling.Enabled && loaded.Profiling.ApplicationName == "" {
		loaded.Profiling.ApplicationName = "tradecore.trader"
	}

	switch cfg.Mode {
	case ModeBacktest:
		if loaded.Replay, err = resolveReplay(cfg, session); err != nil {
			return Loaded{}, err
		}
		// Per-window flushing needs the driver to own the store, which only
		// works when delivery is synchronous.
		if loaded.Replay.FlushToDisk && store.Kind != KindNone && busCfg.Engine != bus.EngineSync {
			return Loaded{}, fmt.Errorf("invalid config: replay.flushToDisk requires bus.engine %q in backtest mode, got %q", bus.EngineSync, busCfg.Engine)
		}
		if loaded.Source, err = resolveSource(cfg.Source); err != nil {
			return Loaded{}, err
		}
	case ModeLive:
		if loaded.Feed, err = resolveFeed(cfg); err != nil {
			return Loaded{}, err
		}
	}
	return loaded, nil
}

func resolveBus(cfg FileConfig) (bus.Config, error) {
	engine := cfg.Bus.Engine
	if engine == "" {
		engine = bus.EngineConcurrent
		if cfg.Mode == ModeBacktest {
			engine = bus.EngineSync
		}
	}
	out := bus.Config{
		Engine:         engine,
		QueueCapacity:  make(map[schema.EventCategory]int, len(cfg.Bus.QueueCapacity)),
		Overflow:       make(map[schema.EventCategory]bus.Overflow, len(cfg.Bus.Overflow)),
		EnqueueTimeout: cfg.Bus.EnqueueTimeout.Std(),
		Workers:        cfg.Bus.Workers,
		StatusInterval: cfg.Bus.StatusInterval.Std(),
	}
	for name, n := range cfg.Bus.QueueCapacity {
		c, err := schema.ParseCategory(name)
		if err != nil {
			return bus.Config{}, errors.Wrapf(err, "bus queueCapacity %q", name)
		}
		out.QueueCapacity[c] = n
	}
	for name, policy := range cfg.Bus.Overflow {
		c, err := schema.ParseCategory(name)
		if err != nil {
			return bus.Config{}, errors.Wrapf(err, "bus overflow %q", name)
		}
		var o bus.Overflow
		if err := o.UnmarshalText([]byte(policy)); err != nil {
			return bus.Config{}, err
		}
		out.Overflow[c] = o
	}
	if err := out.Validate(); err != nil {
		return bus.Config{}, err
	}
	return out, nil
}

func resolveReplay(cfg FileConfig, session *clock.Session) (replay.Config, error) {
	start, err := parseDate(cfg.Replay.Start, session.Location())
	if err != nil {
		return replay.Config{}, fmt.Errorf("invalid config: replay start: %w", err)
	}
	end, err := parseDate(cfg.Replay.End, session.Location())
	if err != nil {
		return replay.Config{}, fmt.Errorf("invalid config: replay end: %w", err)
	}
	out := replay.Config{
		Start:            start,
		End:              end,
		IncrementDays:    cfg.Replay.IncrementDays,
		SeedDays:         cfg.Replay.SeedDays,
		Symbols:          cfg.Symbols,
		Binning:          cfg.Replay.Binning,
		Models:           cfg.Models,
		RetentionHorizon: cfg.Replay.RetentionHorizon.Std(),
		FlushToDisk:      cfg.Replay.FlushToDisk,
		DrainPoll:        cfg.Replay.DrainPoll.Std(),
	}
	if err := out.Validate(); err != nil {
		return replay.Config{}, err
	}
	return out, nil
}

func resolveSource(cfg SourceConfig) (SourceSpec, error) {
	switch cfg.Kind {
	case KindWAL:
		if cfg.Dir == "" {
			return SourceSpec{}, fmt.Errorf("invalid config: source dir is empty")
		}
	case KindPostgres:
	default:
		return SourceSpec{}, errors.Wrap(exception.ErrUnsupportedSource, cfg.Kind)
	}
	return SourceSpec(cfg), nil
}

func resolveStore(cfg StoreConfig) (StoreSpec, error) {
	out := StoreSpec{Kind: cfg.Kind}
	if out.Kind == "" {
		out.Kind = KindNone
	}
	for _, name := range cfg.Categories {
		c, err := schema.ParseCategory(name)
		if err != nil {
			return StoreSpec{}, errors.Wrapf(err, "store category %q", name)
		}
		out.Categories = append(out.Categories, c)
	}

	switch out.Kind {
	case KindNone:
	case KindWAL:
		rc := recorder.DefaultConfig(cfg.Dir)
		if cfg.FilePrefix != "" {
			rc.FilePrefix = cfg.FilePrefix
		}
		if cfg.SegmentMaxBytes != 0 {
			rc.SegmentMaxBytes = cfg.SegmentMaxBytes
		}
		if cfg.SegmentMaxDuration != 0 {
			rc.SegmentMaxDuration = cfg.SegmentMaxDuration.Std()
		}
		if cfg.QueueSize != 0 {
			rc.QueueSize = cfg.QueueSize
		}
		rc.FlushInterval = cfg.FlushInterval.Std()
		rc.SyncInterval = cfg.SyncInterval.Std()
		if err := rc.Validate(); err != nil {
			return StoreSpec{}, err
		}
		out.Recorder = rc
	case KindPostgres:
		out.PgStore = pgstore.Config{
			Writers:       cfg.Writers,
			BatchSize:     cfg.BatchSize,
			QueueSize:     cfg.QueueSize,
			FlushInterval: cfg.FlushInterval.Std(),
			AutoMigrate:   cfg.AutoMigrate,
		}
	default:
		return StoreSpec{}, errors.Wrap(exception.ErrUnsupportedStore, out.Kind)
	}
	return out, nil
}

func resolvePostgres(cfg PostgresConfig) conn.Option {
	return conn.Option{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Params:          cfg.Params,
		ConnString:      cfg.ConnString,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime.Std(),
	}
}

func resolveFeed(cfg FileConfig) (FeedSpec, error) {
	out := FeedSpec{Kind: cfg.Feed.Kind}
	switch cfg.Feed.Kind {
	case KindKafka:
		out.Kafka = feed.KafkaConfig{
			Brokers:        cfg.Feed.Brokers,
			Topic:          cfg.Feed.Topic,
			GroupID:        cfg.Feed.GroupID,
			Encoding:       cfg.Feed.Encoding,
			CommitInterval: cfg.Feed.CommitInterval.Std(),
			FromBeginning:  cfg.Feed.FromBeginning,
		}
		if out.Kafka.Encoding == "" {
			out.Kafka.Encoding = feed.EncodingBinary
		}
		if err := out.Kafka.Validate(); err != nil {
			return FeedSpec{}, err
		}
	case KindSynthetic:
		out.Synthetic = feed.SyntheticConfig{
			Symbols:   cfg.Symbols,
			BasePrice: cfg.Feed.BasePrice,
			BaseSize:  cfg.Feed.BaseSize,
			Spread:    cfg.Feed.Spread,
			Interval:  cfg.Feed.Interval.Std(),
			Count:     cfg.Feed.Count,
		}
		if len(out.Synthetic.Symbols) == 0 {
			return FeedSpec{}, fmt.Errorf("invalid config: synthetic feed needs symbols")
		}
		if out.Synthetic.Interval <= 0 {
			return FeedSpec{}, fmt.Errorf("invalid config: synthetic feed interval must be > 0")
		}
	default:
		return FeedSpec{}, fmt.Errorf("invalid config: unknown feed kind %q", cfg.Feed.Kind)
	}
	return out, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
