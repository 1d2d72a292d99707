package feed

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tradecore/internal/codec"
	"tradecore/internal/schema"
)

// Message encodings accepted on the market data topic.
const (
	EncodingBinary = "binary"
	EncodingJSON   = "json"
)

// KafkaConfig selects the market data topic.
type KafkaConfig struct {
	Brokers        []string      `json:"brokers" yaml:"brokers"`
	Topic          string        `json:"topic" yaml:"topic"`
	GroupID        string        `json:"groupId" yaml:"groupId"`
	Encoding       string        `json:"encoding" yaml:"encoding"`
	MinBytes       int           `json:"minBytes" yaml:"minBytes"`
	MaxBytes       int           `json:"maxBytes" yaml:"maxBytes"`
	CommitInterval time.Duration `json:"commitInterval" yaml:"commitInterval"`
	// FromBeginning starts a new consumer group at the oldest offset instead
	// of the newest.
	FromBeginning bool `json:"fromBeginning" yaml:"fromBeginning"`
}

func (c KafkaConfig) withDefaults() KafkaConfig {
	if c.Encoding == "" {
		c.Encoding = EncodingBinary
	}
	if c.MinBytes == 0 {
		c.MinBytes = 1
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = 10e6
	}
	if c.CommitInterval == 0 {
		c.CommitInterval = time.Second
	}
	return c
}

// Validate checks if the configuration is usable.
func (c KafkaConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("invalid kafka config: Brokers is empty")
	}
	if c.Topic == "" {
		return fmt.Errorf("invalid kafka config: Topic is empty")
	}
	if c.Encoding != EncodingBinary && c.Encoding != EncodingJSON {
		return fmt.Errorf("invalid kafka config: unknown Encoding %q", c.Encoding)
	}
	if c.MinBytes < 0 || c.MaxBytes < c.MinBytes {
		return fmt.Errorf("invalid kafka config: need 0 <= MinBytes <= MaxBytes")
	}
	return nil
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Kafka consumes market updates from a topic.
type Kafka struct {
	cfg     KafkaConfig
	reader  messageReader
	decode  func([]byte) (schema.MarketUpdate, error)
	invalid atomic.Uint64
}

func NewKafka(cfg KafkaConfig) (*Kafka, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	start := kafka.LastOffset
	if cfg.FromBeginning {
		start = kafka.FirstOffset
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
		StartOffset:    start,
	})
	return newKafka(cfg, reader), nil
}

func newKafka(cfg KafkaConfig, reader messageReader) *Kafka {
	k := &Kafka{cfg: cfg, reader: reader, decode: decodeBinary}
	if cfg.Encoding == EncodingJSON {
		k.decode = decodeJSON
	}
	return k
}

// Run reads until ctx is done. Messages that do not decode are logged and
// skipped.
func (k *Kafka) Run(ctx context.Context, handle func(schema.MarketUpdate)) error {
	defer k.reader.Close()
	logs.Infof("kafka feed reading %s from %v", k.cfg.Topic, k.cfg.Brokers)
	for {
		msg, err := k.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrapf(err, "read %s", k.cfg.Topic)
		}
		md, err := k.decode(msg.Value)
		if err != nil {
			k.invalid.Add(1)
			logs.Errorf("kafka %s partition %d offset %d, err: %+v", msg.Topic, msg.Partition, msg.Offset, err)
			continue
		}
		if md.EventTime.IsZero() {
			md.EventTime = msg.Time
		}
		if md.Symbol == "" {
			md.Symbol = string(msg.Key)
		}
		handle(md)
	}
}

// Invalid returns the number of skipped messages.
func (k *Kafka) Invalid() uint64 {
	return k.invalid.Load()
}

func decodeBinary(src []byte) (schema.MarketUpdate, error) {
	md, ok := codec.DecodeMarketUpdate(src)
	if !ok {
		return schema.MarketUpdate{}, fmt.Errorf("malformed market update of %d bytes", len(src))
	}
	return md, nil
}

func decodeJSON(src []byte) (schema.MarketUpdate, error) {
	p, err := codec.DecodeJSON(schema.CategoryMarketData, src)
	if err != nil {
		return schema.MarketUpdate{}, err
	}
	return p.(schema.MarketUpdate), nil
}
