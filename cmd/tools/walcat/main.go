package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/yanun0323/logs"

	"tradecore/internal/recorder"
	"tradecore/internal/schema"
)

func main() {
	dir := flag.String("dir", "testdata/wal", "WAL directory")
	prefix := flag.String("prefix", "", "WAL file prefix (default: events)")
	categories := flag.String("categories", "", "Comma separated categories to print (default: all)")
	speed := flag.Float64("speed", 0, "Playback speed (1=real-time, 0=no pacing)")
	useRecv := flag.Bool("use-recv-time", false, "Use receive timestamp for pacing")
	noChecksum := flag.Bool("no-checksum", false, "Disable checksum validation")
	maxPayload := flag.Int("max-payload", 0, "Max payload size in bytes (0=unlimited)")
	decode := flag.Bool("decode", false, "Print decoded payloads as JSON")
	flag.Parse()

	cats, err := parseCategories(*categories)
	if err != nil {
		logs.Errorf("invalid -categories, err: %+v", err)
		os.Exit(2)
	}
	pb, err := recorder.NewPlayback(recorder.PlaybackConfig{
		Dir:             *dir,
		FilePrefix:      *prefix,
		Categories:      cats,
		Speed:           *speed,
		UseRecvTime:     *useRecv,
		DisableChecksum: *noChecksum,
		MaxPayloadSize:  *maxPayload,
	})
	if err != nil {
		logs.Errorf("playback init failed, err: %+v", err)
		os.Exit(1)
	}

	var index int
	err = pb.Run(context.Background(), func(e schema.Event) error {
		index++
		h := e.Header
		fmt.Printf("%06d seq=%d category=%s source=%d ts_event=%d ts_recv=%d trace=%d\n",
			index, h.Seq, h.Category, h.Source, h.TsEvent, h.TsRecv, h.TraceID)
		if *decode {
			buf, err := sonic.ConfigFastest.Marshal(e.Payload)
			if err != nil {
				fmt.Printf("  decode failed: %v\n", err)
				return nil
			}
			fmt.Printf("  %s\n", buf)
		}
		return nil
	})
	if err != nil {
		logs.Errorf("playback run failed, err: %+v", err)
		os.Exit(1)
	}
}

func parseCategories(raw string) ([]schema.EventCategory, error) {
	if raw == "" {
		return nil, nil
	}
	var out []schema.EventCategory
	for _, name := range strings.Split(raw, ",") {
		c, err := schema.ParseCategory(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
