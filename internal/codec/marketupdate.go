package codec

import (
	"encoding/binary"
	"math"
	"time"

	"tradecore/internal/schema"
)

// MarketUpdateFixedSize is the encoded size of a MarketUpdate without its
// symbol bytes.
const MarketUpdateFixedSize = 46

// MarketUpdateSize returns the encoded size of md.
func MarketUpdateSize(md schema.MarketUpdate) int {
	return MarketUpdateFixedSize + len(md.Symbol)
}

// EncodeMarketUpdate serializes a market update. Symbols longer than 65535
// bytes are truncated.
func EncodeMarketUpdate(dst []byte, md schema.MarketUpdate) []byte {
	symbol := md.Symbol
	if len(symbol) > math.MaxUint16 {
		symbol = symbol[:math.MaxUint16]
	}
	size := MarketUpdateFixedSize + len(symbol)
	if cap(dst) < size {
		dst = make([]byte, size)
	} else {
		dst = dst[:size]
	}

	binary.LittleEndian.PutUint64(dst[0:8], uint64(md.Bid))
	binary.LittleEndian.PutUint64(dst[8:16], uint64(md.Ask))
	binary.LittleEndian.PutUint64(dst[16:24], uint64(md.BidSize))
	binary.LittleEndian.PutUint64(dst[24:32], uint64(md.AskSize))
	binary.LittleEndian.PutUint16(dst[32:34], uint16(md.Condition))
	binary.LittleEndian.PutUint16(dst[34:36], md.Flags)
	binary.LittleEndian.PutUint64(dst[36:44], uint64(unixNano(md.EventTime)))
	binary.LittleEndian.PutUint16(dst[44:46], uint16(len(symbol)))
	copy(dst[46:], symbol)

	return dst
}

// DecodeMarketUpdate parses a market update payload. Event times decode in
// UTC.
func DecodeMarketUpdate(src []byte) (schema.MarketUpdate, bool) {
	if len(src) < MarketUpdateFixedSize {
		return schema.MarketUpdate{}, false
	}
	n := int(binary.LittleEndian.Uint16(src[44:46]))
	if len(src) < MarketUpdateFixedSize+n {
		return schema.MarketUpdate{}, false
	}
	return schema.MarketUpdate{
		Symbol:    string(src[46 : 46+n]),
		Bid:       schema.Price(int64(binary.LittleEndian.Uint64(src[0:8]))),
		Ask:       schema.Price(int64(binary.LittleEndian.Uint64(src[8:16]))),
		BidSize:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[16:24]))),
		AskSize:   schema.Quantity(int64(binary.LittleEndian.Uint64(src[24:32]))),
		Condition: schema.QuoteCondition(binary.LittleEndian.Uint16(src[32:34])),
		Flags:     binary.LittleEndian.Uint16(src[34:36]),
		EventTime: fromUnixNano(int64(binary.LittleEndian.Uint64(src[36:44]))),
	}, true
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
