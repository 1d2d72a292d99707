package codec

import (
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"

	"tradecore/internal/schema"
	"tradecore/pkg/exception"
)

// Encode serializes the payload of e. Market data, by far the largest
// volume, uses the fixed binary layout; every other category is JSON.
func Encode(dst []byte, e schema.Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	if md, ok := e.Payload.(schema.MarketUpdate); ok {
		return EncodeMarketUpdate(dst, md), nil
	}
	buf, err := marshalJSON(e)
	if err != nil {
		return nil, err
	}
	return append(dst[:0], buf...), nil
}

// EncodeJSON serializes the payload of e as JSON whatever its category.
func EncodeJSON(e schema.Event) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return marshalJSON(e)
}

func marshalJSON(e schema.Event) ([]byte, error) {
	buf, err := sonic.ConfigFastest.Marshal(e.Payload)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s payload", e.Category())
	}
	return buf, nil
}

// Decode rebuilds an event from a stored header and payload.
func Decode(header schema.EventHeader, src []byte) (schema.Event, error) {
	p, err := DecodePayload(header.Category, src)
	if err != nil {
		return schema.Event{}, err
	}
	return schema.Event{Header: header, Payload: p}, nil
}

// DecodePayload parses src as the payload type bound to c.
func DecodePayload(c schema.EventCategory, src []byte) (schema.Payload, error) {
	if c == schema.CategoryMarketData {
		md, ok := DecodeMarketUpdate(src)
		if !ok {
			return nil, errors.Wrapf(exception.ErrPayloadDecode, "%s payload of %d bytes", c, len(src))
		}
		return md, nil
	}
	return DecodeJSON(c, src)
}

// DecodeJSON parses a JSON payload produced by EncodeJSON.
func DecodeJSON(c schema.EventCategory, src []byte) (schema.Payload, error) {
	switch c {
	case schema.CategoryMarketData:
		return decodeJSON[schema.MarketUpdate](c, src)
	case schema.CategoryMarketOrder:
		return decodeJSON[schema.MarketOrder](c, src)
	case schema.CategoryOrderStatus:
		return decodeJSON[schema.OrderStatus](c, src)
	case schema.CategoryPosition:
		return decodeJSON[schema.PositionUpdate](c, src)
	case schema.CategoryIndicator:
		return decodeJSON[schema.IndicatorUpdate](c, src)
	case schema.CategoryModelInfo:
		return decodeJSON[schema.ModelInfo](c, src)
	case schema.CategoryPLInfo:
		return decodeJSON[schema.PLInfo](c, src)
	case schema.CategoryExecutionInfo:
		return decodeJSON[schema.ExecutionInfo](c, src)
	case schema.CategoryTimerInfo:
		return decodeJSON[schema.TimerInfo](c, src)
	case schema.CategorySystemInfo:
		return decodeJSON[schema.SystemInfo](c, src)
	default:
		return nil, errors.Wrapf(exception.ErrUnknownCategory, "decode category %d", c)
	}
}

func decodeJSON[T schema.Payload](c schema.EventCategory, src []byte) (schema.Payload, error) {
	var p T
	if err := sonic.Unmarshal(src, &p); err != nil {
		return nil, errors.Wrapf(exception.ErrPayloadDecode, "%s payload: %s", c, err)
	}
	return p, nil
}
