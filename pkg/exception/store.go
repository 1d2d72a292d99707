package exception

import "github.com/yanun0323/errors"

// Persistence errors
var (
	ErrStoreClosed       = errors.New("store: closed")
	ErrUnsupportedStore  = errors.New("store: unsupported kind")
	ErrUnsupportedSource = errors.New("store: unsupported source")
	ErrPayloadDecode     = errors.New("codec: decode payload")
)
