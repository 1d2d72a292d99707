package exception

import "github.com/yanun0323/errors"

// Replay errors
var (
	ErrInvalidReplayRange = errors.New("replay: invalid date range")
	ErrNilSource          = errors.New("replay: nil source")
	ErrNilPublisher       = errors.New("replay: nil publisher")
	ErrUnknownBinFunc     = errors.New("replay: unknown binning function")
)
