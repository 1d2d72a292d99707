package exception

import "github.com/yanun0323/errors"

// Clock errors
var (
	ErrClockNotReset   = errors.New("clock: not reset")
	ErrInvalidSession  = errors.New("clock: invalid session")
	ErrUnknownLocation = errors.New("clock: unknown location")
)
