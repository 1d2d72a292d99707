package exception

import "github.com/yanun0323/errors"

// Bus errors
var (
	ErrUnknownCategory      = errors.New("bus: unknown event category")
	ErrNilPayload           = errors.New("bus: nil payload")
	ErrCategoryMismatch     = errors.New("bus: event category does not match payload")
	ErrNilListener          = errors.New("bus: nil listener")
	ErrListenerCapability   = errors.New("bus: listener cannot handle category")
	ErrRegistrationFrozen   = errors.New("bus: registrations are frozen")
	ErrBusClosed            = errors.New("bus: closed")
	ErrBusAlreadyStarted    = errors.New("bus: already started")
	ErrUnsupportedBusEngine = errors.New("bus: unsupported engine")
)
