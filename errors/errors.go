package errors

import (
	stderrors "errors"
	"fmt"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrDecode            = fmt.Errorf("unable to decode chat message")
	ErrSend              = fmt.Errorf("unable to send message to connection")
	ErrConnectionClosed  = fmt.Errorf("%w: connection is closed", ErrSend)
	ErrSendBufferFull    = fmt.Errorf("%w: connection send buffer is full", ErrSend)
	ErrUnknownConnection = fmt.Errorf("connection is not registered")
	ErrUnknownBusDriver  = fmt.Errorf("unknown bus driver")
	ErrInvalidCharacter  = fmt.Errorf("replacement must be a single character")
)

// Is lets callers match sentinels without importing both errors packages.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func As(err error, target any) bool {
	return stderrors.As(err, target)
}
