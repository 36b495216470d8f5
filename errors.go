package candle

import "errors"

var (
	ErrTransport                = errors.New("transport failure")
	ErrTimeout                  = errors.New("no response within timeout")
	ErrUnknownRegister          = errors.New("register not in dictionary")
	ErrUnknownIndex             = errors.New("index/subindex not in object dictionary")
	ErrTypeMismatch             = errors.New("value does not match declared type")
	ErrMalformedPayload         = errors.New("payload length does not match declared type")
	ErrAccessDenied             = errors.New("access denied")
	ErrSocketMismatch           = errors.New("module type does not match socket")
	ErrVerificationFailed       = errors.New("read-back verification failed")
	ErrSegmentedTransferAborted = errors.New("segmented transfer aborted")
	ErrNotConnected             = errors.New("device not connected")
	ErrInvalidArgs              = errors.New("error in function arguments")
	ErrFrameTooLong             = errors.New("payload does not fit in a single frame")
)
