package mqtt

import "errors"

// Errors returned by the client; wrapped errors match with errors.Is.
var (
	ErrConnectionFailed  = errors.New("mqtt: connection failed")
	ErrNotConnected      = errors.New("mqtt: not connected")
	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")
	ErrInvalidTopic      = errors.New("mqtt: empty topic")
	ErrInvalidQoS        = errors.New("mqtt: qos must be 0, 1 or 2")
)
