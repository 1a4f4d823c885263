package mqtt

import "errors"

// Sentinel errors, matchable with errors.Is.
var (
	// ErrNotConnected means the operation needs a live broker connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the initial connect did not succeed.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	ErrPublishFailed     = errors.New("mqtt: publish failed")
	ErrSubscribeFailed   = errors.New("mqtt: subscribe failed")
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects empty topics.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")
)
