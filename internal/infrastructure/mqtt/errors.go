package mqtt

import "errors"

// Sentinel errors; match with errors.Is.
var (
	// ErrNotConnected means the broker connection is down.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed means the initial connect did not complete.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps broker rejections, timeouts and encoding failures.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps broker rejections and timeouts on subscribe.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS is returned for QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned for an empty topic or a command topic
	// that names no project.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrInvalidCommand is returned for an outlet command payload that is not {"on": bool}.
	ErrInvalidCommand = errors.New("mqtt: invalid outlet command")
)
