package mqtt

import (
	"errors"
	"fmt"
)

// Broker errors. Failures of a single topic operation arrive wrapped in a
// *TopicError; errors.Is still matches the sentinel underneath.
var (
	ErrNotConnected     = errors.New("mqtt: not connected to broker")
	ErrConnectionFailed = errors.New("mqtt: broker connection failed")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")

	// ErrInvalidQoS rejects anything above QoS 2.
	ErrInvalidQoS   = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)

// TopicError names the topic a broker round trip failed on.
type TopicError struct {
	Topic string
	Err   error
}

func (e *TopicError) Error() string {
	return fmt.Sprintf("%v (topic %s)", e.Err, e.Topic)
}

func (e *TopicError) Unwrap() error { return e.Err }

// checkTopic validates the arguments shared by every topic operation.
func checkTopic(topic string, qos byte) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	return nil
}
