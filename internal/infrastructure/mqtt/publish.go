package mqtt

import "fmt"

// maxPayloadSize caps a single message; bridge payloads are a few hundred bytes.
const maxPayloadSize = 1 << 20

// Publish sends payload on topic and waits for the broker to accept it.
//
// State and health topics are published retained so a late subscriber sees
// the last value. Acks and responses never are.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if err := checkTopic(topic, qos); err != nil {
		return err
	}
	if n := len(payload); n > maxPayloadSize {
		return fmt.Errorf("%w: %d byte payload over the %d byte limit", ErrPublishFailed, n, maxPayloadSize)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return await(c.client.Publish(topic, qos, retained, payload), ErrPublishFailed, topic)
}

func (c *Client) qos() byte {
	return byte(c.cfg.QoS) // #nosec G115 -- validated to 0..2 by config
}
