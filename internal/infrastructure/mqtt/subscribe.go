package mqtt

import (
	"encoding/json"
	"fmt"
)

// Subscribe registers handler for topic, which may use + and # wildcards.
// The subscription is remembered and restored after a reconnect.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case handler == nil:
		return fmt.Errorf("%w: nil handler for %s", ErrSubscribeFailed, topic)
	case !c.IsConnected():
		return ErrNotConnected
	}

	c.subMu.Lock()
	c.subs[topic] = subscription{qos: qos, handler: handler}
	c.subMu.Unlock()

	err := waitToken(c.client.Subscribe(topic, qos, c.dispatch(handler)))
	if err != nil {
		c.subMu.Lock()
		delete(c.subs, topic)
		c.subMu.Unlock()
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	return nil
}

// HasSubscription reports whether the exact topic string is subscribed.
func (c *Client) HasSubscription(topic string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	_, ok := c.subs[topic]
	return ok
}

// OutletCommand is the payload accepted on a project's outlet command topic.
type OutletCommand struct {
	On *bool `json:"on"`
}

// OutletCommandHandler applies a manual outlet command to a project.
type OutletCommandHandler func(projectID string, on bool) error

// SubscribeOutletCommands routes fermentwatch/project/{id}/outlet/set
// messages to handler. Malformed topics or payloads are reported as
// handler errors and logged.
func (c *Client) SubscribeOutletCommands(handler OutletCommandHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	return c.Subscribe(Topics{}.AllProjectOutletCommands(), byte(c.cfg.QoS), func(topic string, payload []byte) error {
		projectID, ok := ProjectIDFromCommandTopic(topic)
		if !ok {
			return fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
		}
		on, err := decodeOutletCommand(payload)
		if err != nil {
			return err
		}
		return handler(projectID, on)
	})
}

func decodeOutletCommand(payload []byte) (bool, error) {
	var cmd OutletCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if cmd.On == nil {
		return false, fmt.Errorf(`%w: missing "on"`, ErrInvalidCommand)
	}
	return *cmd.On, nil
}
