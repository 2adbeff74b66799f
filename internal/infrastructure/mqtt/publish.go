package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/fermentwatch/internal/telemetry"
)

const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement.
// Retain state (latest temperature, service status), never events.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	switch {
	case topic == "":
		return ErrInvalidTopic
	case qos > maxQoS:
		return ErrInvalidQoS
	case len(payload) > maxPayloadSize:
		return fmt.Errorf("%w: %d byte payload exceeds %d", ErrPublishFailed, len(payload), maxPayloadSize)
	case !c.IsConnected():
		return ErrNotConnected
	}

	if err := waitToken(c.client.Publish(topic, qos, retained, payload)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublishFailed, topic, err)
	}
	return nil
}

// waitToken waits up to ackTimeout for a paho token.
func waitToken(t pahomqtt.Token) error {
	if !t.WaitTimeout(ackTimeout) {
		return fmt.Errorf("no acknowledgement within %v", ackTimeout)
	}
	return t.Error()
}

// TemperatureMessage is the payload on a project's temperature topic.
type TemperatureMessage struct {
	ProjectID string    `json:"project_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// OutletMessage is the payload on a project's outlet topic.
type OutletMessage struct {
	ProjectID           string           `json:"project_id"`
	State               string           `json:"state"`
	On                  bool             `json:"on"`
	Source              telemetry.Source `json:"source"`
	TemperatureAtChange *float64         `json:"temperature_at_change,omitempty"`
	Timestamp           time.Time        `json:"timestamp"`
}

// PublishTemperature publishes a project's latest reading as a retained message.
func (c *Client) PublishTemperature(projectID string, value float64, ts time.Time) error {
	payload, err := json.Marshal(TemperatureMessage{
		ProjectID: projectID,
		Value:     value,
		Timestamp: ts.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding temperature: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.ProjectTemperature(projectID), payload, byte(c.cfg.QoS), true)
}

// PublishActuation publishes an outlet change event.
func (c *Client) PublishActuation(ev telemetry.ActuationEvent) error {
	payload, err := json.Marshal(OutletMessage{
		ProjectID:           ev.ProjectID,
		State:               telemetry.OutletStateName(ev.State),
		On:                  ev.State,
		Source:              ev.Source,
		TemperatureAtChange: ev.TemperatureAtChange,
		Timestamp:           ev.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: encoding outlet event: %w", ErrPublishFailed, err)
	}
	return c.Publish(Topics{}.ProjectOutlet(ev.ProjectID), payload, byte(c.cfg.QoS), false)
}
