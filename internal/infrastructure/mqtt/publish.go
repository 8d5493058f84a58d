package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
// This prevents resource exhaustion and aligns with typical broker limits.
const maxPayloadSize = 1 << 20 // 1MB

// Command is the payload shape shared by actuator commands, LED commands,
// alerts, and disinfection status messages across the kennel fleet.
//
// Actuator and LED messages carry "on"/"off"; alerts carry human-readable
// text; cleaning rigs answer with "disinfected".
type Command struct {
	Timestamp float64 `json:"timestamp"`
	Message   string  `json:"message"`
}

// NewCommand builds the JSON payload for a Command with the current time.
func NewCommand(message string) []byte {
	payload, _ := json.Marshal(Command{
		Timestamp: float64(time.Now().UnixMilli()) / 1000,
		Message:   message,
	})
	return payload
}

// ParseCommand decodes a Command payload.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("parsing command payload: %w", err)
	}
	return cmd, nil
}

// Publish sends a message to the specified MQTT topic.
//
// QoS levels: 0 at most once, 1 at least once, 2 exactly once.
// Retained messages are stored by the broker and delivered to new
// subscribers; use them for state topics, never for commands or alerts.
func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}
