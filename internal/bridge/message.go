package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ukydev/fleet-driver/internal/models"
)

// MessageType discriminates bridge messages.
type MessageType string

const (
	TypeProviderConfig MessageType = "FIREBASE_CONFIG"
	TypeAPIConfig      MessageType = "API_CONFIG"
	TypeDriverID       MessageType = "DRIVER_ID"
)

var ErrInvalidMessage = errors.New("invalid bridge message")

// Message is one foreground to background configuration update.
type Message struct {
	Type       MessageType           `json:"type"`
	Config     models.ProviderConfig `json:"config,omitempty"`
	APIBaseURL string                `json:"apiBaseUrl,omitempty"`
	DriverID   int64                 `json:"driverId,omitempty"`
}

func ProviderConfig(cfg models.ProviderConfig) Message {
	return Message{Type: TypeProviderConfig, Config: cfg}
}

func APIConfig(baseURL string) Message {
	return Message{Type: TypeAPIConfig, APIBaseURL: baseURL}
}

func DriverID(id int64) Message {
	return Message{Type: TypeDriverID, DriverID: id}
}

// Validate checks that the message carries the field its type needs.
func (m Message) Validate() error {
	switch m.Type {
	case TypeProviderConfig:
		if len(m.Config) == 0 {
			return fmt.Errorf("%w: %s without config", ErrInvalidMessage, m.Type)
		}
	case TypeAPIConfig:
		if m.APIBaseURL == "" {
			return fmt.Errorf("%w: %s without apiBaseUrl", ErrInvalidMessage, m.Type)
		}
	case TypeDriverID:
		if m.DriverID <= 0 {
			return fmt.Errorf("%w: %s without driverId", ErrInvalidMessage, m.Type)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidMessage, m.Type)
	}
	return nil
}

// Decode parses and validates a wire message.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return Message{}, err
	}
	return msg, nil
}
