package bridge

import (
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/broker"
)

// MQTTBridge carries bridge messages over an MQTT connection so the
// foreground and background may live in different processes.
type MQTTBridge struct {
	conn     broker.Conn
	clientID string
	logger   log.FieldLogger

	ready chan struct{}

	mu       sync.Mutex
	inbox    chan Message
	attached bool
	watching bool
}

var (
	_ Sender   = (*MQTTBridge)(nil)
	_ Receiver = (*MQTTBridge)(nil)
)

func NewMQTTBridge(conn broker.Conn, clientID string, logger log.FieldLogger) *MQTTBridge {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &MQTTBridge{
		conn:     conn,
		clientID: clientID,
		logger:   logger.WithField("component", "bridge"),
		ready:    make(chan struct{}, 1),
	}
}

func (b *MQTTBridge) messagesTopic() string {
	return fmt.Sprintf("fleet/driver/%s/bridge", b.clientID)
}

func (b *MQTTBridge) readyTopic() string {
	return fmt.Sprintf("fleet/driver/%s/ready", b.clientID)
}

// Watch subscribes the foreground to readiness signals.
func (b *MQTTBridge) Watch() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.watching {
		return nil
	}
	err := broker.Subscribe(b.conn, b.readyTopic(), func(_ mqtt.Client, _ mqtt.Message) {
		select {
		case b.ready <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return err
	}
	b.watching = true
	return nil
}

func (b *MQTTBridge) Send(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if !b.conn.IsConnected() {
		return ErrNotReady
	}
	if err := broker.PublishJSON(b.conn, b.messagesTopic(), msg); err != nil {
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	return nil
}

func (b *MQTTBridge) Ready() <-chan struct{} {
	return b.ready
}

func (b *MQTTBridge) Attach() (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return b.inbox, nil
	}
	inbox := make(chan Message, 16)
	err := broker.Subscribe(b.conn, b.messagesTopic(), func(_ mqtt.Client, m mqtt.Message) {
		msg, err := Decode(m.Payload())
		if err != nil {
			b.logger.WithError(err).Warn("Dropping bridge message")
			return
		}
		select {
		case inbox <- msg:
		default:
			b.logger.WithField("type", msg.Type).Warn("Bridge inbox full, dropping message")
		}
	})
	if err != nil {
		return nil, err
	}
	b.inbox = inbox
	b.attached = true
	return inbox, nil
}

func (b *MQTTBridge) SignalReady() error {
	return broker.PublishJSON(b.conn, b.readyTopic(), map[string]string{"clientId": b.clientID})
}

func (b *MQTTBridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return
	}
	if err := broker.Unsubscribe(b.conn, b.messagesTopic()); err != nil {
		b.logger.WithError(err).Warn("Failed to unsubscribe bridge topic")
	}
	b.attached = false
}
