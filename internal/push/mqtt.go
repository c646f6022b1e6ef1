package push

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/broker"
	"github.com/ukydev/fleet-driver/internal/db"
	"github.com/ukydev/fleet-driver/internal/models"
)

// PushTokenKey is the token store key of the installation push token.
const PushTokenKey = "pushToken"

// Permission is the display permission granted to the agent.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// TopicFor returns the topic pushes for token are published on.
func TopicFor(token string) string {
	return "fleet/push/" + token
}

// MQTTProvider receives pushes on a per-installation MQTT topic.
type MQTTProvider struct {
	*Dispatcher

	conn       broker.Conn
	tokens     db.TokenStore
	permission Permission
	logger     log.FieldLogger

	mu         sync.Mutex
	token      string
	subscribed bool
}

var _ Provider = (*MQTTProvider)(nil)

func NewMQTTProvider(conn broker.Conn, tokens db.TokenStore, permission Permission, logger log.FieldLogger) *MQTTProvider {
	if logger == nil {
		logger = log.StandardLogger()
	}
	if permission == "" {
		permission = PermissionGranted
	}
	return &MQTTProvider{
		Dispatcher: NewDispatcher(logger),
		conn:       conn,
		tokens:     tokens,
		permission: permission,
		logger:     logger.WithField("component", "push"),
	}
}

func (p *MQTTProvider) RequestPermission(context.Context) bool {
	if p.permission != PermissionGranted {
		p.logger.Info("Notification permission denied")
		return false
	}
	p.logger.Info("Notification permission granted")
	return true
}

// Token returns the persisted installation token, minting one on first use,
// and makes sure its topic is subscribed.
func (p *MQTTProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == "" {
		token, err := p.tokens.Get(ctx, PushTokenKey)
		if err != nil {
			p.logger.WithError(err).Warn("Failed to read push token")
		}
		if token == "" {
			token = uuid.NewString()
			if err := p.tokens.Put(ctx, PushTokenKey, token); err != nil {
				p.logger.WithError(err).Warn("Failed to persist push token")
			}
		}
		p.token = token
	}

	if !p.subscribed {
		if err := broker.Subscribe(p.conn, TopicFor(p.token), p.handle); err != nil {
			return "", fmt.Errorf("subscribe push topic: %w", err)
		}
		p.subscribed = true
	}
	return p.token, nil
}

func (p *MQTTProvider) handle(_ mqtt.Client, m mqtt.Message) {
	var payload models.PushPayload
	if err := json.Unmarshal(m.Payload(), &payload); err != nil {
		p.logger.WithError(err).WithField("topic", m.Topic()).Warn("Dropping undecodable push")
		return
	}
	route := p.Deliver(context.Background(), payload)
	p.logger.WithFields(log.Fields{
		"message_id": payload.MessageID,
		"route":      route.String(),
	}).Debug("Push delivered")
}
