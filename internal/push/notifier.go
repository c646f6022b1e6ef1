package push

import (
	"context"
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/broker"
)

// Action is a button on a system notification.
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

const (
	ActionView    = "view"
	ActionDismiss = "dismiss"
)

// DefaultActions are attached to every background notification.
var DefaultActions = []Action{
	{Action: ActionView, Title: "View"},
	{Action: ActionDismiss, Title: "Dismiss"},
}

// Notification is a system notification shown by the host shell.
type Notification struct {
	Tag                string            `json:"tag"`
	Title              string            `json:"title"`
	Body               string            `json:"body"`
	Data               map[string]string `json:"data,omitempty"`
	RequireInteraction bool              `json:"requireInteraction"`
	Actions            []Action          `json:"actions,omitempty"`
}

// Notifier shows and closes system notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, tag string) error
}

// Opener opens the app at url, or focuses it when already open.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// LogNotifier logs notifications for headless runs.
type LogNotifier struct {
	Logger log.FieldLogger
}

var (
	_ Notifier = LogNotifier{}
	_ Opener   = LogNotifier{}
)

func (n LogNotifier) logger() log.FieldLogger {
	if n.Logger == nil {
		return log.StandardLogger()
	}
	return n.Logger
}

func (n LogNotifier) Show(_ context.Context, note Notification) error {
	n.logger().WithFields(log.Fields{
		"tag":   note.Tag,
		"title": note.Title,
		"body":  note.Body,
	}).Info("Notification shown")
	return nil
}

func (n LogNotifier) Close(_ context.Context, tag string) error {
	n.logger().WithField("tag", tag).Info("Notification closed")
	return nil
}

func (n LogNotifier) Open(_ context.Context, url string) error {
	n.logger().WithField("url", url).Info("Opening app")
	return nil
}

// DisplayEvent is what MQTTNotifier publishes for the host shell.
type DisplayEvent struct {
	Event        string        `json:"event"`
	Notification *Notification `json:"notification,omitempty"`
	Tag          string        `json:"tag,omitempty"`
	URL          string        `json:"url,omitempty"`
}

// MQTTNotifier publishes display events on fleet/driver/{clientID}/display.
type MQTTNotifier struct {
	conn  broker.Conn
	topic string
}

var (
	_ Notifier = (*MQTTNotifier)(nil)
	_ Opener   = (*MQTTNotifier)(nil)
)

func NewMQTTNotifier(conn broker.Conn, clientID string) *MQTTNotifier {
	return &MQTTNotifier{conn: conn, topic: DisplayTopic(clientID)}
}

// DisplayTopic returns the topic display events for clientID go to.
func DisplayTopic(clientID string) string {
	return fmt.Sprintf("fleet/driver/%s/display", clientID)
}

func (n *MQTTNotifier) Show(_ context.Context, note Notification) error {
	return broker.PublishJSON(n.conn, n.topic, DisplayEvent{Event: "show", Notification: &note})
}

func (n *MQTTNotifier) Close(_ context.Context, tag string) error {
	return broker.PublishJSON(n.conn, n.topic, DisplayEvent{Event: "close", Tag: tag})
}

func (n *MQTTNotifier) Open(_ context.Context, url string) error {
	return broker.PublishJSON(n.conn, n.topic, DisplayEvent{Event: "open", URL: url})
}

// ClickEvent is a tap reported by the host shell. An empty Action is a tap
// on the notification body.
type ClickEvent struct {
	Action string `json:"action"`
	Tag    string `json:"tag"`
}

// ClickTopic returns the topic the host shell reports taps on.
func ClickTopic(clientID string) string {
	return fmt.Sprintf("fleet/driver/%s/click", clientID)
}

// SubscribeClicks forwards taps reported for clientID to fn. Malformed
// events are dropped.
func SubscribeClicks(conn broker.Conn, clientID string, fn func(ClickEvent), logger log.FieldLogger) error {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return broker.Subscribe(conn, ClickTopic(clientID), func(_ mqtt.Client, m mqtt.Message) {
		var ev ClickEvent
		if err := json.Unmarshal(m.Payload(), &ev); err != nil {
			logger.WithError(err).Warn("Dropping malformed click event")
			return
		}
		fn(ev)
	})
}
