package broker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// QoS used for every publish and subscribe: fire and forget.
const QoS byte = 0

const connectTimeout = 10 * time.Second

// ErrNotConnected is returned when publishing on a closed connection.
var ErrNotConnected = errors.New("broker not connected")

// Conn is the part of mqtt.Client the driver agent uses. *Memory implements
// it for single-process runs and tests.
type Conn interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Connect opens an MQTT connection with automatic reconnects.
func Connect(brokerURL, clientID string, logger log.FieldLogger) (mqtt.Client, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.WithError(err).Warn("MQTT connection lost")
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			logger.WithField("broker", brokerURL).Info("MQTT connected")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", brokerURL, err)
	}
	return client, nil
}

// PublishJSON marshals msg and publishes it on topic.
func PublishJSON(conn Conn, topic string, msg any) error {
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	token := conn.Publish(topic, QoS, false, body)
	token.Wait()
	return token.Error()
}

// Subscribe registers handler on topic and waits for the broker to confirm.
func Subscribe(conn Conn, topic string, handler mqtt.MessageHandler) error {
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	token := conn.Subscribe(topic, QoS, handler)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Unsubscribe removes the subscription on topic.
func Unsubscribe(conn Conn, topic string) error {
	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	token := conn.Unsubscribe(topic)
	token.Wait()
	return token.Error()
}
