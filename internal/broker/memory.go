package broker

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Memory is an in-process broker. Messages are delivered synchronously on
// the publishing goroutine, in subscription order.
type Memory struct {
	mu     sync.RWMutex
	subs   map[string]mqtt.MessageHandler
	order  []string
	closed bool
	nextID uint16
}

var _ Conn = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]mqtt.MessageHandler)}
}

func (m *Memory) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// Close disconnects the broker; later publishes fail.
func (m *Memory) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

func (m *Memory) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return doneToken{err: ErrNotConnected}
	}
	if _, ok := m.subs[topic]; !ok {
		m.order = append(m.order, topic)
	}
	m.subs[topic] = callback
	return doneToken{}
}

func (m *Memory) Unsubscribe(topics ...string) mqtt.Token {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, topic := range topics {
		delete(m.subs, topic)
		for i, t := range m.order {
			if t == topic {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	return doneToken{}
}

func (m *Memory) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var body []byte
	switch p := payload.(type) {
	case []byte:
		body = p
	case string:
		body = []byte(p)
	case *bytes.Buffer:
		body = p.Bytes()
	case bytes.Buffer:
		body = p.Bytes()
	default:
		return doneToken{err: fmt.Errorf("unknown payload type %T", payload)}
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return doneToken{err: ErrNotConnected}
	}
	m.nextID++
	msg := &message{topic: topic, payload: body, qos: qos, retained: retained, id: m.nextID}
	var handlers []mqtt.MessageHandler
	for _, filter := range m.order {
		if Match(filter, topic) {
			handlers = append(handlers, m.subs[filter])
		}
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(nil, msg)
	}
	return doneToken{}
}

// Match reports whether topic matches an MQTT subscription filter with the
// + and # wildcards.
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return true
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

type doneToken struct {
	err error
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{}          { return closedChan }
func (t doneToken) Error() error                   { return t.err }

type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
	id       uint16
}

func (m *message) Duplicate() bool   { return false }
func (m *message) Qos() byte         { return m.qos }
func (m *message) Retained() bool    { return m.retained }
func (m *message) Topic() string     { return m.topic }
func (m *message) MessageID() uint16 { return m.id }
func (m *message) Payload() []byte   { return m.payload }
func (m *message) Ack()              {}
