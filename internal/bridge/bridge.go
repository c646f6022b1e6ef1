package bridge

import (
	"errors"
	"sync"
)

// ErrNotReady means no background context is attached to receive messages.
var ErrNotReady = errors.New("background context not ready")

// Sender is the foreground end. Send is fire and forget: there is no
// acknowledgement and nothing is retried. Ready yields a value each time the
// background (re)attaches, which is the foreground's cue to resend.
type Sender interface {
	Send(msg Message) error
	Ready() <-chan struct{}
}

// Receiver is the background end.
type Receiver interface {
	Attach() (<-chan Message, error)
	SignalReady() error
	Detach()
}

// Mailbox is an in-process bridge backed by a buffered channel.
type Mailbox struct {
	mu       sync.Mutex
	messages chan Message
	ready    chan struct{}
	attached bool
}

var (
	_ Sender   = (*Mailbox)(nil)
	_ Receiver = (*Mailbox)(nil)
)

// ErrMailboxFull is returned when the background has fallen behind.
var ErrMailboxFull = errors.New("bridge mailbox full")

func NewMailbox(size int) *Mailbox {
	if size <= 0 {
		size = 16
	}
	return &Mailbox{
		messages: make(chan Message, size),
		ready:    make(chan struct{}, 1),
	}
}

func (m *Mailbox) Send(msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.attached {
		return ErrNotReady
	}
	select {
	case m.messages <- msg:
		return nil
	default:
		return ErrMailboxFull
	}
}

func (m *Mailbox) Ready() <-chan struct{} {
	return m.ready
}

// Attach marks the background as present and returns its inbox.
func (m *Mailbox) Attach() (<-chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attached = true
	return m.messages, nil
}

func (m *Mailbox) SignalReady() error {
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return nil
}

// Detach stops accepting messages. Messages already queued stay queued.
func (m *Mailbox) Detach() {
	m.mu.Lock()
	m.attached = false
	m.mu.Unlock()
}
