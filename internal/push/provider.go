package push

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-driver/internal/models"
)

// Handler receives one provider payload.
type Handler func(ctx context.Context, payload models.PushPayload)

// Provider is the push-delivery service the driver agent depends on.
type Provider interface {
	// RequestPermission asks for permission to display notifications.
	RequestPermission(ctx context.Context) bool
	// Token returns the installation's push token.
	Token(ctx context.Context) (string, error)
	// OnForeground registers the foreground handler and returns a function
	// that removes it again.
	OnForeground(h Handler) (unsubscribe func())
	// AttachBackground sets the background handler, replacing any previous one.
	AttachBackground(h Handler)
}

// Route says where a delivery ended up.
type Route int

const (
	RouteDropped Route = iota
	RouteForeground
	RouteBackground
)

func (r Route) String() string {
	switch r {
	case RouteForeground:
		return "foreground"
	case RouteBackground:
		return "background"
	default:
		return "dropped"
	}
}

// Dispatcher hands each delivery to the foreground handler when one is
// registered, to the background handler otherwise, and drops it when
// neither is present.
type Dispatcher struct {
	mu         sync.RWMutex
	foreground Handler
	fgSeq      uint64
	background Handler
	logger     log.FieldLogger
}

func NewDispatcher(logger log.FieldLogger) *Dispatcher {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Dispatcher{logger: logger.WithField("component", "push")}
}

func (d *Dispatcher) OnForeground(h Handler) func() {
	d.mu.Lock()
	d.fgSeq++
	seq := d.fgSeq
	d.foreground = h
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.fgSeq == seq {
			d.foreground = nil
		}
	}
}

func (d *Dispatcher) AttachBackground(h Handler) {
	d.mu.Lock()
	d.background = h
	d.mu.Unlock()
}

// Deliver routes payload and reports where it went.
func (d *Dispatcher) Deliver(ctx context.Context, payload models.PushPayload) Route {
	d.mu.RLock()
	fg, bg := d.foreground, d.background
	d.mu.RUnlock()

	switch {
	case fg != nil:
		fg(ctx, payload)
		return RouteForeground
	case bg != nil:
		bg(ctx, payload)
		return RouteBackground
	default:
		d.logger.WithField("message_id", payload.MessageID).Warn("No handler attached, push dropped")
		return RouteDropped
	}
}
