package service

import "context"

// Logger defines the logging interface shared by all services.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ChannelEvent is the payload forwarded to an external channel sink
// (chat, webhook, ...). It carries no delivery guarantees.
type ChannelEvent struct {
	Event     string `json:"event"`
	Severity  string `json:"severity"`
	Title     string `json:"title"`
	Body      string `json:"body,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// ChannelDispatcher forwards events to an external channel. Implementations
// are best-effort; callers never act on the returned error beyond logging it.
type ChannelDispatcher interface {
	Dispatch(ctx context.Context, ev ChannelEvent) error
}

// dispatchEvent forwards ev to the sink, swallowing any failure. Core state
// transitions must not depend on channel delivery.
func dispatchEvent(d ChannelDispatcher, logger Logger, ev ChannelEvent) {
	if d == nil {
		return
	}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		logger.Errorf("Channel dispatch for %s failed: %v", ev.Event, err)
	}
}
