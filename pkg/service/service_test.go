package service_test

import (
	"context"

	"github.com/fleetworks/botflow/pkg/service"
)

type logger struct{}

func (l logger) Infof(format string, args ...interface{}) {
	// no-op
}

func (l logger) Errorf(format string, args ...interface{}) {
	// no-op
}

// fakeDispatcher records forwarded channel events. Dispatch is synchronous
// in the services, so a plain slice is safe.
type fakeDispatcher struct {
	events []service.ChannelEvent
	err    error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, ev service.ChannelEvent) error {
	d.events = append(d.events, ev)
	return d.err
}
