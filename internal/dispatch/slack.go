// Package dispatch provides channel sinks for alerts and notifications.
package dispatch

import (
	"context"
	"fmt"

	"github.com/fleetworks/botflow/pkg/service"
	"github.com/slack-go/slack"
)

// SlackDispatcher forwards channel events to a Slack channel. It implements
// service.ChannelDispatcher; delivery is best-effort and callers discard the
// returned error.
type SlackDispatcher struct {
	client  *slack.Client
	channel string
}

func NewSlackDispatcher(botToken, channel string) *SlackDispatcher {
	return &SlackDispatcher{
		client:  slack.New(botToken),
		channel: channel,
	}
}

func (d *SlackDispatcher) Dispatch(ctx context.Context, ev service.ChannelEvent) error {
	text := fmt.Sprintf("[%s] %s", ev.Severity, ev.Title)
	if ev.Body != "" {
		text += "\n" + ev.Body
	}
	_, _, err := d.client.PostMessageContext(ctx, d.channel,
		slack.MsgOptionText(text, false),
	)
	return err
}
