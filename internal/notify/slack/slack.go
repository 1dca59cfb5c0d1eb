// Package slack implements the notify Sink for Slack.
package slack

import (
	"context"
	"fmt"

	slackapi "github.com/slack-go/slack"

	"github.com/corbins/gantry/internal/notify"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Sink posts migration events to a Slack channel.
type Sink struct {
	client  slackClient
	channel string
}

// New returns a Slack sink posting to the given channel.
func New(botToken, channel string) *Sink {
	return &Sink{
		client:  slackapi.New(botToken),
		channel: channel,
	}
}

// Publish posts the event as an attachment-style message.
func (s *Sink) Publish(ctx context.Context, ev notify.Event) error {
	attachment := slackapi.Attachment{
		Title: ev.Title(),
		Text:  ev.Text(),
		Color: colorFor(ev.NewStatus),
	}
	_, _, err := s.client.PostMessageContext(ctx, s.channel,
		slackapi.MsgOptionAttachments(attachment))
	if err != nil {
		return fmt.Errorf("slack: post to %s: %w", s.channel, err)
	}
	return nil
}

// colorFor maps a migration status to a sidebar color.
func colorFor(status string) string {
	switch status {
	case "completed":
		return "#36a64f"
	case "error":
		return "#d00000"
	case "cancelled":
		return "#daa038"
	default:
		return "#439fe0"
	}
}
