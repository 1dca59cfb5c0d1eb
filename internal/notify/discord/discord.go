// Package discord implements the notify Sink for Discord.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/corbins/gantry/internal/notify"
)

// session abstracts the discordgo.Session methods we use, enabling test mocks.
type session interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Sink posts migration events to a Discord channel. Discord's REST API
// needs no open gateway connection for sends, so the sink is stateless.
type Sink struct {
	session   session
	channelID string
}

// New returns a Discord sink posting to the given channel.
func New(botToken, channelID string) (*Sink, error) {
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}
	return &Sink{session: s, channelID: channelID}, nil
}

// Publish posts the event as an embed.
func (s *Sink) Publish(_ context.Context, ev notify.Event) error {
	embed := &discordgo.MessageEmbed{
		Title:       ev.Title(),
		Description: ev.Text(),
		Color:       colorFor(ev.NewStatus),
	}
	if _, err := s.session.ChannelMessageSendEmbed(s.channelID, embed); err != nil {
		return fmt.Errorf("discord: post to %s: %w", s.channelID, err)
	}
	return nil
}

// colorFor maps a migration status to an embed color.
func colorFor(status string) int {
	switch status {
	case "completed":
		return 0x36a64f
	case "error":
		return 0xd00000
	case "cancelled":
		return 0xdaa038
	default:
		return 0x439fe0
	}
}
