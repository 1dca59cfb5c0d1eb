package discord

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"

	"github.com/corbins/gantry/internal/notify"
)

type mockSession struct {
	embeds   []*discordgo.MessageEmbed
	channels []string
	err      error
}

func (m *mockSession) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	m.channels = append(m.channels, channelID)
	m.embeds = append(m.embeds, embed)
	return &discordgo.Message{}, m.err
}

func TestPublish(t *testing.T) {
	ms := &mockSession{}
	s := &Sink{session: ms, channelID: "123"}

	err := s.Publish(context.Background(), notify.Event{
		MigrationID: "mg-1", InstanceID: "inst-1",
		OldStatus: "running", NewStatus: "error", Detail: "boom",
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(ms.channels) != 1 || ms.channels[0] != "123" {
		t.Errorf("posted to %v", ms.channels)
	}
	if ms.embeds[0].Color != colorFor("error") {
		t.Errorf("color = %#x", ms.embeds[0].Color)
	}
}

func TestPublish_Error(t *testing.T) {
	ms := &mockSession{err: errors.New("gateway closed")}
	s := &Sink{session: ms, channelID: "123"}

	if err := s.Publish(context.Background(), notify.Event{MigrationID: "mg-1"}); err == nil {
		t.Fatal("expected error")
	}
}
