package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/store"
)

const (
	defaultStartupMessage = "✅ <b>ربات اکنون برای پاسخ دادن آماده است.</b>"
	offlineMessage        = "🤖 ربات برای آپدیت از دسترس خارج شد."
)

type announcement struct {
	enabled bool
	extra   string
}

func (a announcement) startupMessage() string {
	if strings.TrimSpace(a.extra) == "" {
		return defaultStartupMessage
	}
	return defaultStartupMessage + "\n\n" + a.extra
}

// promptAnnouncement asks the operator whether to announce this session to
// known groups, and for an optional line appended to the startup message.
func promptAnnouncement() (announcement, error) {
	a := announcement{enabled: true}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Send startup/shutdown broadcast to all groups?").
				Affirmative("Yes").
				Negative("No").
				Value(&a.enabled),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Optional startup message").
				Description("Leave empty to send the default announcement only.").
				Value(&a.extra),
		).WithHideFunc(func() bool { return !a.enabled }),
	)
	if err := form.Run(); err != nil {
		return announcement{}, err
	}
	if !a.enabled {
		slog.Info("broadcasts for this session are disabled")
	}
	return a, nil
}

// ChatLister lists the chats the bot has seen.
type ChatLister interface {
	ListChats(ctx context.Context, channel string) ([]store.KnownChat, error)
}

// OutboundSender delivers one message.
type OutboundSender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// broadcastToKnownGroups sends an HTML message to every recorded group chat.
// Per-chat failures are logged and do not stop the broadcast. It returns the
// number of chats the message reached.
func broadcastToKnownGroups(ctx context.Context, chats ChatLister, sender OutboundSender, message string) int {
	known, err := chats.ListChats(ctx, "")
	if err != nil {
		slog.Error("list known chats", "error", err)
		return 0
	}
	if len(known) == 0 {
		slog.Info("no known groups to broadcast to")
		return 0
	}

	sent := 0
	for _, c := range known {
		err := sender.Send(ctx, bus.OutboundMessage{
			Channel: c.Channel,
			ChatID:  c.ChatID,
			Content: message,
			HTML:    true,
		})
		if err != nil {
			slog.Error("broadcast failed", "channel", c.Channel, "chat_id", c.ChatID, "error", err)
			continue
		}
		sent++
	}
	slog.Info("broadcast sent", "chats", sent, "known", len(known))
	return sent
}
