// Package discord receives chat messages through the Discord gateway.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/channels"
	"github.com/nextlevelbuilder/hamdam/internal/config"
)

// Name is the channel identifier used in user keys and events.
const Name = "discord"

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	botUserID string // populated on start
	ctx       context.Context
}

// New creates a Discord channel. Accepted messages go to handler.
func New(cfg config.DiscordConfig, handler channels.InboundHandler) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel(Name, handler),
		session:     session,
		ctx:         context.Background(),
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")
	c.ctx = ctx

	c.session.AddHandler(c.handleMessage)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers msg, chunked at the 2000 character limit. Only the first
// chunk carries the reply reference.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}

	for i, chunk := range splitMessage(msg.Content, maxMessageLen) {
		var err error
		if i == 0 && msg.ReplyTo != "" {
			_, err = c.session.ChannelMessageSendReply(msg.ChatID, chunk, &discordgo.MessageReference{
				MessageID: msg.ReplyTo,
				ChannelID: msg.ChatID,
			}, discordgo.WithContext(ctx))
		} else {
			_, err = c.session.ChannelMessageSend(msg.ChatID, chunk, discordgo.WithContext(ctx))
		}
		if err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// SendTyping triggers the typing indicator; Discord expires it after ~10s.
func (c *Channel) SendTyping(ctx context.Context, chatID string) error {
	return c.session.ChannelTyping(chatID, discordgo.WithContext(ctx))
}

func (c *Channel) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := toInbound(m.Message, c.botUserID)
	if !ok {
		return
	}
	if msg.IsGroup() {
		msg.ChatTitle = channelTitle(s, m.ChannelID)
	}
	slog.Debug("discord message received", "sender_id", msg.SenderID, "channel_id", msg.ChatID, "group", msg.IsGroup())
	c.HandleMessage(c.ctx, msg)
}

// toInbound maps a Discord message. Bot authors (including this bot) and
// empty messages are skipped.
func toInbound(m *discordgo.Message, botUserID string) (bus.InboundMessage, bool) {
	if m == nil || m.Author == nil || m.Author.Bot || m.Author.ID == botUserID {
		return bus.InboundMessage{}, false
	}
	if strings.TrimSpace(m.Content) == "" {
		return bus.InboundMessage{}, false
	}

	msg := bus.InboundMessage{
		SenderID:  m.Author.ID,
		UserName:  displayName(m),
		ChatID:    m.ChannelID,
		MessageID: m.ID,
		PeerKind:  bus.PeerDirect,
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if m.GuildID != "" {
		msg.PeerKind = bus.PeerGroup
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		if ref.Author.ID == botUserID {
			msg.ReplyToBot = true
		} else {
			msg.ReplyToOther = true
		}
	}
	return msg, true
}

// displayName prefers server nickname, then global display name, then username.
func displayName(m *discordgo.Message) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

func channelTitle(s *discordgo.Session, channelID string) string {
	if s == nil || s.State == nil {
		return channelID
	}
	ch, err := s.State.Channel(channelID)
	if err != nil || ch.Name == "" {
		return channelID
	}
	return "#" + ch.Name
}

// splitMessage cuts content into chunks of at most limit runes, preferring
// a newline in the second half of each chunk.
func splitMessage(content string, limit int) []string {
	runes := []rune(content)
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
