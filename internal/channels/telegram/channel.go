// Package telegram receives chat messages through the Bot API using long polling.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/channels"
	"github.com/nextlevelbuilder/hamdam/internal/config"
)

// Name is the channel identifier used in user keys and events.
const Name = "telegram"

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot        *telego.Bot
	botID      int64
	pollCancel context.CancelFunc // cancels the long polling context
	pollDone   chan struct{}      // closed when polling goroutine exits
}

// New creates a Telegram channel. Accepted messages go to handler.
func New(cfg config.TelegramConfig, handler channels.InboundHandler) (*Channel, error) {
	var opts []telego.BotOption

	if cfg.Proxy != "" {
		proxyURL, parseErr := url.Parse(cfg.Proxy)
		if parseErr != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, parseErr)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Channel{
		BaseChannel: channels.NewBaseChannel(Name, handler),
		bot:         bot,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	c.botID = me.ID

	// Stop() cancels this context to shut long polling down.
	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", me.Username)

	go func() {
		if err := c.SyncMenuCommands(pollCtx, DefaultMenuCommands()); err != nil {
			slog.Warn("failed to sync telegram menu commands", "error", err)
		}
	}()

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message == nil {
					slog.Debug("telegram update skipped (no message)", "update_id", update.UpdateID)
					continue
				}
				if msg, ok := toInbound(update.Message, c.botID); ok {
					c.HandleMessage(pollCtx, msg)
				}
			}
		}
	}()

	return nil
}

// Stop cancels long polling and waits for the polling goroutine so Telegram
// releases the getUpdates lock before a new instance starts.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers msg, as a reply when msg.ReplyTo is set.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}

	params := tu.Message(tu.ID(chatID), msg.Content)
	if msg.HTML {
		params = params.WithParseMode(telego.ModeHTML)
	}
	if msg.ReplyTo != "" {
		replyID, err := strconv.Atoi(msg.ReplyTo)
		if err != nil {
			return fmt.Errorf("invalid telegram message id %q: %w", msg.ReplyTo, err)
		}
		params = params.WithReplyParameters(&telego.ReplyParameters{
			MessageID:                replyID,
			AllowSendingWithoutReply: true,
		})
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

// SendTyping shows "typing..." in chatID.
func (c *Channel) SendTyping(ctx context.Context, chatID string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", chatID, err)
	}
	return c.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(id), telego.ChatActionTyping))
}
