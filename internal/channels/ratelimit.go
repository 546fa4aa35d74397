package channels

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	// DefaultGlobalRate stays under Telegram's 30 messages/second bot limit.
	DefaultGlobalRate = 25.0

	// Per-chat pacing: roughly one message a second with a small burst.
	DefaultChatRate  = 1.0
	DefaultChatBurst = 3

	chatLimiterTTL = 10 * time.Minute
)

// SendLimiter paces outbound traffic with a global limiter and one limiter
// per chat. Idle chat limiters expire after chatLimiterTTL.
type SendLimiter struct {
	global    *rate.Limiter
	chatRate  rate.Limit
	chatBurst int
	chats     *cache.Cache
}

// NewSendLimiter creates a limiter. Non-positive values fall back to defaults.
func NewSendLimiter(globalRate, chatRate float64, chatBurst int) *SendLimiter {
	if globalRate <= 0 {
		globalRate = DefaultGlobalRate
	}
	if chatRate <= 0 {
		chatRate = DefaultChatRate
	}
	if chatBurst <= 0 {
		chatBurst = DefaultChatBurst
	}
	return &SendLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRate), max(1, int(globalRate))),
		chatRate:  rate.Limit(chatRate),
		chatBurst: chatBurst,
		chats:     cache.New(chatLimiterTTL, 2*chatLimiterTTL),
	}
}

// Wait blocks until both the global and the chat budget allow one send.
func (l *SendLimiter) Wait(ctx context.Context, channel, chatID string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.chatLimiter(channel + ":" + chatID).Wait(ctx)
}

func (l *SendLimiter) chatLimiter(key string) *rate.Limiter {
	if v, ok := l.chats.Get(key); ok {
		lim := v.(*rate.Limiter)
		l.chats.SetDefault(key, lim) // refresh expiry
		return lim
	}
	lim := rate.NewLimiter(l.chatRate, l.chatBurst)
	if err := l.chats.Add(key, lim, cache.DefaultExpiration); err != nil {
		// Lost the race; use the winner.
		if v, ok := l.chats.Get(key); ok {
			return v.(*rate.Limiter)
		}
	}
	return lim
}

// TrackedChats returns the number of live per-chat limiters.
func (l *SendLimiter) TrackedChats() int {
	return l.chats.ItemCount()
}
