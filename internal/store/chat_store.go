package store

import (
	"context"
	"time"
)

// KnownChat is a group chat the bot has seen, used for announcements.
type KnownChat struct {
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chatId"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ChatStore records group chats.
type ChatStore interface {
	// RecordChat inserts the chat if new and reports whether it was inserted.
	RecordChat(ctx context.Context, channel, chatID, title string) (bool, error)
	ListChats(ctx context.Context, channel string) ([]KnownChat, error)
}
