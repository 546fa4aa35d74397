package bus

import "time"

// Peer kinds.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// InboundMessage represents a text message received from a channel (Telegram, Discord).
type InboundMessage struct {
	Channel   string    `json:"channel"`
	SenderID  string    `json:"sender_id"`
	UserName  string    `json:"user_name,omitempty"` // "@handle" or display name
	ChatID    string    `json:"chat_id"`
	ChatTitle string    `json:"chat_title,omitempty"`
	MessageID string    `json:"message_id"`
	PeerKind  string    `json:"peer_kind"` // "direct" or "group"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	ReplyToBot   bool `json:"reply_to_bot,omitempty"`
	ReplyToOther bool `json:"reply_to_other,omitempty"` // reply to a message not authored by the bot
}

// IsGroup reports whether the message came from a group chat.
func (m InboundMessage) IsGroup() bool { return m.PeerKind == PeerGroup }

// ChatInfo renders the dashboard label for the originating chat.
func (m InboundMessage) ChatInfo() string {
	if m.IsGroup() {
		return "Group: " + m.ChatTitle
	}
	return "Direct Message"
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	ReplyTo string `json:"reply_to,omitempty"` // message ID to reply to; empty sends a plain message
	HTML    bool   `json:"html,omitempty"`
}

// Event is a telemetry record pushed to dashboard subscribers, one per handled message.
type Event struct {
	ID        string    `json:"id"`
	EventType string    `json:"eventType"`
	User      string    `json:"user"`
	UserID    string    `json:"userId,omitempty"`
	ChatInfo  string    `json:"chatInfo"`
	ChatID    string    `json:"chatId,omitempty"`
	MessageID string    `json:"messageId,omitempty"`
	Trigger   string    `json:"trigger"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler handles a broadcast event. Handlers must not block.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}
