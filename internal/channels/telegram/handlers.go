package telegram

import (
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

// toInbound maps a Telegram message to the router's form. Service messages,
// anonymous senders and non-text messages are skipped.
func toInbound(m *telego.Message, botID int64) (bus.InboundMessage, bool) {
	if m == nil || m.From == nil || m.Text == "" {
		return bus.InboundMessage{}, false
	}

	msg := bus.InboundMessage{
		SenderID:  strconv.FormatInt(m.From.ID, 10),
		UserName:  senderLabel(m.From),
		ChatID:    strconv.FormatInt(m.Chat.ID, 10),
		MessageID: strconv.Itoa(m.MessageID),
		PeerKind:  bus.PeerDirect,
		Content:   m.Text,
		Timestamp: time.Unix(m.Date, 0),
	}
	if m.Chat.Type == telego.ChatTypeGroup || m.Chat.Type == telego.ChatTypeSupergroup {
		msg.PeerKind = bus.PeerGroup
		msg.ChatTitle = m.Chat.Title
	}

	if r := m.ReplyToMessage; r != nil && r.From != nil {
		if r.From.ID == botID {
			msg.ReplyToBot = true
		} else {
			msg.ReplyToOther = true
		}
	}
	return msg, true
}

// senderLabel prefers "@username", falling back to the first name.
func senderLabel(u *telego.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}
