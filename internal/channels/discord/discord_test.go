package discord

import (
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

const botID = "bot-1"

func TestToInboundGuildReply(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "m2",
		ChannelID: "c1",
		GuildID:   "g1",
		Content:   "جواب بده",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "u1", Username: "sara", GlobalName: "Sara"},
		Member:    &discordgo.Member{Nick: "SaraFan"},
		ReferencedMessage: &discordgo.Message{
			ID:     "m1",
			Author: &discordgo.User{ID: botID, Bot: true},
		},
	}

	msg, ok := toInbound(m, botID)
	require.True(t, ok)
	assert.Equal(t, bus.PeerGroup, msg.PeerKind)
	assert.Equal(t, "SaraFan", msg.UserName)
	assert.Equal(t, "c1", msg.ChatID)
	assert.Equal(t, "m2", msg.MessageID)
	assert.Equal(t, ts, msg.Timestamp)
	assert.True(t, msg.ReplyToBot)
	assert.False(t, msg.ReplyToOther)
}

func TestToInboundDirectReplyToOther(t *testing.T) {
	m := &discordgo.Message{
		ID:                "m3",
		ChannelID:         "dm1",
		Content:           "سلام",
		Author:            &discordgo.User{ID: "u1", Username: "sara"},
		ReferencedMessage: &discordgo.Message{Author: &discordgo.User{ID: "u2"}},
	}

	msg, ok := toInbound(m, botID)
	require.True(t, ok)
	assert.Equal(t, bus.PeerDirect, msg.PeerKind)
	assert.Equal(t, "sara", msg.UserName)
	assert.True(t, msg.ReplyToOther)
}

func TestToInboundSkipsBotsAndEmpty(t *testing.T) {
	for name, m := range map[string]*discordgo.Message{
		"self":  {Content: "x", Author: &discordgo.User{ID: botID}},
		"bot":   {Content: "x", Author: &discordgo.User{ID: "b2", Bot: true}},
		"empty": {Content: "  ", Author: &discordgo.User{ID: "u1"}},
		"anon":  {Content: "x"},
	} {
		_, ok := toInbound(m, botID)
		assert.False(t, ok, name)
	}
}

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, splitMessage("", 10))
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	// Persian runes count once each, not per byte.
	fa := strings.Repeat("س", 15)
	chunks := splitMessage(fa, 10)
	require.Len(t, chunks, 2)
	assert.Equal(t, 10, len([]rune(chunks[0])))

	withNewline := "aaaaaaa\nbbbbbbbbb"
	chunks = splitMessage(withNewline, 10)
	assert.Equal(t, "aaaaaaa\n", chunks[0])
	assert.Equal(t, "bbbbbbbbb", chunks[1])
}
