package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
)

// Manager owns the registered channels, their lifecycle and outbound pacing.
// It satisfies router.Sender.
type Manager struct {
	channels map[string]Channel
	limiter  *SendLimiter
	mu       sync.RWMutex
}

// NewManager creates a manager. A nil limiter disables pacing.
func NewManager(limiter *SendLimiter) *Manager {
	return &Manager{
		channels: make(map[string]Channel),
		limiter:  limiter,
	}
}

// RegisterChannel adds a channel to the manager.
func (m *Manager) RegisterChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.Name()] = ch
}

// StartAll starts every registered channel. A channel that fails to start is
// logged and skipped; an error is returned only when none started.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.channels) == 0 {
		slog.Warn("no channels enabled")
		return nil
	}

	started := 0
	for name, ch := range m.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx); err != nil {
			slog.Error("failed to start channel", "channel", name, "error", err)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("none of %d channels started", len(m.channels))
	}
	slog.Info("channels started", "count", started)
	return nil
}

// StopAll stops every channel, logging failures.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for name, ch := range m.channels {
		if err := ch.Stop(ctx); err != nil {
			slog.Error("error stopping channel", "channel", name, "error", err)
		}
	}
	slog.Info("all channels stopped")
}

// Send routes msg to its channel after waiting for the send budget.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch, err := m.lookup(msg.Channel)
	if err != nil {
		return err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx, msg.Channel, msg.ChatID); err != nil {
			return fmt.Errorf("send budget: %w", err)
		}
	}
	return ch.Send(ctx, msg)
}

// SendTyping is not paced; typing actions are best-effort.
func (m *Manager) SendTyping(ctx context.Context, channel, chatID string) error {
	ch, err := m.lookup(channel)
	if err != nil {
		return err
	}
	return ch.SendTyping(ctx, chatID)
}

// SendToChannel delivers a plain (non-reply) message.
func (m *Manager) SendToChannel(ctx context.Context, channel, chatID, content string) error {
	return m.Send(ctx, bus.OutboundMessage{Channel: channel, ChatID: chatID, Content: content})
}

// GetChannel returns a channel by name.
func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// Status reports whether each registered channel is running.
func (m *Manager) Status() map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.channels))
	for name, ch := range m.channels {
		out[name] = ch.IsRunning()
	}
	return out
}

// EnabledChannels returns registered channel names, sorted.
func (m *Manager) EnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) lookup(name string) (Channel, error) {
	m.mu.RLock()
	ch, ok := m.channels[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("channel %s not found", name)
	}
	if !ch.IsRunning() {
		return nil, fmt.Errorf("channel %s is not running", name)
	}
	return ch, nil
}
