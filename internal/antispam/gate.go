// Package antispam drops stale, duplicate and too-frequent messages before routing.
package antispam

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Reason explains a suppression.
type Reason string

const (
	Allowed      Reason = ""
	Stale        Reason = "stale"
	ReplyToOther Reason = "reply_to_other"
	Cooldown     Reason = "cooldown"
	Duplicate    Reason = "duplicate"
)

// Decision is the gate's verdict for one message.
type Decision struct {
	Allow  bool
	Reason Reason
}

// Message carries only what the gate inspects.
type Message struct {
	UserID         string
	Text           string
	Timestamp      time.Time
	IsReplyToOther bool
}

// Config holds the three thresholds.
type Config struct {
	GeneralCooldown     time.Duration
	DuplicateCooldown   time.Duration
	OldMessageThreshold time.Duration
}

type lastSeen struct {
	at   time.Time
	text string
}

// Gate keeps one last-seen record per user. Records expire after the longest
// cooldown; an expired record could not have suppressed anything.
type Gate struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	records *cache.Cache
}

// New creates a gate using the wall clock.
func New(cfg Config) *Gate {
	return NewWithClock(cfg, time.Now)
}

// NewWithClock creates a gate with an injected clock.
func NewWithClock(cfg Config, now func() time.Time) *Gate {
	ttl := max(cfg.GeneralCooldown, cfg.DuplicateCooldown)
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Gate{
		cfg:     cfg,
		now:     now,
		records: cache.New(ttl, 2*ttl),
	}
}

// Check evaluates msg and, when allowed, records it as the user's latest message.
func (g *Gate) Check(msg Message) Decision {
	now := g.now()

	if !msg.Timestamp.IsZero() && now.Sub(msg.Timestamp) > g.cfg.OldMessageThreshold {
		return Decision{Reason: Stale}
	}
	if msg.IsReplyToOther {
		return Decision{Reason: ReplyToOther}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := g.records.Get(msg.UserID); ok {
		prev := v.(lastSeen)
		since := now.Sub(prev.at)
		if since < g.cfg.GeneralCooldown {
			return Decision{Reason: Cooldown}
		}
		if prev.text == msg.Text && since < g.cfg.DuplicateCooldown {
			return Decision{Reason: Duplicate}
		}
	}

	g.records.SetDefault(msg.UserID, lastSeen{at: now, text: msg.Text})
	return Decision{Allow: true}
}

// Tracked returns the number of users with a live record.
func (g *Gate) Tracked() int {
	return g.records.ItemCount()
}
