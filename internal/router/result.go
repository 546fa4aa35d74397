package router

import "github.com/nextlevelbuilder/hamdam/internal/antispam"

// Tier names the pipeline stage that produced (or declined) a reply.
type Tier string

const (
	TierNone       Tier = "none" // AI-ineligible, left unanswered
	TierSuppressed Tier = "suppressed"
	TierCommand    Tier = "command"
	TierContext    Tier = "context"
	TierCatalog    Tier = "catalog"
	TierSearchAI   Tier = "search_ai"
	TierAI         Tier = "ai"
	TierError      Tier = "error"
	TierCancelled  Tier = "cancelled" // reply dropped on shutdown
)

// Result describes how a message was handled.
type Result struct {
	Tier       Tier
	Reply      string
	Suppressed antispam.Reason
	// RuleID is set for context and catalog replies.
	RuleID int64
}

// Handled reports whether a reply was produced.
func (r Result) Handled() bool {
	return r.Reply != ""
}
