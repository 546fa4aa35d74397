package protocol

// FeedVersion is bumped when the shape of events on the dashboard feed changes.
const FeedVersion = 1

// Telemetry event types emitted per handled message.
const (
	EventNewUser            = "New User"
	EventTriggeredResponse  = "Triggered Response"
	EventContextualResponse = "Contextual Response"
	EventContextFallback    = "Context Fallback"
	EventUnansweredDM       = "Unanswered DM"
	EventUnansweredReply    = "Unanswered Reply"
	EventAIResponse         = "AI Response"
	EventAISearchResponse   = "AI Search Response"
	EventPipelineError      = "Pipeline Error"
	EventAdminAction        = "ADMIN_ACTION"
)

// Dashboard-side labels.
const (
	ChatInfoDashboard = "Dashboard"
	UserAdmin         = "Admin"
)
