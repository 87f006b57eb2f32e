package memory

// Source types for memory events, one per ingest trigger.
const (
	SourceExecute       = "nba_execute"
	SourceDismiss       = "nba_dismiss"
	SourceSnooze        = "nba_snooze"
	SourceCopilotAction = "copilot_action"
	SourceFounderReview = "founder_review"
)

// Outcomes. Attribution outcomes (improved/neutral/worsened) are
// supplied by callers with before/after metric context and take
// precedence over the raw execution status.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeNeutral  = "neutral"
	OutcomeImproved = "improved"
	OutcomeWorsened = "worsened"
	OutcomeDismiss  = "dismiss"
	OutcomeSnooze   = "snooze"
)

// ExecutionEvent describes a finished execution attempt.
type ExecutionEvent struct {
	ActorUserID string `json:"actor_user_id"`
	RuleKey     string `json:"rule_key"`
	ActionKey   string `json:"action_key"`
	Success     bool   `json:"success"`
	// Attribution optionally overrides the raw execution status with
	// improved|neutral|worsened.
	Attribution string `json:"attribution,omitempty"`
}

// ResolutionEvent describes a dismiss or snooze from the dashboard.
type ResolutionEvent struct {
	ActorUserID string `json:"actor_user_id"`
	RuleKey     string `json:"rule_key"`
	ActionKey   string `json:"action_key,omitempty"`
}

// CopilotEvent describes an action the copilot logged on the
// operator's behalf.
type CopilotEvent struct {
	ActorUserID string `json:"actor_user_id"`
	RuleKey     string `json:"rule_key,omitempty"`
	ActionKey   string `json:"action_key"`
	Outcome     string `json:"outcome"`
}

// ValidAttribution reports whether s is empty or a recognized
// attribution outcome.
func ValidAttribution(s string) bool {
	switch s {
	case "", OutcomeImproved, OutcomeNeutral, OutcomeWorsened:
		return true
	}
	return false
}
