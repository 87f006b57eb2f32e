package database

// Next action statuses.
const (
	ActionStatusQueued    = "queued"
	ActionStatusDismissed = "dismissed"
	ActionStatusSnoozed   = "snoozed"
	ActionStatusExecuted  = "executed"
)

// Execution record statuses.
const (
	ExecutionStatusPending = "pending"
	ExecutionStatusSuccess = "success"
	ExecutionStatusFailed  = "failed"
)

// Outbox task statuses.
const (
	OutboxStatusQueued = "queued"
	OutboxStatusDone   = "done"
	OutboxStatusDead   = "dead"
)

// Weight kinds.
const (
	WeightKindRule   = "rule"
	WeightKindAction = "action"
)

// NextAction is a persisted recommendation. Identity is DedupeKey;
// repeated rule firings for the same situation land on the same row.
type NextAction struct {
	ID            int64
	Title         string
	Priority      string
	Score         float64
	SourceType    string
	Scope         string
	DedupeKey     string
	CreatedByRule string
	EntityType    *string
	EntityID      *int64
	PayloadJSON   string
	Status        string
	SnoozedUntil  *string
	CreatedAt     *string
	UpdatedAt     *string
}

// ActionExecution is one execution attempt against a next action.
type ActionExecution struct {
	ID           int64
	NextActionID int64
	ActionKey    string
	Status       string
	StartedAt    *string
	FinishedAt   *string
}

// MemoryEvent is one append-only row in the learning audit trail.
type MemoryEvent struct {
	ID          int64
	ActorUserID string
	SourceType  string
	RuleKey     *string
	ActionKey   *string
	Outcome     string
	MetaJSON    *string
	CreatedAt   *string
}

// WeightStats accumulates observation counters alongside a weight.
type WeightStats struct {
	Total        int    `json:"total"`
	SuccessCount int    `json:"successCount"`
	LastSeenAt   string `json:"lastSeenAt,omitempty"`
}

// LearnedWeight is a bounded per-actor score for a rule or action key.
type LearnedWeight struct {
	ActorUserID string
	Kind        string
	Key         string
	Weight      float64
	Stats       WeightStats
}

// OutboxTask is a queued memory-ingest task.
type OutboxTask struct {
	ID            int64
	Kind          string
	PayloadJSON   string
	Status        string
	Attempts      int
	NextAttemptAt string
	LastError     *string
	CreatedAt     *string
}

// Lead is a prospective client in the intake funnel.
type Lead struct {
	ID        int64
	Name      string
	Status    string
	Source    *string
	CreatedAt *string
}

// Deal is an opportunity moving through pipeline stages.
type Deal struct {
	ID             int64
	LeadID         *int64
	Name           string
	Stage          string
	StageChangedAt *string
	CreatedAt      *string
}

// Schedule is a planned touchpoint (follow-up, outreach, kickoff).
type Schedule struct {
	ID        int64
	DealID    *int64
	LeadID    *int64
	Kind      string
	Status    string
	DueAt     string
	CreatedAt *string
}

// Proposal is a sent or draft offer attached to a deal.
type Proposal struct {
	ID        int64
	DealID    int64
	Status    string
	SentAt    *string
	CreatedAt *string
}

// Stats contains aggregate database statistics.
type Stats struct {
	Leads          int
	Deals          int
	QueuedActions  int
	TotalActions   int
	Executions     int
	MemoryEvents   int
	LearnedWeights int
	OutboxQueued   int
	OutboxDead     int
}
