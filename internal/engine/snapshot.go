package engine

import "time"

// Snapshot is a read-only view of the business state as of Now.
// The snapshot builder assembles it from storage; the evaluator never
// reads anything outside of it, including the wall clock.
type Snapshot struct {
	Now       time.Time
	Deals     []Deal
	Leads     []Lead
	Schedules []Schedule
	Proposals []Proposal
}

// Deal stages.
const (
	DealStageNew          = "new"
	DealStageContacted    = "contacted"
	DealStageReplied      = "replied"
	DealStageProposalSent = "proposal_sent"
	DealStageWon          = "won"
	DealStageLost         = "lost"
)

// Lead statuses.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusLost      = "lost"
)

// Schedule kinds and statuses.
const (
	ScheduleKindFollowUp = "followup"
	ScheduleKindOutreach = "outreach"
	ScheduleKindKickoff  = "kickoff"

	ScheduleStatusPending  = "pending"
	ScheduleStatusDone     = "done"
	ScheduleStatusCanceled = "canceled"
)

// Proposal statuses.
const (
	ProposalStatusDraft    = "draft"
	ProposalStatusSent     = "sent"
	ProposalStatusAccepted = "accepted"
	ProposalStatusRejected = "rejected"
)

type Deal struct {
	ID             int64
	Name           string
	Stage          string
	LeadID         int64
	StageChangedAt time.Time
}

// Open reports whether the deal is still in play.
func (d Deal) Open() bool {
	return d.Stage != DealStageWon && d.Stage != DealStageLost
}

type Lead struct {
	ID        int64
	Name      string
	Status    string
	CreatedAt time.Time
}

type Schedule struct {
	ID     int64
	DealID int64
	LeadID int64
	Kind   string
	Status string
	DueAt  time.Time
}

type Proposal struct {
	ID     int64
	DealID int64
	Status string
	SentAt time.Time
}

// DealByID looks up a deal in the snapshot.
func (s Snapshot) DealByID(id int64) (Deal, bool) {
	for _, d := range s.Deals {
		if d.ID == id {
			return d, true
		}
	}
	return Deal{}, false
}

// LeadByID looks up a lead in the snapshot.
func (s Snapshot) LeadByID(id int64) (Lead, bool) {
	for _, l := range s.Leads {
		if l.ID == id {
			return l, true
		}
	}
	return Lead{}, false
}

// PendingScheduleForDeal reports whether a deal has any pending schedule.
func (s Snapshot) PendingScheduleForDeal(dealID int64) bool {
	for _, sch := range s.Schedules {
		if sch.DealID == dealID && sch.Status == ScheduleStatusPending {
			return true
		}
	}
	return false
}
