package execute

import (
	"fmt"
	"time"

	"github.com/snevemoney/nextbest/internal/database"
	"github.com/snevemoney/nextbest/internal/engine"
)

const followUpLeadTime = 72 * time.Hour
const kickoffLeadTime = 24 * time.Hour

// followUpScheduler creates a follow-up touchpoint three days out and
// closes the overdue one it replaces.
type followUpScheduler struct{}

func (followUpScheduler) Key() string { return engine.ActionKeyScheduleFollowUp3d }

func (followUpScheduler) Execute(db *database.DB, payload engine.Payload) (string, error) {
	p, ok := payload.(engine.GrowthPayload)
	if !ok {
		return "", fmt.Errorf("expected growth payload, got %T", payload)
	}

	dealID, leadID := p.DealID, p.LeadID
	if p.ScheduleID != 0 {
		prev, err := db.GetSchedule(p.ScheduleID)
		if err != nil {
			return "", fmt.Errorf("loading schedule %d: %w", p.ScheduleID, err)
		}
		if prev != nil {
			if dealID == 0 && prev.DealID != nil {
				dealID = *prev.DealID
			}
			if leadID == 0 && prev.LeadID != nil {
				leadID = *prev.LeadID
			}
		}
	}
	if dealID == 0 && leadID == 0 {
		return "", fmt.Errorf("payload names neither deal nor lead")
	}

	dueAt := database.FormatTime(time.Now().Add(followUpLeadTime))
	if _, err := db.InsertSchedule(dealID, leadID, engine.ScheduleKindFollowUp, dueAt); err != nil {
		return "", fmt.Errorf("creating follow-up: %w", err)
	}
	if p.ScheduleID != 0 {
		if err := db.CompleteSchedule(p.ScheduleID); err != nil {
			return "", fmt.Errorf("closing schedule %d: %w", p.ScheduleID, err)
		}
	}
	return fmt.Sprintf("follow-up scheduled for %s", dueAt), nil
}

// stageReplied advances a deal to the replied stage.
type stageReplied struct{}

func (stageReplied) Key() string { return engine.ActionKeyMarkStageReplied }

func (stageReplied) Execute(db *database.DB, payload engine.Payload) (string, error) {
	p, ok := payload.(engine.GrowthPayload)
	if !ok {
		return "", fmt.Errorf("expected growth payload, got %T", payload)
	}
	if p.DealID == 0 {
		return "", fmt.Errorf("payload names no deal")
	}
	if err := db.UpdateDealStage(p.DealID, engine.DealStageReplied); err != nil {
		return "", fmt.Errorf("advancing deal %d: %w", p.DealID, err)
	}
	return fmt.Sprintf("deal %d marked replied", p.DealID), nil
}

// kickoffScheduler books a kickoff touchpoint for a deal flagged by the
// command-center rules.
type kickoffScheduler struct{}

func (kickoffScheduler) Key() string { return engine.ActionKeyScheduleKickoff }

func (kickoffScheduler) Execute(db *database.DB, payload engine.Payload) (string, error) {
	p, ok := payload.(engine.RiskPayload)
	if !ok {
		return "", fmt.Errorf("expected risk payload, got %T", payload)
	}
	if p.DealID == 0 {
		return "", fmt.Errorf("payload names no deal")
	}
	dueAt := database.FormatTime(time.Now().Add(kickoffLeadTime))
	if _, err := db.InsertSchedule(p.DealID, 0, engine.ScheduleKindKickoff, dueAt); err != nil {
		return "", fmt.Errorf("creating kickoff: %w", err)
	}
	return fmt.Sprintf("kickoff scheduled for %s", dueAt), nil
}
