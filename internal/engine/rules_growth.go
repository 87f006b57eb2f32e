package engine

import (
	"fmt"
	"time"
)

// Growth rule thresholds.
const (
	staleProposalAfter = 7 * 24 * time.Hour
	idleLeadAfter      = 5 * 24 * time.Hour
)

// overdueFollowUps emits one candidate per follow-up schedule that is
// due today or already overdue. It fires again on every evaluation for
// as long as the schedule stays overdue; collapsing repeats is the
// reconciler's job, not this rule's.
type overdueFollowUps struct{}

func (overdueFollowUps) Name() string { return "growth_overdue_followups" }

func (overdueFollowUps) ActionKeys() []string {
	return []string{ActionKeyScheduleFollowUp3d, ActionKeyMarkStageReplied}
}

func (r overdueFollowUps) Evaluate(snap Snapshot) []Candidate {
	var out []Candidate
	today := startOfDay(snap.Now)

	for _, sch := range snap.Schedules {
		if sch.Kind != ScheduleKindFollowUp || sch.Status != ScheduleStatusPending {
			continue
		}

		dueDay := startOfDay(sch.DueAt)
		if dueDay.After(today) {
			continue
		}

		bucket := "due_today"
		priority := PriorityMedium
		score := 55.0
		if dueDay.Before(today) {
			bucket = "overdue"
			priority = PriorityHigh
			overdueDays := int(today.Sub(dueDay).Hours() / 24)
			score = 70 + float64(overdueDays)*5
			if score > 90 {
				score = 90
			}
		}

		out = append(out, Candidate{
			Title:         fmt.Sprintf("Follow up with %s", followUpTarget(snap, sch)),
			Priority:      priority,
			Score:         score,
			SourceType:    SourceTypeRule,
			DedupeKey:     dedupeKey(r.Name(), ScopeFounderGrowth, idPart("schedule", sch.ID)),
			CreatedByRule: r.Name(),
			EntityType:    "schedule",
			EntityID:      sch.ID,
			Payload: GrowthPayload{
				Kind:       PayloadKindGrowth,
				Bucket:     bucket,
				DealID:     sch.DealID,
				LeadID:     sch.LeadID,
				ScheduleID: sch.ID,
			},
		})
	}
	return out
}

// noOutreachSent fires once when there are leads to work but no
// outreach has ever been scheduled and every lead is still untouched.
type noOutreachSent struct{}

func (noOutreachSent) Name() string { return "growth_no_outreach_sent" }

func (noOutreachSent) ActionKeys() []string {
	return []string{ActionKeyScheduleFollowUp3d}
}

func (r noOutreachSent) Evaluate(snap Snapshot) []Candidate {
	if len(snap.Leads) == 0 {
		return nil
	}
	for _, sch := range snap.Schedules {
		if sch.Kind == ScheduleKindOutreach {
			return nil
		}
	}
	for _, l := range snap.Leads {
		if l.Status != LeadStatusNew {
			return nil
		}
	}

	return []Candidate{{
		Title:         "No outreach sent to any lead",
		Priority:      PriorityMedium,
		Score:         50,
		SourceType:    SourceTypeRule,
		DedupeKey:     dedupeKey(r.Name(), ScopeFounderGrowth),
		CreatedByRule: r.Name(),
		EntityType:    "lead",
		Payload: GrowthPayload{
			Kind:   PayloadKindGrowth,
			Bucket: "no_outreach",
		},
	}}
}

// staleProposals emits one candidate per sent proposal with no reply
// past the staleness threshold.
type staleProposals struct{}

func (staleProposals) Name() string { return "growth_stale_proposals" }

func (staleProposals) ActionKeys() []string {
	return []string{ActionKeyMarkStageReplied, ActionKeyScheduleFollowUp3d}
}

func (r staleProposals) Evaluate(snap Snapshot) []Candidate {
	var out []Candidate
	for _, p := range snap.Proposals {
		if p.Status != ProposalStatusSent {
			continue
		}
		if snap.Now.Sub(p.SentAt) < staleProposalAfter {
			continue
		}

		title := "Chase a stale proposal"
		if deal, ok := snap.DealByID(p.DealID); ok {
			title = fmt.Sprintf("Chase proposal for %s", deal.Name)
		}

		out = append(out, Candidate{
			Title:         title,
			Priority:      PriorityHigh,
			Score:         65,
			SourceType:    SourceTypeRule,
			DedupeKey:     dedupeKey(r.Name(), ScopeFounderGrowth, idPart("proposal", p.ID)),
			CreatedByRule: r.Name(),
			EntityType:    "proposal",
			EntityID:      p.ID,
			Payload: GrowthPayload{
				Kind:       PayloadKindGrowth,
				Bucket:     "stale",
				DealID:     p.DealID,
				ProposalID: p.ID,
			},
		})
	}
	return out
}

// idleNewLeads emits one candidate per lead sitting untouched in "new"
// past the idle threshold.
type idleNewLeads struct{}

func (idleNewLeads) Name() string { return "growth_idle_new_leads" }

func (idleNewLeads) ActionKeys() []string {
	return []string{ActionKeyScheduleFollowUp3d}
}

func (r idleNewLeads) Evaluate(snap Snapshot) []Candidate {
	var out []Candidate
	for _, l := range snap.Leads {
		if l.Status != LeadStatusNew {
			continue
		}
		if snap.Now.Sub(l.CreatedAt) < idleLeadAfter {
			continue
		}

		out = append(out, Candidate{
			Title:         fmt.Sprintf("Reach out to idle lead %s", l.Name),
			Priority:      PriorityMedium,
			Score:         45,
			SourceType:    SourceTypeRule,
			DedupeKey:     dedupeKey(r.Name(), ScopeFounderGrowth, idPart("lead", l.ID)),
			CreatedByRule: r.Name(),
			EntityType:    "lead",
			EntityID:      l.ID,
			Payload: GrowthPayload{
				Kind:   PayloadKindGrowth,
				Bucket: "idle",
				LeadID: l.ID,
			},
		})
	}
	return out
}

func followUpTarget(snap Snapshot, sch Schedule) string {
	if deal, ok := snap.DealByID(sch.DealID); ok {
		return deal.Name
	}
	if lead, ok := snap.LeadByID(sch.LeadID); ok {
		return lead.Name
	}
	return "contact"
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
