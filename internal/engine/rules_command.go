package engine

import (
	"fmt"
	"time"
)

// Command-center rule thresholds.
const (
	agingDealAfter    = 14 * 24 * time.Hour
	criticalDealAfter = 30 * 24 * time.Hour
)

// unscheduledDeals flags open deals that have nothing on the calendar.
type unscheduledDeals struct{}

func (unscheduledDeals) Name() string { return "cc_unscheduled_deals" }

func (unscheduledDeals) ActionKeys() []string {
	return []string{ActionKeyScheduleKickoff}
}

func (r unscheduledDeals) Evaluate(snap Snapshot) []Candidate {
	var out []Candidate
	for _, d := range snap.Deals {
		if !d.Open() || snap.PendingScheduleForDeal(d.ID) {
			continue
		}

		out = append(out, Candidate{
			Title:         fmt.Sprintf("Schedule next step for %s", d.Name),
			Priority:      PriorityMedium,
			Score:         50,
			SourceType:    SourceTypeRule,
			DedupeKey:     dedupeKey(r.Name(), ScopeCommandCenter, idPart("deal", d.ID)),
			CreatedByRule: r.Name(),
			EntityType:    "deal",
			EntityID:      d.ID,
			Payload: RiskPayload{
				Kind:   PayloadKindRisk,
				Reason: "unscheduled",
				DealID: d.ID,
			},
		})
	}
	return out
}

// agingDeals flags open deals stuck in the same stage too long.
// Priority escalates with age.
type agingDeals struct{}

func (agingDeals) Name() string { return "cc_aging_deals" }

func (agingDeals) ActionKeys() []string {
	return []string{ActionKeyScheduleKickoff}
}

func (r agingDeals) Evaluate(snap Snapshot) []Candidate {
	var out []Candidate
	for _, d := range snap.Deals {
		if !d.Open() {
			continue
		}
		age := snap.Now.Sub(d.StageChangedAt)
		if age < agingDealAfter {
			continue
		}

		days := int(age.Hours() / 24)
		priority := PriorityHigh
		score := 60.0
		if age >= criticalDealAfter {
			priority = PriorityCritical
			score = 80
		}

		out = append(out, Candidate{
			Title:         fmt.Sprintf("%s stuck in %s for %d days", d.Name, d.Stage, days),
			Priority:      priority,
			Score:         score,
			SourceType:    SourceTypeRule,
			DedupeKey:     dedupeKey(r.Name(), ScopeCommandCenter, idPart("deal", d.ID)),
			CreatedByRule: r.Name(),
			EntityType:    "deal",
			EntityID:      d.ID,
			Payload: RiskPayload{
				Kind:        PayloadKindRisk,
				Reason:      "aging",
				DealID:      d.ID,
				DaysInStage: days,
			},
		})
	}
	return out
}
