package engine

import "fmt"

// Action keys executors register under. Each rule declares which keys
// may legally be executed against the actions it creates.
const (
	ActionKeyScheduleFollowUp3d = "growth_schedule_followup_3d"
	ActionKeyMarkStageReplied   = "growth_mark_stage_replied"
	ActionKeyScheduleKickoff    = "cc_schedule_kickoff"
)

// Scope selects which rules run and against which entity context.
type Scope string

const (
	ScopeFounderGrowth Scope = "founder_growth"
	ScopeCommandCenter Scope = "command_center"
)

// Rule is a single independent recommendation rule. Evaluate must be
// pure: no I/O, no clock reads beyond snap.Now.
type Rule interface {
	Name() string
	ActionKeys() []string
	Evaluate(snap Snapshot) []Candidate
}

// scopeRules holds the explicit ordered rule list per scope.
var scopeRules = map[Scope][]Rule{
	ScopeFounderGrowth: {
		overdueFollowUps{},
		noOutreachSent{},
		staleProposals{},
		idleNewLeads{},
	},
	ScopeCommandCenter: {
		unscheduledDeals{},
		agingDeals{},
	},
}

// RulesForScope returns the ordered rules registered for a scope.
func RulesForScope(scope Scope) []Rule {
	return scopeRules[scope]
}

// RuleByName finds a rule across all scopes.
func RuleByName(name string) Rule {
	for _, rules := range scopeRules {
		for _, r := range rules {
			if r.Name() == name {
				return r
			}
		}
	}
	return nil
}

// AllRuleNames returns every registered rule name. Used by the founder
// review miner to know which keys to look for.
func AllRuleNames() []string {
	var names []string
	seen := map[string]bool{}
	for _, scope := range []Scope{ScopeFounderGrowth, ScopeCommandCenter} {
		for _, r := range scopeRules[scope] {
			if !seen[r.Name()] {
				names = append(names, r.Name())
				seen[r.Name()] = true
			}
		}
	}
	return names
}

// LegalActionKey reports whether actionKey is declared by the rule that
// created an action. Executing any other key against it is rejected.
func LegalActionKey(ruleName, actionKey string) bool {
	r := RuleByName(ruleName)
	if r == nil {
		return false
	}
	for _, k := range r.ActionKeys() {
		if k == actionKey {
			return true
		}
	}
	return false
}

// ScopeForEntity maps a dashboard entity type onto the scope whose
// rules cover it.
func ScopeForEntity(entityType string) (Scope, error) {
	switch entityType {
	case "lead", "proposal", "growth":
		return ScopeFounderGrowth, nil
	case "deal", "project", "command_center":
		return ScopeCommandCenter, nil
	default:
		return "", fmt.Errorf("unknown entity type %q", entityType)
	}
}

// WeightReader exposes learned weights to scoring. Implementations are
// actor-scoped; a nil reader leaves scores untouched.
type WeightReader interface {
	Weight(kind, key string) float64
}

// weightBiasFactor converts a learned weight in [-10,10] into a score
// nudge. Kept small so weights tilt ordering without overriding
// rule-local scoring.
const weightBiasFactor = 0.1

// Evaluator runs the rules for a scope over a snapshot.
type Evaluator struct {
	weights WeightReader
}

// NewEvaluator creates an evaluator. weights may be nil, in which case
// evaluation is identical to running against an empty weight store.
func NewEvaluator(weights WeightReader) *Evaluator {
	return &Evaluator{weights: weights}
}

// Produce evaluates every rule registered for scope and concatenates
// the candidates. Deterministic for a fixed snapshot: same rules, same
// order, same dedupe keys.
func (e *Evaluator) Produce(snap Snapshot, scope Scope) []Candidate {
	var out []Candidate
	for _, r := range RulesForScope(scope) {
		for _, c := range r.Evaluate(snap) {
			if e.weights != nil {
				c.Score += e.weights.Weight("rule", c.CreatedByRule) * weightBiasFactor
			}
			out = append(out, c)
		}
	}
	return out
}
