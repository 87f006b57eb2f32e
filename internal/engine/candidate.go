package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Priority buckets for candidate actions.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// SourceTypeRule marks candidates produced by rule evaluation.
const SourceTypeRule = "nba_rule"

// Candidate is an in-memory recommendation emitted by a rule. Identity
// is DedupeKey: the same real-world situation must always produce the
// same key, so repeated evaluation collapses to one persisted action.
type Candidate struct {
	Title         string
	Priority      Priority
	Score         float64
	SourceType    string
	DedupeKey     string
	CreatedByRule string
	EntityType    string
	EntityID      int64
	Payload       Payload
}

// dedupeKey builds the stable identity string for a rule firing:
// rule name, scope, then any per-target discriminators.
func dedupeKey(rule string, scope Scope, discriminators ...string) string {
	parts := append([]string{rule, string(scope)}, discriminators...)
	return strings.Join(parts, ":")
}

func idPart(prefix string, id int64) string {
	return prefix + "-" + strconv.FormatInt(id, 10)
}

// PayloadKind discriminates the payload variants.
type PayloadKind string

const (
	PayloadKindGrowth PayloadKind = "growth"
	PayloadKindRisk   PayloadKind = "risk"
)

// Payload is the closed set of action payloads. Executors type-switch
// on the concrete variant instead of digging through untyped maps.
type Payload interface {
	payloadKind() PayloadKind
}

// GrowthPayload carries the targets of growth-pipeline actions.
type GrowthPayload struct {
	Kind       PayloadKind `json:"kind"`
	Bucket     string      `json:"bucket,omitempty"`
	DealID     int64       `json:"deal_id,omitempty"`
	LeadID     int64       `json:"lead_id,omitempty"`
	ScheduleID int64       `json:"schedule_id,omitempty"`
	ProposalID int64       `json:"proposal_id,omitempty"`

	// IdempotencyToken is stamped by the execution runner before the
	// payload reaches an executor; it is not part of rule output.
	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

func (GrowthPayload) payloadKind() PayloadKind { return PayloadKindGrowth }

// RiskPayload carries the targets of delivery-risk actions.
type RiskPayload struct {
	Kind        PayloadKind `json:"kind"`
	Reason      string      `json:"reason"`
	DealID      int64       `json:"deal_id"`
	DaysInStage int         `json:"days_in_stage,omitempty"`

	IdempotencyToken string `json:"idempotency_token,omitempty"`
}

func (RiskPayload) payloadKind() PayloadKind { return PayloadKindRisk }

// EncodePayload serializes a payload for storage or transport.
func EncodePayload(p Payload) (string, error) {
	if p == nil {
		return "{}", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload deserializes a stored payload into its concrete variant.
func DecodePayload(data string) (Payload, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}

	var probe struct {
		Kind PayloadKind `json:"kind"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err != nil {
		return nil, fmt.Errorf("decoding payload: %w", err)
	}

	switch probe.Kind {
	case PayloadKindGrowth:
		var p GrowthPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decoding growth payload: %w", err)
		}
		return p, nil
	case PayloadKindRisk:
		var p RiskPayload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("decoding risk payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown payload kind %q", probe.Kind)
	}
}
