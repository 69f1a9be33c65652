// Package claim defines the proposal records producers assert during a run.
package claim

import (
	"fmt"
	"math"
)

// Evidence signals read by scoring.
const (
	EvidenceDomainDictionaryMatch = "domain_dictionary_match"
	EvidenceRuleMatch             = "rule_match"
)

// Evidence maps signal names to values. Only boolean true counts as a match.
type Evidence map[string]any

// Bool returns the signal as a boolean; absent or non-bool values are false.
func (e Evidence) Bool(key string) bool {
	v, ok := e[key].(bool)
	return ok && v
}

// Claim is one typed proposal. Claims are values: a producer builds them,
// the controller collects them, and nothing modifies them afterwards.
type Claim struct {
	Type       Type           `json:"type"`
	Producer   string         `json:"producer"`
	Value      any            `json:"value"`
	Confidence float64        `json:"confidence"`
	Evidence   Evidence       `json:"evidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Seq        int            `json:"seq"` // Collection order within the run, assigned by the controller
}

// New builds a claim. Evidence is copied so later changes to the caller's map
// cannot reach the claim.
func New(t Type, producer string, value any, confidence float64, evidence Evidence) Claim {
	var ev Evidence
	if len(evidence) > 0 {
		ev = make(Evidence, len(evidence))
		for k, v := range evidence {
			ev[k] = v
		}
	}
	return Claim{
		Type:       t,
		Producer:   producer,
		Value:      value,
		Confidence: confidence,
		Evidence:   ev,
	}
}

// WithMetadata returns a copy of c carrying the given annotation.
func (c Claim) WithMetadata(key string, value any) Claim {
	md := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		md[k] = v
	}
	md[key] = value
	c.Metadata = md
	return c
}

// Validate checks the claim's invariants.
func (c Claim) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("unknown claim type %q", c.Type)
	}
	if c.Producer == "" {
		return fmt.Errorf("claim producer cannot be empty")
	}
	if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("invalid confidence: must be within [0, 1], got %v", c.Confidence)
	}
	return nil
}

// Signals returns the two scoring signals of the claim.
func (c Claim) Signals() (dictionary, rule bool) {
	return c.Evidence.Bool(EvidenceDomainDictionaryMatch), c.Evidence.Bool(EvidenceRuleMatch)
}
