// Package arbiter resolves competing claims: it drops claims their producer
// is not authorized to assert, scores the rest, and picks one winner per type.
// Everything here is a pure function of its inputs.
package arbiter

import (
	"fmt"

	"github.com/dyluth/docket/internal/claim"
)

// Scoring weights. The sum is not capped; a claim carrying both signals can
// score above 100.
const (
	ConfidenceWeight     = 50.0
	DictionaryMatchBonus = 30.0
	RuleMatchBonus       = 20.0
)

// Violation reasons.
const (
	ReasonCapability       = "capability_violation"
	reasonUnknownClaimType = "unknown_claim_type"
)

// Capabilities answers whether a producer may assert a claim type.
// *governance.Config satisfies it.
type Capabilities interface {
	Allows(producer string, t claim.Type) bool
}

// Score computes confidence×50 + 30·dictionary + 20·rule.
func Score(c claim.Claim) float64 {
	score := c.Confidence * ConfidenceWeight
	dictionary, rule := c.Signals()
	if dictionary {
		score += DictionaryMatchBonus
	}
	if rule {
		score += RuleMatchBonus
	}
	return score
}

// Winner is the selected claim for one type.
type Winner struct {
	Type       claim.Type  `json:"type"`
	Field      string      `json:"field"`
	Claim      claim.Claim `json:"claim"`
	Score      float64     `json:"score"`
	Candidates int         `json:"candidates"` // Authorized claims of this type that competed
}

// Violation records a claim dropped by the authorization filter.
type Violation struct {
	Type     claim.Type `json:"type"`
	Producer string     `json:"producer"`
	Seq      int        `json:"seq"`
	Reason   string     `json:"reason"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: producer %q may not assert %q", v.Reason, v.Producer, v.Type)
}

// Decision is the outcome of one arbitration pass.
type Decision struct {
	Fields     map[string]any `json:"fields"`     // Output field -> winning value
	Winners    []Winner       `json:"winners"`    // Canonical type order
	Violations []Violation    `json:"violations"` // Input order
}

// Winner returns the winning record for t.
func (d *Decision) Winner(t claim.Type) (Winner, bool) {
	for _, w := range d.Winners {
		if w.Type == t {
			return w, true
		}
	}
	return Winner{}, false
}

// ViolatedTypes returns the set of types that had at least one claim dropped.
func (d *Decision) ViolatedTypes() map[claim.Type]bool {
	out := make(map[claim.Type]bool, len(d.Violations))
	for _, v := range d.Violations {
		out[v.Type] = true
	}
	return out
}

// Arbitrate runs the full pass: authorization filter, grouping, scoring, selection.
// Claims are considered in slice order, which is the order ties resolve in.
func Arbitrate(claims []claim.Claim, caps Capabilities) *Decision {
	d := &Decision{
		Fields:     make(map[string]any),
		Winners:    []Winner{},
		Violations: []Violation{},
	}

	authorized := make([]claim.Claim, 0, len(claims))
	for _, c := range claims {
		if !c.Type.Valid() {
			d.Violations = append(d.Violations, Violation{Type: c.Type, Producer: c.Producer, Seq: c.Seq, Reason: reasonUnknownClaimType})
			continue
		}
		if caps == nil || !caps.Allows(c.Producer, c.Type) {
			d.Violations = append(d.Violations, Violation{Type: c.Type, Producer: c.Producer, Seq: c.Seq, Reason: ReasonCapability})
			continue
		}
		authorized = append(authorized, c)
	}

	for _, t := range claim.Types() {
		best, count, ok := selectBest(authorized, t)
		if !ok {
			continue
		}
		field, _ := t.Field()
		d.Fields[field] = best.Value
		d.Winners = append(d.Winners, Winner{
			Type:       t,
			Field:      field,
			Claim:      best,
			Score:      Score(best),
			Candidates: count,
		})
	}

	return d
}

// Leading returns the claim that would win type t if every claim were
// authorized.
func Leading(claims []claim.Claim, t claim.Type) (claim.Claim, bool) {
	best, _, ok := selectBest(claims, t)
	return best, ok
}

// LeadingAuthorized returns the claim Arbitrate would select for t under caps:
// claims caps rejects never lead. A nil caps authorizes nothing.
func LeadingAuthorized(claims []claim.Claim, caps Capabilities, t claim.Type) (claim.Claim, bool) {
	if caps == nil {
		return claim.Claim{}, false
	}
	authorized := make([]claim.Claim, 0, len(claims))
	for _, c := range claims {
		if c.Type == t && caps.Allows(c.Producer, c.Type) {
			authorized = append(authorized, c)
		}
	}
	best, _, ok := selectBest(authorized, t)
	return best, ok
}

// selectBest picks the strictly highest score among claims of type t.
// An equal score never displaces an earlier claim.
func selectBest(claims []claim.Claim, t claim.Type) (claim.Claim, int, bool) {
	var (
		best      claim.Claim
		bestScore float64
		count     int
	)
	for _, c := range claims {
		if c.Type != t {
			continue
		}
		score := Score(c)
		if count == 0 || score > bestScore {
			best, bestScore = c, score
		}
		count++
	}
	return best, count, count > 0
}
