package arbiter

import (
	"encoding/json"
	"testing"

	"github.com/dyluth/docket/internal/claim"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// table authorizes a fixed producer -> types mapping.
type table map[string][]claim.Type

func (tb table) Allows(producer string, t claim.Type) bool {
	for _, allowed := range tb[producer] {
		if allowed == t {
			return true
		}
	}
	return false
}

func seq(claims ...claim.Claim) []claim.Claim {
	for i := range claims {
		claims[i].Seq = i
	}
	return claims
}

func TestScore(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		evidence   claim.Evidence
		want       float64
	}{
		{"no evidence", 0.5, nil, 25},
		{"rule match", 0.9, claim.Evidence{claim.EvidenceRuleMatch: true}, 65},
		{"dictionary match", 0.5, claim.Evidence{claim.EvidenceDomainDictionaryMatch: true}, 55},
		{"both signals at full confidence", 1.0, claim.Evidence{claim.EvidenceDomainDictionaryMatch: true, claim.EvidenceRuleMatch: true}, 100},
		{"both signals, uncapped", 0.9, claim.Evidence{claim.EvidenceDomainDictionaryMatch: true, claim.EvidenceRuleMatch: true}, 95},
		{"non-bool signal ignored", 1.0, claim.Evidence{claim.EvidenceRuleMatch: "true"}, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := claim.New(claim.TypeTargetSlotID, "A", "s", tt.confidence, tt.evidence)
			assert.InDelta(t, tt.want, Score(c), 1e-9)
		})
	}
}

func TestScore_MonotoneInConfidence(t *testing.T) {
	evidences := []claim.Evidence{
		nil,
		{claim.EvidenceRuleMatch: true},
		{claim.EvidenceDomainDictionaryMatch: true},
		{claim.EvidenceDomainDictionaryMatch: true, claim.EvidenceRuleMatch: true},
	}
	for _, ev := range evidences {
		prev := -1.0
		for i := 0; i <= 100; i++ {
			s := Score(claim.New(claim.TypeCanFit, "A", true, float64(i)/100, ev))
			assert.GreaterOrEqual(t, s, prev)
			prev = s
		}
	}
}

func TestArbitrate_HigherScoreWins(t *testing.T) {
	caps := table{"A": {claim.TypeTargetSlotID}, "B": {claim.TypeTargetSlotID}}
	claims := seq(
		claim.New(claim.TypeTargetSlotID, "B", "slot-b", 0.5, claim.Evidence{claim.EvidenceDomainDictionaryMatch: true}),
		claim.New(claim.TypeTargetSlotID, "A", "slot-a", 0.9, claim.Evidence{claim.EvidenceRuleMatch: true}),
	)

	d := Arbitrate(claims, caps)

	assert.Equal(t, "slot-a", d.Fields["target_slot_id"])
	w, ok := d.Winner(claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, "A", w.Claim.Producer)
	assert.InDelta(t, 65, w.Score, 1e-9)
	assert.Equal(t, 2, w.Candidates)
	assert.Empty(t, d.Violations)
}

func TestArbitrate_TieGoesToFirstInserted(t *testing.T) {
	caps := table{"A": {claim.TypeTargetSlotID}, "B": {claim.TypeTargetSlotID}}

	d := Arbitrate(seq(
		claim.New(claim.TypeTargetSlotID, "A", "first", 0.6, nil),
		claim.New(claim.TypeTargetSlotID, "B", "second", 0.6, nil),
	), caps)
	assert.Equal(t, "first", d.Fields["target_slot_id"])

	d = Arbitrate(seq(
		claim.New(claim.TypeTargetSlotID, "B", "second", 0.6, nil),
		claim.New(claim.TypeTargetSlotID, "A", "first", 0.6, nil),
	), caps)
	assert.Equal(t, "second", d.Fields["target_slot_id"])
}

func TestArbitrate_UnauthorizedNeverWins(t *testing.T) {
	caps := table{"Trusted": {claim.TypeTargetSlotID}}
	claims := seq(
		claim.New(claim.TypeTargetSlotID, "Trusted", "low", 0.1, nil),
		claim.New(claim.TypeTargetSlotID, "Rogue", "high", 1.0, claim.Evidence{
			claim.EvidenceDomainDictionaryMatch: true,
			claim.EvidenceRuleMatch:             true,
		}),
	)

	d := Arbitrate(claims, caps)

	assert.Equal(t, "low", d.Fields["target_slot_id"])
	require.Len(t, d.Violations, 1)
	assert.Equal(t, "Rogue", d.Violations[0].Producer)
	assert.Equal(t, ReasonCapability, d.Violations[0].Reason)
	assert.Equal(t, 1, d.Violations[0].Seq)
}

func TestArbitrate_OnlyClaimUnauthorizedLeavesFieldAbsent(t *testing.T) {
	caps := table{"CapacityValidator": {claim.TypeCanFit}}
	d := Arbitrate(seq(claim.New(claim.TypeCanFit, "TaskPlacementProposer", true, 1.0, nil)), caps)

	_, present := d.Fields["can_fit"]
	assert.False(t, present)
	assert.Empty(t, d.Winners)
	assert.True(t, d.ViolatedTypes()[claim.TypeCanFit])
}

func TestArbitrate_UnknownTypeIsViolation(t *testing.T) {
	caps := table{"A": {claim.TypeCanFit}}
	d := Arbitrate(seq(claim.New("mystery", "A", 1, 1.0, nil)), caps)

	assert.Empty(t, d.Fields)
	require.Len(t, d.Violations, 1)
	assert.Equal(t, "unknown_claim_type", d.Violations[0].Reason)
}

func TestArbitrate_NilCapabilitiesDropsEverything(t *testing.T) {
	d := Arbitrate(seq(claim.New(claim.TypeCanFit, "A", true, 1.0, nil)), nil)
	assert.Empty(t, d.Fields)
	assert.Len(t, d.Violations, 1)
}

func TestArbitrate_AtMostOneValuePerType(t *testing.T) {
	caps := table{
		"A": {claim.TypeTargetSlotID, claim.TypeCanFit, claim.TypeTaskInstance},
		"B": {claim.TypeTargetSlotID, claim.TypeCanFit},
	}
	var claims []claim.Claim
	for i := 0; i < 20; i++ {
		producer := "A"
		if i%2 == 1 {
			producer = "B"
		}
		types := []claim.Type{claim.TypeTargetSlotID, claim.TypeCanFit, claim.TypeTaskInstance}
		claims = append(claims, claim.New(types[i%3], producer, i, float64(i%7)/7, nil))
	}

	d := Arbitrate(seq(claims...), caps)

	seen := make(map[claim.Type]bool)
	for _, w := range d.Winners {
		assert.False(t, seen[w.Type], "type %s selected twice", w.Type)
		seen[w.Type] = true
	}
	assert.Len(t, d.Fields, len(d.Winners))
}

func TestArbitrate_WinnersInCanonicalOrder(t *testing.T) {
	caps := table{"A": claim.Types()}
	d := Arbitrate(seq(
		claim.New(claim.TypeCompletionStatus, "A", 1, 1, nil),
		claim.New(claim.TypeCanFit, "A", 2, 1, nil),
		claim.New(claim.TypeTaskInstance, "A", 3, 1, nil),
	), caps)

	require.Len(t, d.Winners, 3)
	assert.Equal(t, claim.TypeTaskInstance, d.Winners[0].Type)
	assert.Equal(t, claim.TypeCanFit, d.Winners[1].Type)
	assert.Equal(t, claim.TypeCompletionStatus, d.Winners[2].Type)
}

func TestArbitrate_Deterministic(t *testing.T) {
	caps := table{"A": claim.Types(), "B": {claim.TypeTargetSlotID}}
	claims := seq(
		claim.New(claim.TypeTargetSlotID, "A", "x", 0.7, nil),
		claim.New(claim.TypeTargetSlotID, "B", "y", 0.7, nil),
		claim.New(claim.TypeCanFit, "A", true, 0.3, claim.Evidence{claim.EvidenceRuleMatch: true}),
		claim.New(claim.TypeCanFit, "B", false, 1.0, nil),
		claim.New(claim.TypeRemainingCapacity, "A", 15, 1.0, nil),
	)

	first, err := json.Marshal(Arbitrate(claims, caps))
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := json.Marshal(Arbitrate(claims, caps))
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
}

func TestLeading_IgnoresAuthorization(t *testing.T) {
	claims := seq(
		claim.New(claim.TypeTargetSlotID, "A", "a", 0.5, nil),
		claim.New(claim.TypeTargetSlotID, "Rogue", "r", 0.9, nil),
	)

	best, ok := Leading(claims, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, "r", best.Value)

	_, ok = Leading(claims, claim.TypeCanFit)
	assert.False(t, ok)
}

func TestLeadingAuthorized_MatchesArbitrate(t *testing.T) {
	caps := table{"A": {claim.TypeTargetSlotID}, "B": {claim.TypeTargetSlotID}}
	claims := seq(
		claim.New(claim.TypeTargetSlotID, "Rogue", "r", 1.0, claim.Evidence{
			claim.EvidenceDomainDictionaryMatch: true,
			claim.EvidenceRuleMatch:             true,
		}),
		claim.New(claim.TypeTargetSlotID, "A", "a", 0.5, nil),
		claim.New(claim.TypeTargetSlotID, "B", "b", 0.5, nil),
	)

	best, ok := LeadingAuthorized(claims, caps, claim.TypeTargetSlotID)
	require.True(t, ok)
	assert.Equal(t, "a", best.Value)
	assert.Equal(t, Arbitrate(claims, caps).Fields["target_slot_id"], best.Value)

	_, ok = LeadingAuthorized(claims[:1], caps, claim.TypeTargetSlotID)
	assert.False(t, ok)

	_, ok = LeadingAuthorized(claims, nil, claim.TypeTargetSlotID)
	assert.False(t, ok)
}
