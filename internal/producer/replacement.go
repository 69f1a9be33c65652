package producer

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/validate"
)

// AutoReplacementProposer offers the earliest slot with room when the
// proposed slot cannot take the task.
type AutoReplacementProposer struct {
	store validate.Store
}

// NewAutoReplacementProposer creates a replacer reading from store.
func NewAutoReplacementProposer(store validate.Store) *AutoReplacementProposer {
	return &AutoReplacementProposer{store: store}
}

func (r *AutoReplacementProposer) Name() string { return ReplacementProposerName }

// Propose reads the failed capacity outcome for the slot and duration that
// did not fit, then proposes every other slot that does, earliest first.
// The earliest becomes a certain target_slot_id and can_fit claim.
func (r *AutoReplacementProposer) Propose(ctx context.Context, cmd *command.Command, results validate.Results) ([]claim.Claim, error) {
	if cmd.Action != command.ActionPlace {
		return nil, nil
	}

	var (
		failedSlot string
		required   int
	)
	for _, o := range results.For(validate.ConcernCapacity) {
		if o.Passed {
			continue
		}
		failedSlot, _ = o.Details["slot_id"].(string)
		required, _ = o.Details["required"].(int)
		break
	}

	if required <= 0 {
		placement, err := validate.ReadPlacement(ctx, r.store, cmd)
		if err != nil {
			return nil, nil
		}
		required = placement.DurationMinutes
	}

	slots, err := r.store.ListSlots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list slots: %w", err)
	}

	var alternatives []string
	for _, s := range slots {
		if s.ID == failedSlot || !s.CanFit(required) {
			continue
		}
		alternatives = append(alternatives, s.ID)
	}
	if len(alternatives) == 0 {
		return nil, nil
	}

	best := alternatives[0]
	certain := claim.Evidence{
		claim.EvidenceDomainDictionaryMatch: true,
		claim.EvidenceRuleMatch:             true,
	}
	proposal := claim.ReplacementProposal{
		FromSlotID: failedSlot,
		ToSlotID:   best,
		Reason:     fmt.Sprintf("needs %d minutes", required),
	}

	return []claim.Claim{
		claim.New(claim.TypeAlternativeSlots, ReplacementProposerName, alternatives, confidenceCertain, claim.Evidence{claim.EvidenceRuleMatch: true}),
		claim.New(claim.TypeReplacementProposal, ReplacementProposerName, proposal, confidenceCertain, certain),
		claim.New(claim.TypeTargetSlotID, ReplacementProposerName, best, confidenceCertain, certain),
		claim.New(claim.TypeCanFit, ReplacementProposerName, true, confidenceCertain, certain),
	}, nil
}
