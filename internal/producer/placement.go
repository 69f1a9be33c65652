package producer

import (
	"context"
	"fmt"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/validate"
	"github.com/dyluth/docket/pkg/schedule"
)

// Built-in producer names. They double as the keys of the governance table.
const (
	PlacementProposerName   = "TaskPlacementProposer"
	ReplacementProposerName = "AutoReplacementProposer"
	TemplateManagerName     = "TaskTemplateManager"
	SlotManagerName         = "TimeSlotManager"
	CompletionHandlerName   = "TaskCompletionHandler"
	DisplayHandlerName      = "DisplayHandler"
)

// Confidence levels used by the built-in producers.
const (
	confidenceCertain   = 1.0
	confidenceRequested = 0.9
	confidenceDefault   = 0.5
)

// PlacementProposer turns a place command into a task instance and a target slot.
// It proposes the slot the command names, or the earliest slot when none is
// named; it never searches for a better one.
type PlacementProposer struct {
	store validate.Store
}

// NewPlacementProposer creates a placement proposer reading from store.
func NewPlacementProposer(store validate.Store) *PlacementProposer {
	return &PlacementProposer{store: store}
}

func (p *PlacementProposer) Name() string { return PlacementProposerName }

func (p *PlacementProposer) Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error) {
	if cmd.Action != command.ActionPlace {
		return nil, nil
	}

	placement, err := validate.ReadPlacement(ctx, p.store, cmd)
	if err != nil {
		return nil, err
	}

	instance := claim.TaskInstance{Name: placement.TaskName, DurationMinutes: placement.DurationMinutes}
	instanceEvidence := claim.Evidence{claim.EvidenceRuleMatch: true}
	if placement.Template != nil {
		instance.TemplateID = placement.Template.ID
		instanceEvidence[claim.EvidenceDomainDictionaryMatch] = true
	}

	claims := []claim.Claim{
		claim.New(claim.TypeTaskInstance, PlacementProposerName, instance, confidenceCertain, instanceEvidence),
	}

	var (
		slotID     string
		confidence float64
		reason     string
		evidence   = claim.Evidence{}
	)

	if placement.SlotID != "" {
		slotID, confidence, reason = placement.SlotID, confidenceRequested, "requested"
		evidence[claim.EvidenceRuleMatch] = true

		_, err := p.store.GetSlot(ctx, slotID)
		switch {
		case err == nil:
			evidence[claim.EvidenceDomainDictionaryMatch] = true
		case !schedule.IsNotFound(err):
			return nil, fmt.Errorf("failed to read slot: %w", err)
		}
	} else {
		slot, err := validate.DefaultSlot(ctx, p.store)
		if err != nil {
			return nil, fmt.Errorf("failed to list slots: %w", err)
		}
		if slot == nil {
			return claims, nil
		}
		slotID, confidence, reason = slot.ID, confidenceDefault, "earliest slot"
		evidence[claim.EvidenceDomainDictionaryMatch] = true
	}

	proposal := claim.PlacementProposal{
		TaskName:        placement.TaskName,
		SlotID:          slotID,
		DurationMinutes: placement.DurationMinutes,
		Reason:          reason,
	}

	return append(claims,
		claim.New(claim.TypeTargetSlotID, PlacementProposerName, slotID, confidence, evidence),
		claim.New(claim.TypePlacementProposal, PlacementProposerName, proposal, confidence, evidence),
	), nil
}
