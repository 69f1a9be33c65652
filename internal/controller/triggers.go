package controller

import (
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/producer"
	"github.com/dyluth/docket/internal/validate"
)

// DefaultTriggers returns the action → producer table. Sequence order is
// invocation order, which is also tie-break order during arbitration.
func DefaultTriggers() map[string][]string {
	return map[string][]string{
		command.ActionPlace: {
			producer.PlacementProposerName,
			validate.CapacityValidatorName,
			validate.ConsistencyValidatorName,
		},
		command.ActionCreateTemplate: {producer.TemplateManagerName},
		command.ActionCreateSlot:     {producer.SlotManagerName},
		command.ActionComplete:       {producer.CompletionHandlerName},
		command.ActionList:           {producer.DisplayHandlerName},
	}
}

// Triggered returns the producers to invoke for action. Unknown actions
// trigger nothing.
func (c *Controller) Triggered(action string) []string {
	return append([]string(nil), c.triggers[action]...)
}
