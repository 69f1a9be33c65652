package governance

import "fmt"

// DefaultYAML is the governance document written by `docket config init`.
// It authorizes every built-in producer for exactly the claim types it asserts.
const DefaultYAML = `# docket governance rules
version: "1.0"

capabilities:
  TaskPlacementProposer: [task_instance, target_slot_id, placement_proposal]
  CapacityValidator: [capacity_check_result, remaining_capacity, can_fit]
  ConsistencyValidator: [consistency_check_result, validation_errors]
  AutoReplacementProposer: [alternative_slots, replacement_proposal, target_slot_id, can_fit]
  TaskTemplateManager: [template_operation]
  TimeSlotManager: [slot_operation]
  TaskCompletionHandler: [completion_status]
  DisplayHandler: []

approval:
  required_fields:
    place: [can_fit]

controller:
  call_timeout: 30s
  # lock_ttl defaults to 5x call_timeout
`

// Default returns the built-in governance config.
func Default() *Config {
	config, err := Parse([]byte(DefaultYAML))
	if err != nil {
		panic(fmt.Sprintf("built-in governance config is invalid: %v", err))
	}
	return config
}
