package schedule

import "fmt"

// Redis key pattern helpers
//
// Key pattern: docket:{instance_name}:{entity}:{uuid}
// Channel pattern: docket:{instance_name}:{event_type}_events

// SlotKey returns the Redis key for a slot hash.
// Pattern: docket:{instance_name}:slot:{slot_id}
func SlotKey(instanceName, slotID string) string {
	return fmt.Sprintf("docket:%s:slot:%s", instanceName, slotID)
}

// SlotIndexKey returns the ZSET of slot IDs scored by start time.
// Pattern: docket:{instance_name}:slots
func SlotIndexKey(instanceName string) string {
	return fmt.Sprintf("docket:%s:slots", instanceName)
}

// SlotTasksKey returns the SET of task IDs placed in a slot.
// Pattern: docket:{instance_name}:slot:{slot_id}:tasks
func SlotTasksKey(instanceName, slotID string) string {
	return fmt.Sprintf("docket:%s:slot:%s:tasks", instanceName, slotID)
}

// TemplateKey returns the Redis key for a template hash.
// Pattern: docket:{instance_name}:template:{template_id}
func TemplateKey(instanceName, templateID string) string {
	return fmt.Sprintf("docket:%s:template:%s", instanceName, templateID)
}

// TemplateIndexKey returns the hash mapping template name to template ID.
// Pattern: docket:{instance_name}:templates
func TemplateIndexKey(instanceName string) string {
	return fmt.Sprintf("docket:%s:templates", instanceName)
}

// TaskKey returns the Redis key for a task hash.
// Pattern: docket:{instance_name}:task:{task_id}
func TaskKey(instanceName, taskID string) string {
	return fmt.Sprintf("docket:%s:task:%s", instanceName, taskID)
}

// TaskIndexKey returns the ZSET of task IDs scored by creation time.
// Pattern: docket:{instance_name}:tasks
func TaskIndexKey(instanceName string) string {
	return fmt.Sprintf("docket:%s:tasks", instanceName)
}

// LockKey returns the Redis key guarding a capacity scope.
// Pattern: docket:{instance_name}:lock:{scope}
func LockKey(instanceName, scope string) string {
	return fmt.Sprintf("docket:%s:lock:%s", instanceName, scope)
}

// SnapshotKey returns the Redis key holding a snapshot document.
// Pattern: docket:{instance_name}:snapshot:{snapshot_id}
func SnapshotKey(instanceName, snapshotID string) string {
	return fmt.Sprintf("docket:%s:snapshot:%s", instanceName, snapshotID)
}

// SnapshotIndexKey returns the ZSET of snapshot IDs scored by timestamp.
// Pattern: docket:{instance_name}:snapshots
func SnapshotIndexKey(instanceName string) string {
	return fmt.Sprintf("docket:%s:snapshots", instanceName)
}

// ScheduleEventsChannel returns the Pub/Sub channel for applied change sets.
// Pattern: docket:{instance_name}:schedule_events
func ScheduleEventsChannel(instanceName string) string {
	return fmt.Sprintf("docket:%s:schedule_events", instanceName)
}
