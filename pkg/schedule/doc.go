// Package schedule provides type-safe Go definitions and Redis schema patterns
// for the docket schedule state.
//
// # Overview
//
// The schedule is the persisted state every docket run ultimately targets: time
// slots with a fixed minute capacity, reusable task templates, and task
// instances placed into slots. The arbitration pipeline reads this state freely
// but writes it only through Client.Apply, which the controller calls from its
// single execution gate.
//
// # Core Concepts
//
// Slots are capacity-constrained windows. Each slot tracks how many minutes have
// been committed to it; Apply refuses any change set that would push a slot past
// its capacity.
//
// Templates describe a kind of task (name and duration). Tasks are instances of
// a template placed into exactly one slot.
//
// # Atomicity
//
// Apply runs inside a WATCH/MULTI/EXEC transaction over every slot the change
// set touches. Either all effects become visible or none do; a concurrent
// writer that touches the same slots causes ErrConflict instead of a partial
// write.
//
// # Multi-Instance Support
//
// All Redis keys and Pub/Sub channels are namespaced by instance name so that
// several schedules can share one Redis server.
//
// # Usage Example
//
//	client, _ := schedule.NewClient(&redis.Options{Addr: "localhost:6379"}, "team-a")
//	defer client.Close()
//
//	slot := schedule.NewSlot("Monday AM", startMs, 240)
//	applied, err := client.Apply(ctx, &schedule.ChangeSet{CreateSlots: []*schedule.Slot{slot}})
package schedule
