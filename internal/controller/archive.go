package controller

import "context"

// ArchiveReason is passed to the archiver after a run clears the approval gate
// and executes.
const ArchiveReason = "governance_gate_passed"

// Archiver is notified after every successful mutating run, before the scope
// lock is released. Its failure is logged and never fails the run.
type Archiver interface {
	Archive(ctx context.Context, reason string, meta map[string]any) error
}

// ArchiverFunc adapts a function to Archiver.
type ArchiverFunc func(ctx context.Context, reason string, meta map[string]any) error

func (f ArchiverFunc) Archive(ctx context.Context, reason string, meta map[string]any) error {
	return f(ctx, reason, meta)
}
