// Package validate defines how a run's claim set is judged and ships the two
// built-in validators (capacity and consistency).
package validate

import (
	"context"
	"fmt"
	"time"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"golang.org/x/sync/errgroup"
)

// Concern names what a validator judges.
type Concern string

const (
	ConcernCapacity    Concern = "capacity"
	ConcernConsistency Concern = "consistency"
)

// Validator judges a claim set against one concern.
// Implementations must not modify the claims or the command.
type Validator interface {
	Name() string
	Concern() Concern
	Validate(ctx context.Context, claims []claim.Claim, cmd *command.Command) (*Outcome, error)
}

// Outcome is one validator's verdict. A fresh Outcome is produced on every call.
type Outcome struct {
	Validator  string         `json:"validator"`
	Concern    Concern        `json:"concern"`
	Passed     bool           `json:"passed"`
	Violations []string       `json:"violations,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	Duration   time.Duration  `json:"duration"`
}

// Results holds every outcome of one validation round in registration order.
type Results struct {
	Outcomes []*Outcome `json:"outcomes"`
}

// For returns the outcomes reported for concern c.
func (r Results) For(c Concern) []*Outcome {
	var out []*Outcome
	for _, o := range r.Outcomes {
		if o.Concern == c {
			out = append(out, o)
		}
	}
	return out
}

// Passed reports whether every outcome for concern c passed.
// A concern nobody reported on counts as passed.
func (r Results) Passed(c Concern) bool {
	for _, o := range r.For(c) {
		if !o.Passed {
			return false
		}
	}
	return true
}

// Violations flattens every reported violation, prefixed by validator name.
func (r Results) Violations() []string {
	var out []string
	for _, o := range r.Outcomes {
		for _, v := range o.Violations {
			out = append(out, fmt.Sprintf("%s: %s", o.Validator, v))
		}
	}
	return out
}

// Evaluation summarizes a round of validation.
type Evaluation struct {
	CapacityOK    bool `json:"capacity_ok"`
	ConsistencyOK bool `json:"consistency_ok"`
	AllOK         bool `json:"all_ok"`
}

// Evaluate derives the run-level verdict from a round of results.
func Evaluate(r Results) Evaluation {
	capacity := r.Passed(ConcernCapacity)
	consistency := r.Passed(ConcernConsistency)
	return Evaluation{
		CapacityOK:    capacity,
		ConsistencyOK: consistency,
		AllOK:         capacity && consistency,
	}
}

// RunAll invokes every validator with the full claim set and the command.
// Validators run concurrently and all of them always run. A validator that
// fails to answer within timeout yields a failed outcome carrying the error,
// as does one that returns an error.
// timeout <= 0 disables the per-call deadline.
func RunAll(ctx context.Context, validators []Validator, claims []claim.Claim, cmd *command.Command, timeout time.Duration) Results {
	outcomes := make([]*Outcome, len(validators))

	var g errgroup.Group
	for i, v := range validators {
		g.Go(func() error {
			snapshot := append([]claim.Claim(nil), claims...)
			outcomes[i] = runOne(ctx, v, snapshot, cmd.Clone(), timeout)
			return nil
		})
	}
	_ = g.Wait()

	return Results{Outcomes: outcomes}
}

func runOne(ctx context.Context, v Validator, claims []claim.Claim, cmd *command.Command, timeout time.Duration) *Outcome {
	start := time.Now()
	outcome, err := Call(ctx, timeout, func(ctx context.Context) (*Outcome, error) {
		return v.Validate(ctx, claims, cmd)
	})
	if err == nil && outcome == nil {
		err = fmt.Errorf("validator returned no outcome")
	}
	if err != nil {
		outcome = &Outcome{
			Passed:     false,
			Violations: []string{fmt.Sprintf("validator error: %v", err)},
		}
	}

	outcome.Validator = v.Name()
	outcome.Concern = v.Concern()
	outcome.Duration = time.Since(start)
	return outcome
}

// Call runs fn under an optional deadline. It returns when fn does or when the
// deadline passes, whichever is first; a panic in fn is reported as an error.
func Call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{zero, fmt.Errorf("panic: %v", r)}
			}
		}()
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
