package validate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator returns a fixed outcome, optionally after a delay.
type stubValidator struct {
	name    string
	concern Concern
	passed  bool
	err     error
	delay   time.Duration
	panics  bool
	calls   *int32
}

func (s *stubValidator) Name() string     { return s.name }
func (s *stubValidator) Concern() Concern { return s.concern }

func (s *stubValidator) Validate(ctx context.Context, claims []claim.Claim, cmd *command.Command) (*Outcome, error) {
	if s.calls != nil {
		atomic.AddInt32(s.calls, 1)
	}
	if s.panics {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Outcome{Passed: s.passed}, nil
}

func TestEvaluate(t *testing.T) {
	pass := func(c Concern) *Outcome { return &Outcome{Concern: c, Passed: true} }
	fail := func(c Concern) *Outcome { return &Outcome{Concern: c, Passed: false} }

	tests := []struct {
		name     string
		outcomes []*Outcome
		want     Evaluation
	}{
		{"no outcomes count as passed", nil, Evaluation{true, true, true}},
		{"both pass", []*Outcome{pass(ConcernCapacity), pass(ConcernConsistency)}, Evaluation{true, true, true}},
		{"capacity fails", []*Outcome{fail(ConcernCapacity), pass(ConcernConsistency)}, Evaluation{false, true, false}},
		{"consistency fails", []*Outcome{pass(ConcernCapacity), fail(ConcernConsistency)}, Evaluation{true, false, false}},
		{"only consistency reported", []*Outcome{pass(ConcernConsistency)}, Evaluation{true, true, true}},
		{"one of two capacity outcomes fails", []*Outcome{pass(ConcernCapacity), fail(ConcernCapacity)}, Evaluation{false, true, false}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(Results{Outcomes: tt.outcomes}))
		})
	}
}

func TestRunAll_NoShortCircuit(t *testing.T) {
	var calls int32
	validators := []Validator{
		&stubValidator{name: "first", concern: ConcernCapacity, passed: false, calls: &calls},
		&stubValidator{name: "second", concern: ConcernConsistency, passed: true, calls: &calls},
	}

	results := RunAll(context.Background(), validators, nil, command.New("place", nil), time.Second)

	assert.Equal(t, int32(2), calls)
	require.Len(t, results.Outcomes, 2)
	assert.Equal(t, "first", results.Outcomes[0].Validator)
	assert.Equal(t, ConcernCapacity, results.Outcomes[0].Concern)
	assert.False(t, results.Outcomes[0].Passed)
	assert.Equal(t, "second", results.Outcomes[1].Validator)
	assert.True(t, results.Outcomes[1].Passed)
}

func TestRunAll_FailuresBecomeFailedOutcomes(t *testing.T) {
	validators := []Validator{
		&stubValidator{name: "errors", concern: ConcernCapacity, err: errors.New("store down")},
		&stubValidator{name: "slow", concern: ConcernConsistency, passed: true, delay: time.Second},
		&stubValidator{name: "panics", concern: ConcernConsistency, panics: true},
	}

	results := RunAll(context.Background(), validators, nil, command.New("place", nil), 50*time.Millisecond)

	require.Len(t, results.Outcomes, 3)
	for _, o := range results.Outcomes {
		assert.False(t, o.Passed, o.Validator)
		require.Len(t, o.Violations, 1, o.Validator)
		assert.Contains(t, o.Violations[0], "validator error")
	}
	assert.Contains(t, results.Outcomes[0].Violations[0], "store down")
	assert.Contains(t, results.Outcomes[1].Violations[0], "deadline exceeded")
	assert.Contains(t, results.Outcomes[2].Violations[0], "panic")

	eval := Evaluate(results)
	assert.False(t, eval.CapacityOK)
	assert.False(t, eval.ConsistencyOK)
	assert.Len(t, results.Violations(), 3)
}

func TestCall_ZeroTimeoutWaits(t *testing.T) {
	got, err := Call(context.Background(), 0, func(ctx context.Context) (int, error) {
		time.Sleep(10 * time.Millisecond)
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}
