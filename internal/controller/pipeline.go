package controller

import (
	"context"
	"fmt"
	"log"

	"github.com/dyluth/docket/internal/arbiter"
	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/execute"
	"github.com/dyluth/docket/internal/validate"
	"github.com/dyluth/docket/pkg/schedule"
	"github.com/google/uuid"
)

// LockScope is the capacity scope every mutating run holds from validation
// through execution. A placement may be moved to any slot by replacement, so
// the whole schedule is one scope.
const LockScope = schedule.LockScope

// Process drives cmd through the pipeline and reports the outcome.
// Rejections and execution failures are reported in the envelope; the error
// return is reserved for a nil command.
func (c *Controller) Process(ctx context.Context, cmd *command.Command) (*Envelope, error) {
	if cmd == nil {
		return nil, fmt.Errorf("command cannot be nil")
	}

	env := &Envelope{
		RunID:  uuid.New().String(),
		Action: cmd.Action,
		Trace:  []State{},
		Report: &Report{},
	}
	env.enter(StateReceived)
	c.logEvent("run_received", map[string]interface{}{
		"run_id":     env.RunID,
		"action":     cmd.Action,
		"command_id": cmd.ID,
	})

	names := c.Triggered(cmd.Action)
	env.Report.Producers = names
	env.enter(StateTriggered)

	claims := c.collect(ctx, env, cmd, names)
	env.Report.Claims = len(claims)
	env.enter(StateClaimsCollected)
	c.logEvent("claims_collected", map[string]interface{}{
		"run_id":    env.RunID,
		"producers": len(names),
		"claims":    len(claims),
	})

	mutating := execute.Mutates(cmd.Action)
	release := func() {}
	if mutating {
		r, err := c.locker.Acquire(ctx, LockScope)
		if err != nil {
			c.reject(env, &RunError{Reason: ReasonLockFailed, Message: err.Error()})
			env.enter(StateResult)
			return env, nil
		}
		release = r
	}

	func() {
		defer release()
		c.gate(ctx, env, cmd, claims)
		// Archive before release so the copy is exactly this run's result.
		if env.Success && mutating && c.archiver != nil {
			c.archive(ctx, env, cmd)
		}
	}()

	env.enter(StateResult)
	return env, nil
}

// collect invokes the triggered producers in order and gathers their claims.
func (c *Controller) collect(ctx context.Context, env *Envelope, cmd *command.Command, names []string) []claim.Claim {
	var claims []claim.Claim
	for _, name := range names {
		p, ok := c.producers.Get(name)
		if !ok {
			c.warn(env, "producer_missing", fmt.Sprintf("producer %q is not registered", name), name)
			continue
		}

		produced, err := validate.Call(ctx, c.config.CallTimeout(), func(ctx context.Context) ([]claim.Claim, error) {
			return p.Process(ctx, cmd.Clone())
		})
		if err != nil {
			c.warn(env, "producer_failed", fmt.Sprintf("producer %q failed: %v", name, err), name)
			continue
		}

		claims = c.admit(env, claims, name, produced)
	}
	return claims
}

// admit appends well-formed claims from one producer, numbering them in
// arrival order.
func (c *Controller) admit(env *Envelope, claims []claim.Claim, name string, produced []claim.Claim) []claim.Claim {
	for _, cl := range produced {
		if cl.Producer != name {
			c.warn(env, "", fmt.Sprintf("dropped %s claim from %q asserted as %q", cl.Type, name, cl.Producer), name)
			continue
		}
		if err := cl.Validate(); err != nil {
			c.warn(env, "", fmt.Sprintf("dropped malformed claim from %q: %v", name, err), name)
			continue
		}
		cl.Seq = len(claims)
		claims = append(claims, cl)
	}
	return claims
}

// gate runs validation, arbitration, approval and execution. The caller holds
// the scope lock for mutating actions.
func (c *Controller) gate(ctx context.Context, env *Envelope, cmd *command.Command, claims []claim.Claim) {
	timeout := c.config.CallTimeout()

	results := validate.RunAll(ctx, c.validators, claims, cmd, timeout)
	eval := validate.Evaluate(results)
	env.enter(StateValidated)
	c.logValidation(env, 1, eval)

	if !eval.CapacityOK && eval.ConsistencyOK {
		if extra := c.replace(ctx, env, cmd, results, len(claims)); len(extra) > 0 {
			claims = append(claims, extra...)
			results = validate.RunAll(ctx, c.validators, claims, cmd, timeout)
			eval = validate.Evaluate(results)
			env.Report.Retried = true
			env.enter(StateRetryValidated)
			c.logValidation(env, 2, eval)
		}
	}

	env.Report.Claims = len(claims)
	env.Report.Validation = results
	env.Report.Evaluation = eval

	decision := arbiter.Arbitrate(claims, c.config)
	env.Report.Winners = decision.Winners
	env.Report.Violations = decision.Violations
	env.Report.Fields = decision.Fields
	for _, v := range decision.Violations {
		log.Printf("[Arbiter] Dropped claim %d: %s", v.Seq, v)
		c.logEvent("claim_rejected", map[string]interface{}{
			"run_id":     env.RunID,
			"claim_type": string(v.Type),
			"producer":   v.Producer,
			"seq":        v.Seq,
			"reason":     v.Reason,
		})
	}

	if rejection := c.approve(cmd, eval, results, decision); rejection != nil {
		c.reject(env, rejection)
		return
	}
	env.enter(StateApproved)

	result, err := c.executor.Execute(ctx, cmd, decision.Fields)
	if err != nil {
		log.Printf("[Controller] Run %s failed during execution: %v", env.RunID, err)
		env.Phase = PhaseExecution
		env.Error = &RunError{Reason: ReasonExecutionFailed, Message: err.Error()}
		c.logEvent("error", map[string]interface{}{
			"run_id":  env.RunID,
			"message": "execution failed",
			"error":   err.Error(),
		})
		return
	}

	env.enter(StateExecuted)
	env.Success = true
	env.Phase = PhaseResult
	env.Result = result
	log.Printf("[Controller] Run %s executed %s", env.RunID, cmd.Action)
	c.logEvent("run_executed", map[string]interface{}{
		"run_id":  env.RunID,
		"action":  cmd.Action,
		"retried": env.Report.Retried,
	})
}

// replace asks the replacer for alternatives once. next is the sequence
// number the first replacement claim receives.
func (c *Controller) replace(ctx context.Context, env *Envelope, cmd *command.Command, results validate.Results, next int) []claim.Claim {
	if c.replacer == nil {
		return nil
	}
	name := c.replacer.Name()

	produced, err := validate.Call(ctx, c.config.CallTimeout(), func(ctx context.Context) ([]claim.Claim, error) {
		return c.replacer.Propose(ctx, cmd.Clone(), results)
	})
	if err != nil {
		c.warn(env, "producer_failed", fmt.Sprintf("replacer %q failed: %v", name, err), name)
		return nil
	}

	extra := c.admit(env, make([]claim.Claim, next, next+len(produced)), name, produced)[next:]
	c.logEvent("auto_replacement", map[string]interface{}{
		"run_id":   env.RunID,
		"producer": name,
		"claims":   len(extra),
	})
	return extra
}

// approve returns nil when the run may execute, or the reason it may not.
func (c *Controller) approve(cmd *command.Command, eval validate.Evaluation, results validate.Results, decision *arbiter.Decision) *RunError {
	if !eval.AllOK {
		return &RunError{
			Reason:  ReasonValidationFailed,
			Message: "validation failed",
			Details: results.Violations(),
		}
	}

	// Arbitrate already filters by the same table; this re-checks the
	// decision it handed back before anything executes.
	for _, w := range decision.Winners {
		if !c.config.Allows(w.Claim.Producer, w.Type) {
			return &RunError{
				Reason:  ReasonCapability,
				Message: fmt.Sprintf("winning %s claim from %q is not authorized", w.Type, w.Claim.Producer),
			}
		}
	}

	violated := decision.ViolatedTypes()
	var dropped, unfilled []string
	for _, field := range c.requiredFields(cmd.Action) {
		if _, ok := decision.Fields[field]; ok {
			continue
		}
		if t, ok := claim.TypeForField(field); ok && violated[t] {
			dropped = append(dropped, field)
		} else {
			unfilled = append(unfilled, field)
		}
	}

	if len(dropped) > 0 {
		details := make([]string, 0, len(decision.Violations))
		for _, v := range decision.Violations {
			for _, field := range dropped {
				if f, _ := v.Type.Field(); f == field {
					details = append(details, v.String())
				}
			}
		}
		return &RunError{
			Reason:  ReasonCapability,
			Message: fmt.Sprintf("required fields %v were claimed only by unauthorized producers", dropped),
			Details: details,
		}
	}
	if len(unfilled) > 0 {
		return &RunError{
			Reason:  ReasonValidationFailed,
			Message: fmt.Sprintf("required fields %v have no claim", unfilled),
		}
	}
	return nil
}

// requiredFields merges the executor's needs with the governance approval rules.
func (c *Controller) requiredFields(action string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, f := range append(execute.RequiredFields(action), c.config.RequiredFields(action)...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}

func (c *Controller) reject(env *Envelope, rejection *RunError) {
	env.Phase = PhaseApproval
	env.Error = rejection
	env.enter(StateRejected)
	log.Printf("[Controller] Run %s rejected: %s: %s", env.RunID, rejection.Reason, rejection.Message)
	c.logEvent("run_rejected", map[string]interface{}{
		"run_id":  env.RunID,
		"reason":  rejection.Reason,
		"message": rejection.Message,
		"details": rejection.Details,
	})
}

func (c *Controller) archive(ctx context.Context, env *Envelope, cmd *command.Command) {
	meta := map[string]any{
		"run_id":     env.RunID,
		"action":     cmd.Action,
		"command_id": cmd.ID,
	}
	if err := c.archiver.Archive(ctx, ArchiveReason, meta); err != nil {
		log.Printf("[Controller] WARN: archive failed for run %s: %v", env.RunID, err)
		c.logEvent("archive_failed", map[string]interface{}{
			"run_id": env.RunID,
			"error":  err.Error(),
		})
	}
}

func (c *Controller) logValidation(env *Envelope, round int, eval validate.Evaluation) {
	c.logEvent("validation_completed", map[string]interface{}{
		"run_id":         env.RunID,
		"round":          round,
		"capacity_ok":    eval.CapacityOK,
		"consistency_ok": eval.ConsistencyOK,
		"all_ok":         eval.AllOK,
	})
}

// warn records a non-fatal problem on the run. An empty eventType logs the
// human line only.
func (c *Controller) warn(env *Envelope, eventType, message, producer string) {
	log.Printf("[Controller] WARN: run %s: %s", env.RunID, message)
	env.Report.Warnings = append(env.Report.Warnings, message)
	if eventType == "" {
		return
	}
	c.logEvent(eventType, map[string]interface{}{
		"run_id":   env.RunID,
		"producer": producer,
		"message":  message,
	})
}
