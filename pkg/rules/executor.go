package rules

import (
	"context"
	"fmt"
	"time"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/internal/obslog"
	"github.com/knmi/sdsrules/internal/telemetry"
	"github.com/knmi/sdsrules/pkg/sds"
)

// Executor drives a list of descriptors through a loaded Catalog, rule by
// rule, enforcing each rule's effective timeout and classifying the outcome
// of every (item, rule) pair. It never lets a rule or condition error escape
// — every outcome is logged and the executor moves on, per the archive
// spec's "no exception escapes the executor" contract.
type Executor struct {
	Catalog *Catalog
	Log     *obslog.Logger
	Audit   collab.RunAudit
}

// New creates an Executor bound to catalog, logging through log. audit may
// be nil, in which case rule runs are not persisted to the audit trail.
func New(catalog *Catalog, log *obslog.Logger, audit collab.RunAudit) *Executor {
	return &Executor{Catalog: catalog, Log: log, Audit: audit}
}

// Run drives every item in items through the full rule sequence, in order.
// Items are processed strictly in the order supplied; within one item, rules
// run strictly in sequence with no overlap. Run never aborts on a per-item
// failure — every item is attempted even if an earlier one errored.
func (e *Executor) Run(ctx context.Context, items []sds.Descriptor) error {
	total := len(items)
	for i, item := range items {
		e.runItem(ctx, i, total, item)
	}
	return nil
}

func (e *Executor) runItem(ctx context.Context, index, total int, item sds.Descriptor) {
	itemKey := item.Filename()
	e.Log.Info("item", "item", itemKey, "index", index+1, "total", total)

	for _, rule := range e.Catalog.Rules {
		start := time.Now().UTC()
		outcome, skippedOn := e.runRule(ctx, rule, item)
		e.saveAuditRun(ctx, rule.Name, itemKey, outcome, start)

		fields := []any{"item", itemKey, "rule", rule.Name, "outcome", outcome.Kind.String()}
		if outcome.Detail != "" {
			fields = append(fields, "detail", outcome.Detail)
		}

		switch outcome.Kind {
		case KindSuccess:
			e.Log.Info("rule executed", fields...)
		case KindSkip:
			fields = append(fields, "condition", skippedOn)
			e.Log.Info("rule skipped", fields...)
		case KindTimeout:
			e.Log.Warn("rule timed out", fields...)
		case KindConditionFailure:
			e.Log.Info("condition failure", fields...)
		case KindExitSuccess:
			e.Log.Info("pipeline exit", fields...)
			return
		case KindExitError:
			e.Log.Error("pipeline exit with error", fields...)
			return
		case KindError:
			e.Log.Error("rule error", fields...)
		}
	}
}

// saveAuditRun persists one (item, rule) execution record when an audit
// trail is configured. A failure to write the audit record is logged but
// never changes the outcome already reported to the caller — the audit
// trail is operational reporting, not part of the pipeline's own contract.
func (e *Executor) saveAuditRun(ctx context.Context, ruleName, itemKey string, outcome Outcome, start time.Time) {
	if e.Audit == nil {
		return
	}
	run := collab.RuleRun{
		RuleName: ruleName,
		Filename: itemKey,
		Outcome:  outcome.Kind.String(),
		Detail:   outcome.Detail,
		Duration: time.Since(start),
		Occurred: start,
	}
	if err := e.Audit.SaveRun(ctx, run); err != nil {
		e.Log.Error("audit trail write failed", "item", itemKey, "rule", ruleName, "err", err)
	}
}

// runRule evaluates rule's conditions in order, then — if all pass — invokes
// its action under a wall-clock deadline, and classifies the result.
// skippedOn is the display name of the first failing condition when the
// outcome is KindSkip, for log attribution.
func (e *Executor) runRule(ctx context.Context, rule BoundRule, item sds.Descriptor) (outcome Outcome, skippedOn string) {
	for _, cond := range rule.Conditions {
		pass, err := e.evalCondition(ctx, cond, item)
		if err != nil {
			return Failed(fmt.Errorf("condition %s: %w", cond.DisplayName(), err)), ""
		}
		if !pass {
			return Outcome{Kind: KindSkip, Detail: cond.DisplayName()}, cond.DisplayName()
		}
	}

	return e.invokeWithTimeout(ctx, rule, item), ""
}

func (e *Executor) evalCondition(ctx context.Context, cond BoundCondition, item sds.Descriptor) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cond.Eval(ctx, item)
}

// invokeWithTimeout runs rule.Action under a deadline equal to rule.Timeout,
// following the teacher's worker-pool pattern of pairing a
// context.WithTimeout against a result channel rather than relying on the
// action to observe ctx itself (actions written against external libraries
// that ignore ctx still get a best-effort timeout this way, per the archive
// spec's cancellation note).
func (e *Executor) invokeWithTimeout(parent context.Context, rule BoundRule, item sds.Descriptor) Outcome {
	timeout := rule.Timeout
	if timeout <= 0 {
		timeout = runRuleDeadlineFloor
	}
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	span, ctx := telemetry.StartRuleSpan(ctx, rule.Name, item.Filename())
	defer span.End()

	done := make(chan Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- Failed(fmt.Errorf("panic: %v", r))
			}
		}()
		done <- rule.Action.Invoke(ctx, item)
	}()

	select {
	case outcome := <-done:
		telemetry.RecordOutcome(rule.Name, outcome.Kind.String())
		return outcome
	case <-ctx.Done():
		telemetry.RecordOutcome(rule.Name, KindTimeout.String())
		return Outcome{Kind: KindTimeout, Detail: fmt.Sprintf("exceeded %s", timeout)}
	}
}

// runRuleDeadlineFloor is the minimum timeout applied when a rule's
// effective timeout resolves to zero (misconfiguration guard; a zero
// timeout would otherwise make context.WithTimeout fire immediately).
const runRuleDeadlineFloor = 1 * time.Second
