package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knmi/sdsrules/internal/collab"
	"github.com/knmi/sdsrules/internal/obslog"
	"github.com/knmi/sdsrules/pkg/sds"
)

// fakeAudit is an in-memory collab.RunAudit recording every SaveRun call.
type fakeAudit struct {
	runs []collab.RuleRun
}

func (f *fakeAudit) SaveRun(ctx context.Context, run collab.RuleRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeAudit) RunHistory(ctx context.Context, ruleName string, limit int) ([]collab.RuleRun, error) {
	return nil, nil
}

func testDescriptor(t *testing.T) sds.Descriptor {
	t.Helper()
	d, err := sds.New("NL.HGN.02.BHZ.D.2019.045", t.TempDir())
	require.NoError(t, err)
	return d
}

func buildCatalog(t *testing.T, conditionFn ConditionFunc, actionFn ActionFunc, timeout time.Duration) *Catalog {
	t.Helper()
	conditions := NewConditionRegistry()
	actions := NewActionRegistry()

	var conds []BoundCondition
	if conditionFn != nil {
		require.NoError(t, conditions.Register("always", conditionFn))
		bc, err := conditions.Resolve(ConditionRef{FunctionName: "always"})
		require.NoError(t, err)
		conds = []BoundCondition{bc}
	}

	require.NoError(t, actions.Register("do_it", actionFn))
	action, err := actions.Resolve("do_it", Options{})
	require.NoError(t, err)

	return &Catalog{Rules: []BoundRule{{
		Name:       "test_rule",
		Action:     action,
		Conditions: conds,
		Timeout:    timeout,
	}}}
}

func TestExecutorSuccessOutcome(t *testing.T) {
	var invoked bool
	catalog := buildCatalog(t, nil, func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		invoked = true
		return Continue()
	}, time.Second)

	e := New(catalog, obslog.NewDiscard(), nil)
	err := e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)})
	assert.NoError(t, err)
	assert.True(t, invoked)
}

func TestExecutorSkipsOnFailingCondition(t *testing.T) {
	var invoked bool
	catalog := buildCatalog(t,
		func(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) { return false, nil },
		func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
			invoked = true
			return Continue()
		},
		time.Second)

	e := New(catalog, obslog.NewDiscard(), nil)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	assert.False(t, invoked, "action must not run when a condition fails")
}

func TestExecutorNegatedConditionInverts(t *testing.T) {
	conditions := NewConditionRegistry()
	actions := NewActionRegistry()

	require.NoError(t, conditions.Register("is_false", func(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
		return false, nil
	}))
	bc, err := conditions.Resolve(ConditionRef{FunctionName: "!is_false"})
	require.NoError(t, err)
	assert.Equal(t, "!is_false", bc.DisplayName())

	var invoked bool
	require.NoError(t, actions.Register("do_it", func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		invoked = true
		return Continue()
	}))
	action, err := actions.Resolve("do_it", Options{})
	require.NoError(t, err)

	catalog := &Catalog{Rules: []BoundRule{{Name: "r", Action: action, Conditions: []BoundCondition{bc}, Timeout: time.Second}}}
	e := New(catalog, obslog.NewDiscard(), nil)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	assert.True(t, invoked, "negated false condition must pass")
}

func TestExecutorConditionErrorBecomesRuleError(t *testing.T) {
	var invoked bool
	catalog := buildCatalog(t,
		func(ctx context.Context, opts Options, d sds.Descriptor) (bool, error) {
			return false, errors.New("boom")
		},
		func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
			invoked = true
			return Continue()
		},
		time.Second)

	e := New(catalog, obslog.NewDiscard(), nil)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	assert.False(t, invoked)
}

func TestExecutorTimeoutWhenActionBlocksPastDeadline(t *testing.T) {
	catalog := buildCatalog(t, nil, func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return Continue()
	}, 10*time.Millisecond)

	audit := &fakeAudit{}
	e := New(catalog, obslog.NewDiscard(), audit)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	require.Len(t, audit.runs, 1)
	assert.Equal(t, KindTimeout.String(), audit.runs[0].Outcome)
}

func TestExecutorExitSuccessStopsRemainingRules(t *testing.T) {
	conditions := NewConditionRegistry()
	actions := NewActionRegistry()

	require.NoError(t, actions.Register("exit_ok", func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		return ExitSuccess("done")
	}))
	var secondInvoked bool
	require.NoError(t, actions.Register("second", func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		secondInvoked = true
		return Continue()
	}))

	firstAction, err := actions.Resolve("exit_ok", Options{})
	require.NoError(t, err)
	secondAction, err := actions.Resolve("second", Options{})
	require.NoError(t, err)

	catalog := &Catalog{Rules: []BoundRule{
		{Name: "first", Action: firstAction, Timeout: time.Second},
		{Name: "second", Action: secondAction, Timeout: time.Second},
	}}
	_ = conditions

	e := New(catalog, obslog.NewDiscard(), nil)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	assert.False(t, secondInvoked, "no rule after a pipeline exit may run for that item")
}

func TestExecutorPanicInActionBecomesErrorOutcome(t *testing.T) {
	catalog := buildCatalog(t, nil, func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		panic("unexpected")
	}, time.Second)

	audit := &fakeAudit{}
	e := New(catalog, obslog.NewDiscard(), audit)
	assert.NotPanics(t, func() {
		require.NoError(t, e.Run(context.Background(), []sds.Descriptor{testDescriptor(t)}))
	})
	require.Len(t, audit.runs, 1)
	assert.Equal(t, KindError.String(), audit.runs[0].Outcome)
}

func TestExecutorProcessesEveryItemEvenAfterAnEarlierError(t *testing.T) {
	d1, err := sds.New("NL.HGN.02.BHZ.D.2019.045", t.TempDir())
	require.NoError(t, err)
	d2, err := sds.New("NL.HGN.02.BHN.D.2019.045", t.TempDir())
	require.NoError(t, err)

	var processed []string
	catalog := buildCatalog(t, nil, func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		processed = append(processed, d.Filename())
		if d.Filename() == d1.Filename() {
			return Failed(errors.New("boom"))
		}
		return Continue()
	}, time.Second)

	e := New(catalog, obslog.NewDiscard(), nil)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{d1, d2}))
	assert.Equal(t, []string{d1.Filename(), d2.Filename()}, processed)
}

func TestExecutorSavesOneAuditRunPerRule(t *testing.T) {
	catalog := buildCatalog(t, nil, func(ctx context.Context, opts Options, d sds.Descriptor) Outcome {
		return Continue()
	}, time.Second)

	audit := &fakeAudit{}
	e := New(catalog, obslog.NewDiscard(), audit)
	d := testDescriptor(t)
	require.NoError(t, e.Run(context.Background(), []sds.Descriptor{d}))

	require.Len(t, audit.runs, 1)
	assert.Equal(t, "test_rule", audit.runs[0].RuleName)
	assert.Equal(t, d.Filename(), audit.runs[0].Filename)
	assert.Equal(t, KindSuccess.String(), audit.runs[0].Outcome)
}
