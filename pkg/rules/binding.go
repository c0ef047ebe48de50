package rules

import (
	"context"

	"github.com/knmi/sdsrules/pkg/sds"
)

// BoundCondition captures a resolved condition handler together with its
// bound options and, if the config referenced it with a leading '!', a
// negation flag. DisplayName reports "!name" for a negated condition so log
// lines and Skip outcomes can show the operator exactly what was configured,
// per the "!name" reporting requirement in the archive spec's binding note.
type BoundCondition struct {
	Name   string
	Negate bool
	fn     ConditionFunc
	opts   Options
}

// DisplayName is the name used for logging: "!name" when negated, "name"
// otherwise.
func (b BoundCondition) DisplayName() string {
	if b.Negate {
		return "!" + b.Name
	}
	return b.Name
}

// Eval invokes the underlying condition against d, applying negation if
// configured.
func (b BoundCondition) Eval(ctx context.Context, d sds.Descriptor) (bool, error) {
	ok, err := b.fn(ctx, b.opts, d)
	if err != nil {
		return false, err
	}
	if b.Negate {
		return !ok, nil
	}
	return ok, nil
}

// BoundAction captures a resolved rule-action handler together with its
// bound options.
type BoundAction struct {
	Name string
	fn   ActionFunc
	opts Options
}

// Invoke runs the underlying action against d.
func (b BoundAction) Invoke(ctx context.Context, d sds.Descriptor) Outcome {
	return b.fn(ctx, b.opts, d)
}
