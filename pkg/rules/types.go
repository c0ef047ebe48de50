// Package rules implements the rule engine: condition/action registries,
// the rule-catalog and rule-sequence loader, and the pipeline executor that
// drives a list of descriptors through an ordered rule sequence.
package rules

import (
	"context"

	"github.com/knmi/sdsrules/pkg/sds"
)

// ConditionFunc is a named boolean predicate over a descriptor, evaluated
// with its bound options. It may return an error, which the executor treats
// as a rule-level error outcome (spec: "any exception thrown by a condition
// is treated as a rule error").
type ConditionFunc func(ctx context.Context, opts Options, d sds.Descriptor) (bool, error)

// ActionFunc is a rule action over a descriptor, evaluated with its bound
// options. It returns an Outcome describing how the pipeline should proceed
// for this (item, rule) pair.
type ActionFunc func(ctx context.Context, opts Options, d sds.Descriptor) Outcome

// Options is the dynamic option map parsed from a rule-map or condition-ref
// document. Each handler extracts its own recognized keys with explicit
// defaults; Options never panics on a missing or mistyped key.
type Options map[string]any

func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case float64:
			return int(n)
		}
	}
	return def
}

func (o Options) StringSlice(key string) []string {
	v, ok := o[key]
	if !ok {
		return nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Kind classifies how an (item, rule) pair concluded, per the executor
// contract in the archive spec §4.5.
type Kind int

const (
	KindSuccess Kind = iota
	KindSkip
	KindTimeout
	KindExitSuccess
	KindExitError
	KindConditionFailure
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "Success"
	case KindSkip:
		return "Skip"
	case KindTimeout:
		return "Timeout"
	case KindExitSuccess:
		return "Exit"
	case KindExitError:
		return "Failure"
	case KindConditionFailure:
		return "ConditionFailure"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Outcome is the explicit result value an ActionFunc returns, replacing the
// exception-flavored PipelineExit control flow of the original Python
// implementation (see the REDESIGN note in the archive spec) with a plain
// sum type the executor branches on.
type Outcome struct {
	Kind   Kind
	Detail string
	Err    error
}

// Continue signals ordinary success: the pipeline proceeds to the next rule.
func Continue() Outcome { return Outcome{Kind: KindSuccess} }

// ExitSuccess signals a voluntary, successful end of the rule loop for this
// item; later rules in the sequence are not invoked for it.
func ExitSuccess(detail string) Outcome { return Outcome{Kind: KindExitSuccess, Detail: detail} }

// ExitError signals a voluntary, failed end of the rule loop for this item.
func ExitError(message string) Outcome {
	return Outcome{Kind: KindExitError, Detail: message}
}

// ConditionFailure signals that a rule action internally re-asserted a
// precondition named name and found it false.
func ConditionFailure(name string) Outcome {
	return Outcome{Kind: KindConditionFailure, Detail: name}
}

// Failed wraps an arbitrary action error into an Error outcome.
func Failed(err error) Outcome {
	return Outcome{Kind: KindError, Err: err, Detail: err.Error()}
}
