package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/knmi/sdsrules/pkg/metrics"
)

// StartRuleSpan starts a span covering one rule invocation for one item. If
// Init was never called, the global no-op tracer is used, so callers never
// need to nil-check.
func StartRuleSpan(ctx context.Context, ruleName, itemFilename string) (trace.Span, context.Context) {
	tracer := otel.Tracer("sdsrules/pipeline")
	ctx, span := tracer.Start(ctx, "rule."+ruleName,
		trace.WithAttributes(
			attribute.String("rule.name", ruleName),
			attribute.String("item.filename", itemFilename),
		),
	)
	return span, ctx
}

// RecordOutcome increments the rule-outcome counter. Delegates to pkg/metrics
// so the executor doesn't need to know about the Prometheus registry
// directly.
func RecordOutcome(ruleName, outcome string) {
	metrics.RuleOutcomes.WithLabelValues(ruleName, outcome).Inc()
}
