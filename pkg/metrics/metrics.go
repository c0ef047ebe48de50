// Package metrics declares the Prometheus metrics exported by the pipeline
// executor. Grounded on the rate-limiter metrics style of the etalazz-vsa
// example repo (package-level prometheus.MustRegister'd collectors rather
// than a custom registry wrapper).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RuleOutcomes counts (item, rule) outcomes by rule name and outcome kind.
var RuleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sdsrules_rule_outcomes_total",
	Help: "Count of pipeline rule outcomes by rule name and outcome kind.",
}, []string{"rule", "outcome"})

// DeletionLedgerSize reports the current cardinality of the deletion ledger.
var DeletionLedgerSize = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sdsrules_deletion_ledger_size",
	Help: "Number of filenames currently pending deletion.",
})

// Handler returns the HTTP handler serving the Prometheus exposition format,
// for mounting on the operational status server.
func Handler() http.Handler {
	return promhttp.Handler()
}
