package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedsweep_actions_total",
	Help: "Irreversible actions performed, by kind and reason",
}, []string{"kind", "reason"})

var keywordMatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedsweep_keyword_matches_total",
	Help: "Items kept because they matched the keyword filter",
})

var networkWarningGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "feedsweep_network_warning",
	Help: "1 while the page shows the network error banner",
})

var reloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "feedsweep_reloads_total",
	Help: "Page reloads scheduled by the action threshold",
})

var cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedsweep_cycles_total",
	Help: "Control loop cycles, by mode",
}, []string{"mode"})

// ObserveCycle counts one control loop cycle in mode.
func ObserveCycle(mode string) {
	cyclesTotal.WithLabelValues(mode).Inc()
}
