package reactor

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK       = "ok"
	resultError    = "error"
	resultDeferred = "deferred"
)

var invocations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reactor_capability_invocations_total",
		Help: "Capability invocations by module and outcome.",
	},
	[]string{"module", "result"},
)

func init() {
	prometheus.MustRegister(invocations)
}
