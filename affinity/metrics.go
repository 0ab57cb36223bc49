package affinity

import "github.com/prometheus/client_golang/prometheus"

// Label values for the path a posted work item took.
const (
	pathInline  = "inline"
	pathQueued  = "queued"
	pathDropped = "dropped"
)

// anonymousLooper labels panics of loopers created without an ID.
const anonymousLooper = "anonymous"

var (
	bridgePosts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_bridge_posts_total",
			Help: "Work items posted through execution-context bridges, by dispatch path.",
		},
		[]string{"path"},
	)

	looperPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reactor_looper_panics_total",
			Help: "Panics recovered while running posted work, by looper.",
		},
		[]string{"looper"},
	)
)

func init() {
	prometheus.MustRegister(bridgePosts)
	prometheus.MustRegister(looperPanics)

	for _, p := range []string{pathInline, pathQueued, pathDropped} {
		bridgePosts.WithLabelValues(p)
	}
}
