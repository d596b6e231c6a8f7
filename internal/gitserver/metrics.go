package gitserver

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// restartsTotal counts listener restarts by listener name, mirroring the
// teacher's per-request CounterVec shape (namespace/subsystem/labels)
// applied here to the supervisor's restart budget instead of HTTP
// requests.
var (
	restartsTotalOnce sync.Once
	restartsTotal     *prometheus.CounterVec
)

func getRestartsTotal() *prometheus.CounterVec {
	restartsTotalOnce.Do(func() {
		restartsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gir",
			Subsystem: "server",
			Name:      "listener_restarts_total",
			Help:      "Total number of times a listener was restarted after a fatal accept error.",
		}, []string{"listener"})
		prometheus.DefaultRegisterer.MustRegister(restartsTotal)
	})
	return restartsTotal
}
