package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "events_published_total", Help: "Events published on the bus"},
		[]string{"type"},
	)
	EventsMissedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "events_missed_total", Help: "Events dropped for lagging subscribers"},
	)
	ModuleErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "module_errors_total", Help: "Module callback failures"},
		[]string{"module"},
	)
	KlineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "kline_requests_total", Help: "Historical kline windows requested"},
		[]string{"symbol"},
	)
	RestErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "rest_errors_total", Help: "REST request failures by error kind"},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		EventsPublishedTotal,
		EventsMissedTotal,
		ModuleErrorsTotal,
		KlineRequestsTotal,
		RestErrorsTotal,
	)
}

func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
