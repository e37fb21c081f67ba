package web

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/On-Jun9/ShutterFix/internal/inventory"
	"github.com/On-Jun9/ShutterFix/pkg/types"
)

const namespace = "shutterfix"

type metrics struct {
	registry *prometheus.Registry
	records  *prometheus.GaugeVec
	issues   *prometheus.GaugeVec
	runs     *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the picture database by status.",
		}, []string{"status"}),
		issues: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "issues",
			Help:      "Records in the picture database by issue.",
		}, []string{"issue"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished operations by outcome.",
		}, []string{"operation", "status"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(m.records, m.issues, m.runs, m.requests, m.latency)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// observeInventory replaces the record gauges with the counts of sum.
func (m *metrics) observeInventory(sum inventory.Summary) {
	m.records.Reset()
	for _, status := range []types.Status{types.StatusUnresolved, types.StatusResolved, types.StatusVerified} {
		m.records.WithLabelValues(string(status)).Set(float64(sum.ByStatus[status]))
	}

	m.issues.Reset()
	for issue, n := range sum.ByIssue {
		m.issues.WithLabelValues(issueLabel(issue)).Add(float64(n))
	}
}

// issueLabel folds the per-directory higher-dir issues into one label.
func issueLabel(issue types.Issue) string {
	if _, ok := issue.HigherDir(); ok {
		return strings.TrimSpace(string(types.MatchedHigherDir("")))
	}
	return string(issue)
}

func (m *metrics) observeRun(operation string, status types.RunStatus) {
	m.runs.WithLabelValues(operation, string(status)).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack keeps websocket upgrades working behind the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return hj.Hijack()
}

func (m *metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		m.latency.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
