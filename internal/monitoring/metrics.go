package monitoring

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a memory context assembly.
const (
	OutcomeOK       = "ok"
	OutcomeDegraded = "degraded"
	OutcomeNotFound = "not_found"
	OutcomeCanceled = "canceled"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency records FactStore operation latency.
	StoreLatency *prometheus.HistogramVec

	// ContextAssembliesTotal counts memory context assemblies by outcome.
	ContextAssembliesTotal *prometheus.CounterVec

	// ContextFactsSelected records how many facts survived selection per context.
	ContextFactsSelected prometheus.Histogram

	// FactsDeactivatedTotal counts facts deactivated by the overflow pruner.
	FactsDeactivatedTotal prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// DBPoolOpenConnections tracks the number of currently open database connections.
	DBPoolOpenConnections prometheus.Gauge

	// DBPoolMaxConnections tracks the configured maximum database connections.
	DBPoolMaxConnections prometheus.Gauge
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Label values may not contain commas. Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = os.Expand(s, os.Getenv)
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		idx := strings.IndexByte(pair, '=')
		if idx < 0 {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		k, v := strings.TrimSpace(pair[:idx]), strings.TrimSpace(pair[idx+1:])
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Safe to call multiple times; only the first call registers.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "student_memory_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "student_memory_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "student_memory_store_latency_seconds",
			Help:    "Fact store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	ContextAssembliesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "student_memory_context_assemblies_total",
			Help: "Memory context assemblies by outcome",
		},
		[]string{"outcome"},
	)

	ContextFactsSelected = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "student_memory_context_facts_selected",
		Help:    "Number of facts selected into a memory context",
		Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
	})

	FactsDeactivatedTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "student_memory_facts_pruned_total",
		Help: "Facts deactivated because a student exceeded the active fact cap",
	})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "student_memory_profile_cache_hits_total",
		Help: "Total profile cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "student_memory_profile_cache_misses_total",
		Help: "Total profile cache misses",
	})

	DBPoolOpenConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "student_memory_db_pool_open_connections",
		Help: "Number of open database connections",
	})

	DBPoolMaxConnections = f.NewGauge(prometheus.GaugeOpts{
		Name: "student_memory_db_pool_max_connections",
		Help: "Maximum number of database connections",
	})
}

// ObserveContextAssembly records one assembly outcome and its fact count.
func ObserveContextAssembly(outcome string, facts int) {
	if ContextAssembliesTotal == nil {
		return
	}
	ContextAssembliesTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeOK || outcome == OutcomeDegraded {
		ContextFactsSelected.Observe(float64(facts))
	}
}

// ObserveCacheLookup records a profile cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if CacheHitsTotal == nil {
		return
	}
	if hit {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())
	}
}
