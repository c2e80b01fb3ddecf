package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics - набор счетчиков HTTP-слоя и предметной области
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Предметная область
	incidentsCreated  *prometheus.CounterVec
	upvoteToggles     *prometheus.CounterVec
	verifications     *prometheus.CounterVec
	rewardRedemptions prometheus.Counter
	geocodeLookups    *prometheus.CounterVec
}

// New регистрирует метрики в reg. В тестах передается отдельный prometheus.NewRegistry().
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		incidentsCreated: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incidents_created_total",
				Help: "Incidents accepted, by outcome (primary or duplicate)",
			},
			[]string{"outcome"},
		),
		upvoteToggles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incident_upvote_toggles_total",
				Help: "Upvote toggles, by direction",
			},
			[]string{"direction"},
		),
		verifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "incident_verifications_total",
				Help: "Verification state changes, by method",
			},
			[]string{"method"},
		),
		rewardRedemptions: f.NewCounter(
			prometheus.CounterOpts{
				Name: "reward_redemptions_total",
				Help: "Successful reward redemptions",
			},
		),
		geocodeLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geocode_lookups_total",
				Help: "Reverse geocoding lookups, by result (hit, miss, error)",
			},
			[]string{"result"},
		),
	}
}

// Middleware считает запросы по шаблону маршрута, а не по фактическому пути
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler отдает метрики в формате Prometheus
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) IncidentCreated(duplicate bool) {
	outcome := "primary"
	if duplicate {
		outcome = "duplicate"
	}
	m.incidentsCreated.WithLabelValues(outcome).Inc()
}

func (m *Metrics) UpvoteToggled(added bool) {
	direction := "removed"
	if added {
		direction = "added"
	}
	m.upvoteToggles.WithLabelValues(direction).Inc()
}

// Verification фиксирует смену состояния верификации: admin, upvote или revoked
func (m *Metrics) Verification(method string) {
	m.verifications.WithLabelValues(method).Inc()
}

func (m *Metrics) RewardRedeemed() {
	m.rewardRedemptions.Inc()
}

func (m *Metrics) GeocodeLookup(result string) {
	m.geocodeLookups.WithLabelValues(result).Inc()
}
