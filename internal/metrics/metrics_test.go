package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New(prometheus.NewRegistry())
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/incidents/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/incidents/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/incidents/:id", "200")))
}

func TestDomainCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.IncidentCreated(false)
	m.IncidentCreated(true)
	m.IncidentCreated(true)
	m.UpvoteToggled(true)
	m.Verification("admin")
	m.RewardRedeemed()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.incidentsCreated.WithLabelValues("primary")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.incidentsCreated.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upvoteToggles.WithLabelValues("added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.verifications.WithLabelValues("admin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rewardRedemptions))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.RewardRedeemed()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "reward_redemptions_total 1"))
}
