package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *NominatimClient {
	cfg := &config.Config{
		GeocoderURL:       url,
		GeocoderTimeout:   time.Second,
		GeocoderUserAgent: "incident-reporting-test",
		GeocodeCacheTTL:   time.Minute,
	}
	return NewNominatimClient(cfg, metrics.New(prometheus.NewRegistry()))
}

func TestReverse_SuccessAndCached(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "28.6315", r.URL.Query().Get("lat"))
		assert.Equal(t, "incident-reporting-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"display_name":"Connaught Place, New Delhi"}`))
	}))
	defer srv.Close()
	client := newTestClient(srv.URL)

	label, err := client.Reverse(context.Background(), 28.6315, 77.2167)
	require.NoError(t, err)
	assert.Equal(t, "Connaught Place, New Delhi", label)

	// Соседняя точка в пределах 4 знаков берется из кеша
	label, err = client.Reverse(context.Background(), 28.63151, 77.21671)
	require.NoError(t, err)
	assert.Equal(t, "Connaught Place, New Delhi", label)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestReverse_NoAddress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Reverse(context.Background(), 0, 0)

	require.ErrorIs(t, err, ErrNoAddress)
}

func TestReverse_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Reverse(context.Background(), 1, 1)

	require.Error(t, err)
	assert.ErrorContains(t, err, "status 429")
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Reverse(context.Background(), 1, 1)
	require.ErrorIs(t, err, ErrNoAddress)
}
