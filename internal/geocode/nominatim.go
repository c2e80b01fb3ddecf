package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	gocache "github.com/patrickmn/go-cache"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/metrics"
)

var ErrNoAddress = errors.New("no address for coordinates")

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NominatimClient определяет адрес по координатам через Nominatim reverse API.
// Ответы кешируются в памяти с точностью координат до ~10 м.
type NominatimClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	cache      *gocache.Cache
	metrics    *metrics.Metrics
}

func NewNominatimClient(cfg *config.Config, m *metrics.Metrics) *NominatimClient {
	return &NominatimClient{
		baseURL:   strings.TrimRight(cfg.GeocoderURL, "/"),
		userAgent: cfg.GeocoderUserAgent,
		httpClient: &http.Client{
			Timeout: cfg.GeocoderTimeout,
		},
		cache:   gocache.New(cfg.GeocodeCacheTTL, 2*cfg.GeocodeCacheTTL),
		metrics: m,
	}
}

func cacheKey(lat, lon float64) string {
	return strconv.FormatFloat(lat, 'f', 4, 64) + "," + strconv.FormatFloat(lon, 'f', 4, 64)
}

// Reverse возвращает человекочитаемый адрес точки
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	key := cacheKey(lat, lon)
	if v, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeLookup("hit")
		return v.(string), nil
	}

	label, err := c.fetch(ctx, lat, lon)
	if err != nil {
		c.metrics.GeocodeLookup("error")
		return "", err
	}
	c.metrics.GeocodeLookup("miss")
	c.cache.Set(key, label, gocache.DefaultExpiration)
	return label, nil
}

func (c *NominatimClient) fetch(ctx context.Context, lat, lon float64) (string, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create geocode request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if body.Error != "" || strings.TrimSpace(body.DisplayName) == "" {
		return "", ErrNoAddress
	}
	return body.DisplayName, nil
}

// Disabled используется, когда GEOCODER_URL пуст: адрес никогда не определяется
type Disabled struct{}

func (Disabled) Reverse(context.Context, float64, float64) (string, error) {
	return "", ErrNoAddress
}
