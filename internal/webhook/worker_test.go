package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorker(t *testing.T, url string) *WebhookWorker {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	cfg := &config.Config{
		WebhookURL:        url,
		WebhookSecret:     "hook-secret",
		WebhookTimeout:    time.Second,
		WebhookMaxRetries: 3,
		WebhookBaseDelay:  time.Millisecond,
	}
	return NewWebhookWorker(nil, logger, cfg)
}

func samplePayload(t *testing.T) (WebhookEvent, string) {
	event := WebhookEvent{
		Type:       EventIncidentCreated,
		IncidentID: uuid.New(),
		Reference:  "INC-1-1",
		ActorID:    uuid.New(),
		Timestamp:  time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC),
	}
	b, err := json.Marshal(event)
	require.NoError(t, err)
	return event, string(b)
}

func TestProcessWebhookEvent_SignsAndRetries(t *testing.T) {
	event, payload := samplePayload(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, payload, string(body))

		mac := hmac.New(sha256.New, []byte("hook-secret"))
		mac.Write(body)
		assert.Equal(t, hex.EncodeToString(mac.Sum(nil)), r.Header.Get("X-Webhook-Signature"))

		// Первые две попытки отклоняются
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	newTestWorker(t, server.URL).processWebhookEvent(context.Background(), event, payload)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestProcessWebhookEvent_GivesUpAfterMaxRetries(t *testing.T) {
	event, payload := samplePayload(t)
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	newTestWorker(t, server.URL).processWebhookEvent(context.Background(), event, payload)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestProcessWebhookEvent_StopsOnCancel(t *testing.T) {
	event, payload := samplePayload(t)
	var calls int32
	ctx, cancel := context.WithCancel(context.Background())
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		cancel()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	worker := newTestWorker(t, server.URL)
	worker.cfg.WebhookBaseDelay = time.Hour
	worker.processWebhookEvent(ctx, event, payload)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestProcessWebhookEvent_NoURL(t *testing.T) {
	event, payload := samplePayload(t)
	// Без адреса доставка пропускается, запросов нет
	newTestWorker(t, "").processWebhookEvent(context.Background(), event, payload)
}

func TestRedisWebhookPublisher_Publish(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Del(ctx, webhookQueueKey).Err())

	event, _ := samplePayload(t)
	require.NoError(t, NewRedisWebhookPublisher(client).Publish(ctx, event))

	raw, err := client.RPop(ctx, webhookQueueKey).Result()
	require.NoError(t, err)
	var got WebhookEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, event.IncidentID, got.IncidentID)
	assert.Equal(t, EventIncidentCreated, got.Type)
}
