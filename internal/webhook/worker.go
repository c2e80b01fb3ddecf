package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/sirupsen/logrus"
)

// popTimeout ограничивает ожидание BRPOP, чтобы воркер замечал остановку
const popTimeout = 5 * time.Second

// WebhookWorker - структура для обработки и отправки вебхуков
type WebhookWorker struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	cfg         *config.Config
	httpClient  *http.Client
}

// NewWebhookWorker создает новый WebhookWorker
func NewWebhookWorker(redisClient *redis.Client, logger *logrus.Logger, cfg *config.Config) *WebhookWorker {
	return &WebhookWorker{
		redisClient: redisClient,
		logger:      logger,
		cfg:         cfg,
		httpClient: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
	}
}

// Start запускает горутину для обработки очереди вебхуков
func (w *WebhookWorker) Start(ctx context.Context) {
	w.logger.Info("Starting webhook worker...")
	go func() {
		for {
			if ctx.Err() != nil {
				w.logger.Info("Stopping webhook worker.")
				return
			}

			result, err := w.redisClient.BRPop(ctx, popTimeout, webhookQueueKey).Result()
			if err != nil {
				if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
					continue
				}
				w.logger.WithError(err).Error("Failed to pop webhook event from Redis")
				sleepCtx(ctx, w.cfg.WebhookTimeout)
				continue
			}

			// result[0] - ключ, result[1] - значение
			payload := result[1]
			var event WebhookEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				w.logger.WithError(err).Error("Failed to unmarshal webhook event from Redis")
				continue
			}

			w.processWebhookEvent(ctx, event, payload)
		}
	}()
}

// processWebhookEvent доставляет событие с экспоненциальной задержкой между попытками
func (w *WebhookWorker) processWebhookEvent(ctx context.Context, event WebhookEvent, rawPayload string) {
	log := w.logger.WithFields(logrus.Fields{
		"event_type":  event.Type,
		"incident_id": event.IncidentID,
	})
	log.Debug("Processing webhook event...")

	if w.cfg.WebhookURL == "" {
		log.Warn("Webhook URL is not configured. Skipping webhook delivery.")
		return
	}

	maxRetries := w.cfg.WebhookMaxRetries
	delay := w.cfg.WebhookBaseDelay

	for i := 0; i < maxRetries; i++ {
		err := w.deliver(ctx, rawPayload)
		if err == nil {
			log.Info("Webhook delivered successfully.")
			return
		}
		log.WithError(err).Warnf("Webhook delivery failed. Retries left: %d", maxRetries-1-i)
		if i == maxRetries-1 || !sleepCtx(ctx, delay) {
			break
		}
		delay *= 2
	}

	log.Errorf("Failed to deliver webhook for event after %d retries.", maxRetries)
}

func (w *WebhookWorker) deliver(ctx context.Context, rawPayload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewBufferString(rawPayload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Добавляем HMAC подпись, если WEBHOOK_SECRET задан
	if w.cfg.WebhookSecret != "" {
		req.Header.Set("X-Webhook-Signature", generateHMACSHA256(rawPayload, w.cfg.WebhookSecret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	return nil
}

// sleepCtx ждет d или отмены контекста. Возвращает false, если контекст отменен.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
