package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

const (
	webhookQueueKey = "webhook_events"
)

// Типы событий происшествий
const (
	EventIncidentCreated       = "incident.created"
	EventIncidentLinked        = "incident.duplicate_linked"
	EventIncidentVerified      = "incident.verified"
	EventIncidentUnverified    = "incident.unverified"
	EventIncidentStatusChanged = "incident.status_changed"
)

// WebhookEvent - событие по происшествию для внешнего получателя.
// Внутренние заметки в Incident не передаются.
type WebhookEvent struct {
	Type       string           `json:"type"`
	IncidentID uuid.UUID        `json:"incident_id"`
	Reference  string           `json:"reference"`
	ActorID    uuid.UUID        `json:"actor_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Incident   *models.Incident `json:"incident,omitempty"`
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event WebhookEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish кладет событие в левый конец списка, воркер забирает с правого
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event WebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
