package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/metrics"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/webhook"
	"github.com/sirupsen/logrus"
)

// maxIncidentIDAttempts - сколько раз генерировать публичный номер при коллизии
const maxIncidentIDAttempts = 5

// IncidentRepository определяет контракт для работы с бд происшествий
type IncidentRepository interface {
	// Create сохраняет происшествие. Если задан DuplicateOf, в той же транзакции
	// блокирует основное происшествие и проверяет, что оно все еще основное.
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error)
	FindDuplicateCandidates(ctx context.Context, q models.DuplicateQuery) ([]*models.Incident, error)
	// Mutate читает происшествие с блокировкой строки, применяет fn и сохраняет результат.
	// Ошибка fn откатывает транзакцию и возвращается как есть.
	Mutate(ctx context.Context, id uuid.UUID, fn func(incident *models.Incident) error) (*models.Incident, error)
	ListScoreEntries(ctx context.Context) ([]models.ScoreEntry, error)
	CountStats(ctx context.Context, dayStart, dayEnd time.Time) (*models.DashboardStats, error)

	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// Locker - распределенная блокировка набора ключей. Возвращает функцию освобождения.
type Locker interface {
	Lock(ctx context.Context, keys []string, ttl time.Duration) (func(ctx context.Context) error, error)
}

// MediaStore сохраняет вложения и возвращает путь или URL для отдачи клиенту
type MediaStore interface {
	Save(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Geocoder определяет адрес по координатам
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// IncidentService определяет контракт бизнес-логики происшествий
type IncidentService interface {
	CreateIncident(ctx context.Context, actor models.Principal, in models.CreateIncidentInput) (*models.Incident, error)
	GetIncident(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, actor models.Principal, filter models.IncidentFilter, near *models.GeoRadius) ([]*models.Incident, error)
	ToggleUpvote(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.UpvoteResult, error)
	VerifyIncident(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.Incident, error)
	UpdateStatus(ctx context.Context, actor models.Principal, in models.UpdateStatusInput) (*models.Incident, error)
	AddNote(ctx context.Context, actor models.Principal, in models.AddNoteInput) (*models.Incident, error)
}

type incidentService struct {
	repo      IncidentRepository
	locker    Locker
	media     MediaStore
	geocoder  Geocoder
	publisher webhook.WebhookPublisher
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	cfg       *config.Config
	validate  *validator.Validate
	now       func() time.Time
}

func NewIncidentService(
	repo IncidentRepository,
	locker Locker,
	media MediaStore,
	geocoder Geocoder,
	publisher webhook.WebhookPublisher,
	m *metrics.Metrics,
	logger *logrus.Logger,
	cfg *config.Config,
) IncidentService {
	return &incidentService{
		repo:      repo,
		locker:    locker,
		media:     media,
		geocoder:  geocoder,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// CreateIncident принимает сообщение о происшествии. Поиск основного происшествия и
// запись выполняются под блокировкой ячеек сетки, поэтому два одновременных сообщения
// об одном событии не станут двумя основными.
func (s *incidentService) CreateIncident(ctx context.Context, actor models.Principal, in models.CreateIncidentInput) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "CreateIncident",
		"user_id": actor.ID,
		"type":    in.Type,
	})
	log.Info("Attempting to create a new incident")

	if err := authorize(actor, models.RoleUser, models.RoleAdmin, models.RoleSuperadmin); err != nil {
		return nil, err
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		log.WithError(err).Warn("Invalid incident input")
		return nil, validationError("%v", err)
	}
	if err := validateMedia(in.Media, s.cfg.MediaMaxFiles, s.cfg.MediaMaxFileBytes); err != nil {
		log.WithError(err).Warn("Rejected incident media")
		return nil, err
	}

	now := s.now().UTC()
	incident := &models.Incident{
		Title:           in.Title,
		Description:     in.Description,
		Type:            in.Type,
		Severity:        in.Severity,
		Latitude:        in.Latitude,
		Longitude:       in.Longitude,
		Location:        s.resolveLocation(ctx, in.Location, in.Latitude, in.Longitude),
		UserID:          actor.ID,
		Status:          models.StatusReported,
		MergedIncidents: []uuid.UUID{},
		Upvotes:         []uuid.UUID{},
		InternalNotes:   []models.InternalNote{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	mediaURLs, err := s.storeMedia(ctx, in.Media, now)
	if err != nil {
		log.WithError(err).Error("Failed to store incident media")
		return nil, fmt.Errorf("service: could not store media: %w", err)
	}
	incident.MediaURLs = mediaURLs

	if err := s.linkAndCreate(ctx, incident); err != nil {
		s.discardMedia(ctx, mediaURLs)
		log.WithError(err).Error("Failed to create incident")
		return nil, fmt.Errorf("service: could not create incident: %w", err)
	}

	if incident.DuplicateOf != nil {
		s.invalidateCache(ctx, *incident.DuplicateOf)
		log.WithField("primary_id", *incident.DuplicateOf).Info("Incident linked as duplicate")
		s.publish(ctx, webhook.EventIncidentLinked, actor.ID, incident)
	} else {
		s.publish(ctx, webhook.EventIncidentCreated, actor.ID, incident)
	}
	s.metrics.IncidentCreated(incident.DuplicateOf != nil)

	log.WithField("incident_id", incident.ID).Info("Incident created successfully")
	return incident, nil
}

func (s *incidentService) linkAndCreate(ctx context.Context, incident *models.Incident) error {
	q := duplicateQuery(incident.Type, incident.Latitude, incident.Longitude,
		s.cfg.DuplicateRadiusDegrees, s.cfg.DuplicateWindow, incident.CreatedAt)

	unlock, err := s.locker.Lock(ctx, dedupLockKeys(incident.Type, q.Box), s.cfg.DedupLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire dedup lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WithError(err).Warn("Failed to release dedup lock")
		}
	}()

	candidates, err := s.repo.FindDuplicateCandidates(ctx, q)
	if err != nil {
		return fmt.Errorf("failed to find duplicate candidates: %w", err)
	}
	if primary := selectPrimary(q, incident.Latitude, incident.Longitude, candidates); primary != nil {
		incident.DuplicateOf = &primary.ID
	}

	for attempt := 1; ; attempt++ {
		incident.IncidentID = newIncidentID(incident.CreatedAt)
		err := s.repo.Create(ctx, incident)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNumberTaken) || attempt == maxIncidentIDAttempts {
			return err
		}
		s.logger.WithField("incident_ref", incident.IncidentID).Warn("Incident number collision, regenerating")
	}
}

// newIncidentID формирует публичный номер INC-<миллисекунды>-<0..9999>
func newIncidentID(now time.Time) string {
	return fmt.Sprintf("INC-%d-%d", now.UnixMilli(), rand.Intn(10000))
}

func (s *incidentService) resolveLocation(ctx context.Context, given string, lat, lon float64) string {
	if label := strings.TrimSpace(given); label != "" {
		return label
	}
	label, err := s.geocoder.Reverse(ctx, lat, lon)
	if err != nil || strings.TrimSpace(label) == "" {
		if err != nil {
			s.logger.WithError(err).Warn("Reverse geocoding failed")
		}
		return models.DefaultLocationLabel
	}
	return label
}

// GetIncident получает происшествие по ID, сначала из кеша
func (s *incidentService) GetIncident(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident cache")
	}
	if cached != nil {
		log.Debug("Incident served from cache")
		return redactForViewer(cached, actor), nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}
	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	log.Info("Incident fetched successfully")
	return redactForViewer(incident, actor), nil
}

const maxPageSize = 100

// ListIncidents возвращает ленту основных происшествий, новые первыми
func (s *incidentService) ListIncidents(ctx context.Context, actor models.Principal, filter models.IncidentFilter, near *models.GeoRadius) ([]*models.Incident, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = 20
	}
	filter.PageSize = min(filter.PageSize, maxPageSize)

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      filter.Page,
		"page_size": filter.PageSize,
	})
	log.Info("Listing incidents")

	if filter.Status != nil && !filter.Status.Valid() {
		return nil, validationError("unknown status %q", *filter.Status)
	}
	if filter.Type != nil && !filter.Type.Valid() {
		return nil, validationError("unknown incident type %q", *filter.Type)
	}
	if near != nil {
		box, err := radiusBox(*near)
		if err != nil {
			return nil, err
		}
		filter.Box = &box
	}

	incidents, err := s.repo.List(ctx, filter)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	out := make([]*models.Incident, 0, len(incidents))
	for _, inc := range incidents {
		out = append(out, redactForViewer(inc, actor))
	}
	log.WithField("count", len(out)).Info("Incidents listed successfully")
	return out, nil
}

// radiusBox переводит радиус в километрах в прямоугольник в градусах (111 км на градус широты)
func radiusBox(near models.GeoRadius) (models.BoundingBox, error) {
	if near.RadiusKm <= 0 {
		return models.BoundingBox{}, validationError("radius must be positive")
	}
	if near.Latitude < -90 || near.Latitude > 90 || near.Longitude < -180 || near.Longitude > 180 {
		return models.BoundingBox{}, validationError("coordinates out of range")
	}
	latRange := near.RadiusKm / 111
	box := models.BoundingBox{
		MinLat: near.Latitude - latRange,
		MaxLat: near.Latitude + latRange,
		MinLon: -180,
		MaxLon: 180,
	}
	if cos := math.Cos(near.Latitude * math.Pi / 180); cos > 1e-6 {
		lonRange := near.RadiusKm / (111 * cos)
		box.MinLon = near.Longitude - lonRange
		box.MaxLon = near.Longitude + lonRange
	}
	return box, nil
}

// ToggleUpvote ставит или снимает голос пользователя
func (s *incidentService) ToggleUpvote(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.UpvoteResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "ToggleUpvote",
		"incident_id": id,
		"user_id":     actor.ID,
	})
	log.Info("Toggling upvote")

	if err := authorize(actor, models.RoleUser, models.RoleAdmin, models.RoleSuperadmin); err != nil {
		return nil, err
	}

	var (
		hasUpvoted  bool
		wasVerified bool
	)
	now := s.now().UTC()
	incident, err := s.repo.Mutate(ctx, id, func(inc *models.Incident) error {
		wasVerified = inc.IsVerified
		var err error
		hasUpvoted, err = toggleUpvote(inc, actor.ID, s.cfg.UpvoteThreshold, now)
		if err != nil {
			return err
		}
		inc.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to toggle upvote")
		return nil, fmt.Errorf("service: could not toggle upvote: %w", err)
	}
	s.invalidateCache(ctx, id)
	s.metrics.UpvoteToggled(hasUpvoted)

	switch {
	case !wasVerified && incident.IsVerified:
		s.metrics.Verification(string(models.VerificationUpvote))
		s.publish(ctx, webhook.EventIncidentVerified, actor.ID, incident)
	case wasVerified && !incident.IsVerified:
		s.metrics.Verification("revoked")
		s.publish(ctx, webhook.EventIncidentUnverified, actor.ID, incident)
	}

	log.WithField("has_upvoted", hasUpvoted).Info("Upvote toggled successfully")
	return &models.UpvoteResult{
		Upvotes:    len(incident.Upvotes),
		IsVerified: incident.IsVerified,
		HasUpvoted: hasUpvoted,
	}, nil
}

// VerifyIncident подтверждает происшествие от имени администратора
func (s *incidentService) VerifyIncident(ctx context.Context, actor models.Principal, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "VerifyIncident",
		"incident_id": id,
		"admin_id":    actor.ID,
	})
	log.Info("Verifying incident")

	if err := authorize(actor, responderRoles...); err != nil {
		log.WithError(err).Warn("Verification denied")
		return nil, err
	}

	now := s.now().UTC()
	incident, err := s.repo.Mutate(ctx, id, func(inc *models.Incident) error {
		applyAdminVerify(inc, actor.ID, now)
		inc.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to verify incident")
		return nil, fmt.Errorf("service: could not verify incident: %w", err)
	}
	s.invalidateCache(ctx, id)
	s.metrics.Verification(string(models.VerificationAdmin))
	s.publish(ctx, webhook.EventIncidentVerified, actor.ID, incident)

	log.Info("Incident verified successfully")
	return incident, nil
}

// UpdateStatus меняет рабочий статус происшествия
func (s *incidentService) UpdateStatus(ctx context.Context, actor models.Principal, in models.UpdateStatusInput) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": in.IncidentID,
		"status":      in.Status,
	})
	log.Info("Updating incident status")

	if err := authorize(actor, responderRoles...); err != nil {
		log.WithError(err).Warn("Status update denied")
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%v", err)
	}

	now := s.now().UTC()
	incident, err := s.repo.Mutate(ctx, in.IncidentID, func(inc *models.Incident) error {
		applyStatus(inc, in.Status)
		inc.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to update incident status")
		return nil, fmt.Errorf("service: could not update status: %w", err)
	}
	s.invalidateCache(ctx, in.IncidentID)
	s.publish(ctx, webhook.EventIncidentStatusChanged, actor.ID, incident)

	log.Info("Incident status updated successfully")
	return incident, nil
}

// AddNote добавляет внутреннюю заметку
func (s *incidentService) AddNote(ctx context.Context, actor models.Principal, in models.AddNoteInput) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "AddNote",
		"incident_id": in.IncidentID,
	})
	log.Info("Adding internal note")

	if err := authorize(actor, responderRoles...); err != nil {
		log.WithError(err).Warn("Adding note denied")
		return nil, err
	}
	in.Note = strings.TrimSpace(in.Note)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%v", err)
	}

	now := s.now().UTC()
	incident, err := s.repo.Mutate(ctx, in.IncidentID, func(inc *models.Incident) error {
		appendNote(inc, in.Note, actor.ID, now)
		inc.UpdatedAt = now
		return nil
	})
	if err != nil {
		log.WithError(err).Warn("Failed to add note")
		return nil, fmt.Errorf("service: could not add note: %w", err)
	}
	s.invalidateCache(ctx, in.IncidentID)

	log.WithField("notes", len(incident.InternalNotes)).Info("Note added successfully")
	return incident, nil
}

func (s *incidentService) invalidateCache(ctx context.Context, id uuid.UUID) {
	if err := s.repo.InvalidateIncidentCache(ctx, id); err != nil {
		s.logger.WithError(err).WithField("incident_id", id).Warn("Failed to invalidate incident cache")
	}
}

// publish ставит событие в очередь вебхуков. Ошибка публикации не влияет на результат операции.
func (s *incidentService) publish(ctx context.Context, eventType string, actorID uuid.UUID, incident *models.Incident) {
	event := webhook.WebhookEvent{
		Type:       eventType,
		IncidentID: incident.ID,
		Reference:  incident.IncidentID,
		ActorID:    actorID,
		Timestamp:  s.now().UTC(),
		Incident:   redactForViewer(incident, models.Principal{Role: models.RoleUser}),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("event", eventType).Error("Failed to publish webhook event")
	}
}
