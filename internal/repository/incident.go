package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/pkg/postgres"
)

// incidentColumns - порядок колонок, который ожидает scanIncident
const incidentColumns = `
	i.id,
	i.incident_id,
	i.title,
	i.description,
	i.type,
	i.severity,
	i.latitude,
	i.longitude,
	i.location,
	i.media_urls,
	i.user_id,
	i.status,
	i.is_verified,
	i.verification_method,
	i.verified_by,
	i.verified_at,
	i.duplicate_of,
	ARRAY(SELECT d.id FROM incidents d WHERE d.duplicate_of = i.id ORDER BY d.created_at, d.id) AS merged_incidents,
	i.upvotes,
	i.internal_notes,
	i.created_at,
	i.updated_at`

type IncidentRepository struct {
	db          *pgxpool.Pool
	redisClient *redis.Client
	cacheTTL    time.Duration
}

func NewIncidentRepository(db *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration) service.IncidentRepository {
	return &IncidentRepository{
		db:          db,
		redisClient: redisClient,
		cacheTTL:    cacheTTL,
	}
}

func scanIncident(row pgx.Row) (*models.Incident, error) {
	incident := &models.Incident{}
	var method string
	var notes []byte
	err := row.Scan(
		&incident.ID,
		&incident.IncidentID,
		&incident.Title,
		&incident.Description,
		&incident.Type,
		&incident.Severity,
		&incident.Latitude,
		&incident.Longitude,
		&incident.Location,
		&incident.MediaURLs,
		&incident.UserID,
		&incident.Status,
		&incident.IsVerified,
		&method,
		&incident.VerifiedBy,
		&incident.VerifiedAt,
		&incident.DuplicateOf,
		&incident.MergedIncidents,
		&incident.Upvotes,
		&notes,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	incident.VerificationMethod = models.VerificationMethod(method)
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &incident.InternalNotes); err != nil {
			return nil, fmt.Errorf("failed to decode internal notes: %w", err)
		}
	}
	normalizeIncident(incident)
	return incident, nil
}

// normalizeIncident заменяет nil-срезы пустыми, чтобы в JSON были [] а не null
func normalizeIncident(incident *models.Incident) {
	if incident.MediaURLs == nil {
		incident.MediaURLs = []string{}
	}
	if incident.MergedIncidents == nil {
		incident.MergedIncidents = []uuid.UUID{}
	}
	if incident.Upvotes == nil {
		incident.Upvotes = []uuid.UUID{}
	}
	if incident.InternalNotes == nil {
		incident.InternalNotes = []models.InternalNote{}
	}
}

func encodeNotes(notes []models.InternalNote) ([]byte, error) {
	if notes == nil {
		notes = []models.InternalNote{}
	}
	b, err := json.Marshal(notes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode internal notes: %w", err)
	}
	return b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Create сохраняет происшествие. Для дубликата основное происшествие блокируется
// в той же транзакции и должно оставаться основным.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	notes, err := encodeNotes(incident.InternalNotes)
	if err != nil {
		return err
	}
	normalizeIncident(incident)

	return postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if incident.DuplicateOf != nil {
			if err := lockPrimary(ctx, tx, *incident.DuplicateOf, incident.CreatedAt); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO incidents (
				incident_id, title, description, type, severity, latitude, longitude, location,
				media_urls, user_id, status, is_verified, verification_method, duplicate_of,
				upvotes, internal_notes, created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			RETURNING id;
		`
		err := tx.QueryRow(ctx, query,
			incident.IncidentID,
			incident.Title,
			incident.Description,
			incident.Type,
			incident.Severity,
			incident.Latitude,
			incident.Longitude,
			incident.Location,
			incident.MediaURLs,
			incident.UserID,
			incident.Status,
			incident.IsVerified,
			string(incident.VerificationMethod),
			incident.DuplicateOf,
			incident.Upvotes,
			notes,
			incident.CreatedAt,
			incident.UpdatedAt,
		).Scan(&incident.ID)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", service.ErrNumberTaken, incident.IncidentID)
			}
			return fmt.Errorf("failed to create incident: %w", err)
		}
		return nil
	})
}

// lockPrimary блокирует основное происшествие и отмечает в нем изменение
func lockPrimary(ctx context.Context, tx pgx.Tx, primaryID uuid.UUID, at time.Time) error {
	var duplicateOf *uuid.UUID
	err := tx.QueryRow(ctx, `SELECT duplicate_of FROM incidents WHERE id = $1 FOR UPDATE;`, primaryID).Scan(&duplicateOf)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: primary incident %s", service.ErrNotFound, primaryID)
		}
		return fmt.Errorf("failed to lock primary incident: %w", err)
	}
	if duplicateOf != nil {
		return fmt.Errorf("%w: primary incident %s is itself a duplicate of %s", service.ErrConflict, primaryID, *duplicateOf)
	}
	if _, err := tx.Exec(ctx, `UPDATE incidents SET updated_at = $1 WHERE id = $2;`, at, primaryID); err != nil {
		return fmt.Errorf("failed to touch primary incident: %w", err)
	}
	return nil
}

// GetByID возвращает происшествие по его UUID
func (r *IncidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents i WHERE i.id = $1;`
	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: incident with id %s", service.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// List возвращает ленту основных происшествий, новые первыми
func (r *IncidentRepository) List(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	where := []string{"i.duplicate_of IS NULL"}
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != nil {
		where = append(where, "i.status = "+arg(*filter.Status))
	}
	if filter.Type != nil {
		where = append(where, "i.type = "+arg(*filter.Type))
	}
	if filter.Verified != nil {
		where = append(where, "i.is_verified = "+arg(*filter.Verified))
	}
	if b := filter.Box; b != nil {
		where = append(where,
			fmt.Sprintf("i.latitude BETWEEN %s AND %s", arg(b.MinLat), arg(b.MaxLat)),
			fmt.Sprintf("i.longitude BETWEEN %s AND %s", arg(b.MinLon), arg(b.MaxLon)),
		)
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := `SELECT ` + incidentColumns + ` FROM incidents i WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY i.created_at DESC, i.id LIMIT ` + arg(filter.PageSize) + ` OFFSET ` + arg(offset) + `;`

	incidents, err := r.queryIncidents(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	return incidents, nil
}

// FindDuplicateCandidates ищет основные происшествия того же типа в окне по времени и в прямоугольнике
func (r *IncidentRepository) FindDuplicateCandidates(ctx context.Context, q models.DuplicateQuery) ([]*models.Incident, error) {
	query := `SELECT ` + incidentColumns + `
		FROM incidents i
		WHERE
			i.type = $1
			AND i.duplicate_of IS NULL
			AND i.created_at >= $2
			AND i.latitude BETWEEN $3 AND $4
			AND i.longitude BETWEEN $5 AND $6
		ORDER BY i.created_at, i.id;`

	incidents, err := r.queryIncidents(ctx, query,
		q.Type, q.CreatedAfter, q.Box.MinLat, q.Box.MaxLat, q.Box.MinLon, q.Box.MaxLon)
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate candidates: %w", err)
	}
	return incidents, nil
}

func (r *IncidentRepository) queryIncidents(ctx context.Context, query string, args ...any) ([]*models.Incident, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// Mutate читает происшествие под FOR UPDATE, применяет fn и записывает изменяемые поля
func (r *IncidentRepository) Mutate(ctx context.Context, id uuid.UUID, fn func(incident *models.Incident) error) (*models.Incident, error) {
	var result *models.Incident
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		query := `SELECT ` + incidentColumns + ` FROM incidents i WHERE i.id = $1 FOR UPDATE;`
		incident, err := scanIncident(tx.QueryRow(ctx, query, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: incident with id %s", service.ErrNotFound, id)
			}
			return fmt.Errorf("failed to lock incident: %w", err)
		}

		if err := fn(incident); err != nil {
			return err
		}

		notes, err := encodeNotes(incident.InternalNotes)
		if err != nil {
			return err
		}
		update := `
			UPDATE incidents SET
				status = $1,
				is_verified = $2,
				verification_method = $3,
				verified_by = $4,
				verified_at = $5,
				upvotes = $6,
				internal_notes = $7,
				updated_at = $8
			WHERE id = $9;
		`
		_, err = tx.Exec(ctx, update,
			incident.Status,
			incident.IsVerified,
			string(incident.VerificationMethod),
			incident.VerifiedBy,
			incident.VerifiedAt,
			incident.Upvotes,
			notes,
			incident.UpdatedAt,
			incident.ID,
		)
		if err != nil {
			return fmt.Errorf("failed to update incident: %w", err)
		}
		normalizeIncident(incident)
		result = incident
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListScoreEntries возвращает автора, серьезность и дату каждого основного происшествия
func (r *IncidentRepository) ListScoreEntries(ctx context.Context) ([]models.ScoreEntry, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id, severity, created_at FROM incidents WHERE duplicate_of IS NULL;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list score entries: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.ScoreEntry, error) {
		var e models.ScoreEntry
		err := row.Scan(&e.UserID, &e.Severity, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan score entries: %w", err)
	}
	return entries, nil
}

// CountStats считает сводку по основным происшествиям за сутки [dayStart, dayEnd)
func (r *IncidentRepository) CountStats(ctx context.Context, dayStart, dayEnd time.Time) (*models.DashboardStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $1 AND created_at < $2),
			COUNT(*) FILTER (WHERE status = $3),
			COUNT(*) FILTER (WHERE status = $4 AND updated_at >= $1 AND updated_at < $2)
		FROM incidents
		WHERE duplicate_of IS NULL;
	`
	stats := &models.DashboardStats{}
	err := r.db.QueryRow(ctx, query, dayStart, dayEnd, models.StatusReported, models.StatusResolved).
		Scan(&stats.IncidentsToday, &stats.NeedReview, &stats.ResolvedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count dashboard stats: %w", err)
	}
	return stats, nil
}

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}

// GetIncidentFromCache пытается получить происшествие из Redis. Промах - (nil, nil).
func (r *IncidentRepository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	val, err := r.redisClient.Get(ctx, incidentCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	normalizeIncident(incident)
	return incident, nil
}

// SetIncidentCache сохраняет происшествие в Redis на cacheTTL
func (r *IncidentRepository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, incidentCacheKey(incident.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет происшествие из кеша
func (r *IncidentRepository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	if err := r.redisClient.Del(ctx, incidentCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}
