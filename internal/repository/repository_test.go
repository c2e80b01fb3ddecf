package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/pkg/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDB поднимает схему в базе из TEST_DATABASE_URL, иначе тест пропускается.
// Таблицы очищаются перед каждым тестом.
func newTestDB(t *testing.T) *pgxpool.Pool {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	m, err := migrate.New("file://../../migrations", strings.Replace(dsn, "postgres://", "pgx5://", 1))
	require.NoError(t, err)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}
	_, _ = m.Close()

	ctx := context.Background()
	db, err := postgres.NewPostgresDB(ctx, dsn, 4)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	_, err = db.Exec(ctx, `TRUNCATE redeemed_rewards, incidents, users CASCADE;`)
	require.NoError(t, err)
	return db
}

func seedUser(t *testing.T, repo service.UserRepository, role models.Role) *models.User {
	u := &models.User{
		ID:           uuid.New(),
		Name:         "Reporter",
		Email:        uuid.NewString() + "@example.com",
		PasswordHash: "hash",
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.Create(context.Background(), u))
	return u
}

func newIncident(userID uuid.UUID, at time.Time) *models.Incident {
	return &models.Incident{
		IncidentID:  "INC-" + uuid.NewString()[:8],
		Title:       "Car crash",
		Description: "Two cars",
		Type:        models.TypeAccident,
		Severity:    models.SeverityHigh,
		Latitude:    10,
		Longitude:   20,
		Location:    models.DefaultLocationLabel,
		UserID:      userID,
		Status:      models.StatusReported,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

func TestIncidentRepository_CreateLinksDuplicate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	incidents := NewIncidentRepository(db, nil, time.Minute)
	author := seedUser(t, users, models.RoleUser)
	at := time.Now().UTC().Truncate(time.Microsecond)

	primary := newIncident(author.ID, at)
	require.NoError(t, incidents.Create(ctx, primary))

	dup := newIncident(author.ID, at.Add(time.Second))
	dup.DuplicateOf = &primary.ID
	require.NoError(t, incidents.Create(ctx, dup))

	got, err := incidents.GetByID(ctx, primary.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{dup.ID}, got.MergedIncidents)
	assert.True(t, got.UpdatedAt.Equal(dup.CreatedAt))

	// Дубликат не может стать основным для другого сообщения
	third := newIncident(author.ID, at.Add(2*time.Second))
	third.DuplicateOf = &dup.ID
	require.ErrorIs(t, incidents.Create(ctx, third), service.ErrConflict)

	feed, err := incidents.List(ctx, models.IncidentFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, feed, 1)
	assert.Equal(t, primary.ID, feed[0].ID)
}

func TestIncidentRepository_DuplicatesEarnNoPointsOrStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	incidents := NewIncidentRepository(db, nil, time.Minute)
	first := seedUser(t, users, models.RoleUser)
	second := seedUser(t, users, models.RoleUser)
	at := time.Now().UTC().Truncate(time.Microsecond)

	primary := newIncident(first.ID, at)
	require.NoError(t, incidents.Create(ctx, primary))
	dup := newIncident(second.ID, at.Add(time.Second))
	dup.DuplicateOf = &primary.ID
	require.NoError(t, incidents.Create(ctx, dup))

	entries, err := incidents.ListScoreEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, first.ID, entries[0].UserID)
	assert.Equal(t, models.SeverityHigh, entries[0].Severity)

	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := incidents.CountStats(ctx, dayStart, dayStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.IncidentsToday)
	assert.Equal(t, 1, stats.NeedReview)
	assert.Equal(t, 0, stats.ResolvedToday)
}

func TestIncidentRepository_DuplicateNumberConflicts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	incidents := NewIncidentRepository(db, nil, time.Minute)
	author := seedUser(t, users, models.RoleUser)

	first := newIncident(author.ID, time.Now().UTC())
	require.NoError(t, incidents.Create(ctx, first))

	second := newIncident(author.ID, time.Now().UTC())
	second.IncidentID = first.IncidentID
	err := incidents.Create(ctx, second)
	require.ErrorIs(t, err, service.ErrNumberTaken)
	require.ErrorIs(t, err, service.ErrConflict)
}

func TestIncidentRepository_MutatePersistsAndRollsBack(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	incidents := NewIncidentRepository(db, nil, time.Minute)
	author := seedUser(t, users, models.RoleUser)
	voter := seedUser(t, users, models.RoleUser)

	inc := newIncident(author.ID, time.Now().UTC())
	require.NoError(t, incidents.Create(ctx, inc))

	_, err := incidents.Mutate(ctx, inc.ID, func(i *models.Incident) error {
		i.Upvotes = append(i.Upvotes, voter.ID)
		i.InternalNotes = append(i.InternalNotes, models.InternalNote{Note: "call back", AddedBy: voter.ID, AddedAt: time.Now().UTC()})
		return nil
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = incidents.Mutate(ctx, inc.ID, func(i *models.Incident) error {
		i.Status = models.StatusRejected
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := incidents.GetByID(ctx, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{voter.ID}, got.Upvotes)
	require.Len(t, got.InternalNotes, 1)
	assert.Equal(t, "call back", got.InternalNotes[0].Note)
	assert.Equal(t, models.StatusReported, got.Status)

	_, err = incidents.Mutate(ctx, uuid.New(), func(*models.Incident) error { return nil })
	require.ErrorIs(t, err, service.ErrNotFound)
}

func TestIncidentRepository_FindDuplicateCandidates(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	incidents := NewIncidentRepository(db, nil, time.Minute)
	author := seedUser(t, users, models.RoleUser)
	now := time.Now().UTC()

	near := newIncident(author.ID, now.Add(-time.Minute))
	require.NoError(t, incidents.Create(ctx, near))
	old := newIncident(author.ID, now.Add(-time.Hour))
	require.NoError(t, incidents.Create(ctx, old))
	other := newIncident(author.ID, now.Add(-time.Minute))
	other.Type = models.TypeFire
	require.NoError(t, incidents.Create(ctx, other))

	q := models.DuplicateQuery{
		Type:         models.TypeAccident,
		Box:          models.BoundingBox{MinLat: 9.999, MaxLat: 10.001, MinLon: 19.999, MaxLon: 20.001},
		CreatedAfter: now.Add(-5 * time.Minute),
	}
	got, err := incidents.FindDuplicateCandidates(ctx, q)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, near.ID, got[0].ID)
}

func TestUserRepository_RedeemRewardRejectsRepeat(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	users := NewUserRepository(db)
	u := seedUser(t, users, models.RoleUser)

	entry := &models.RedeemedReward{Title: "Coffee", Description: "Free coffee", Points: 50, RedeemedAt: time.Now().UTC()}
	_, err := users.RedeemReward(ctx, u.ID, func(ledger []models.RedeemedReward) (*models.RedeemedReward, error) {
		assert.Empty(t, ledger)
		return entry, nil
	})
	require.NoError(t, err)

	_, err = users.RedeemReward(ctx, u.ID, func(ledger []models.RedeemedReward) (*models.RedeemedReward, error) {
		assert.Len(t, ledger, 1)
		return entry, nil
	})
	require.ErrorIs(t, err, service.ErrConflict)

	ledger, err := users.ListRedeemedRewards(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, ledger, 1)
}

func TestUserRepository_SingleSuperadmin(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	seedUser(t, users, models.RoleSuperadmin)

	second := &models.User{ID: uuid.New(), Name: "Root 2", Email: "root2@example.com", PasswordHash: "h", Role: models.RoleSuperadmin, CreatedAt: time.Now().UTC()}
	require.ErrorIs(t, users.Create(context.Background(), second), service.ErrConflict)
}
