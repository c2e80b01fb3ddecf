package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUnverifiedIncident() *models.Incident {
	return &models.Incident{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Status:        models.StatusReported,
		Upvotes:       []uuid.UUID{},
		InternalNotes: []models.InternalNote{},
	}
}

func TestToggleUpvote_OwnerRejected(t *testing.T) {
	inc := newUnverifiedIncident()

	hasUpvoted, err := toggleUpvote(inc, inc.UserID, 1, dedupNow)

	require.ErrorIs(t, err, ErrValidation)
	assert.False(t, hasUpvoted)
	assert.Empty(t, inc.Upvotes)
	assert.False(t, inc.IsVerified)
}

func TestToggleUpvote_VerifiesAndRevokes(t *testing.T) {
	// Подготовка
	inc := newUnverifiedIncident()
	voter := uuid.New()

	// Действие: голос ставится
	hasUpvoted, err := toggleUpvote(inc, voter, 1, dedupNow)

	// Проверки
	require.NoError(t, err)
	assert.True(t, hasUpvoted)
	assert.Equal(t, []uuid.UUID{voter}, inc.Upvotes)
	assert.True(t, inc.IsVerified)
	assert.Equal(t, models.VerificationUpvote, inc.VerificationMethod)
	require.NotNil(t, inc.VerifiedAt)
	assert.Equal(t, dedupNow, *inc.VerifiedAt)

	// Действие: голос снимается
	hasUpvoted, err = toggleUpvote(inc, voter, 1, dedupNow.Add(time.Minute))

	// Проверки
	require.NoError(t, err)
	assert.False(t, hasUpvoted)
	assert.Empty(t, inc.Upvotes)
	assert.False(t, inc.IsVerified)
	assert.Equal(t, models.VerificationNone, inc.VerificationMethod)
	assert.Nil(t, inc.VerifiedAt)
}

func TestToggleUpvote_BelowThresholdStaysUnverified(t *testing.T) {
	inc := newUnverifiedIncident()

	for i := 0; i < 2; i++ {
		_, err := toggleUpvote(inc, uuid.New(), 3, dedupNow)
		require.NoError(t, err)
	}
	assert.Len(t, inc.Upvotes, 2)
	assert.False(t, inc.IsVerified)

	_, err := toggleUpvote(inc, uuid.New(), 3, dedupNow)
	require.NoError(t, err)
	assert.True(t, inc.IsVerified)
	assert.Equal(t, models.VerificationUpvote, inc.VerificationMethod)
}

func TestToggleUpvote_AdminVerificationSurvivesWithdrawal(t *testing.T) {
	// Подготовка
	inc := newUnverifiedIncident()
	voter, admin := uuid.New(), uuid.New()
	_, err := toggleUpvote(inc, voter, 1, dedupNow)
	require.NoError(t, err)
	applyAdminVerify(inc, admin, dedupNow.Add(time.Minute))

	// Действие
	_, err = toggleUpvote(inc, voter, 1, dedupNow.Add(2*time.Minute))

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, inc.Upvotes)
	assert.True(t, inc.IsVerified)
	assert.Equal(t, models.VerificationAdmin, inc.VerificationMethod)
	require.NotNil(t, inc.VerifiedBy)
	assert.Equal(t, admin, *inc.VerifiedBy)
}

func TestToggleUpvote_DoesNotMutateSharedBackingArray(t *testing.T) {
	inc := newUnverifiedIncident()
	a, b := uuid.New(), uuid.New()
	inc.Upvotes = []uuid.UUID{a, b}
	snapshot := inc.Upvotes

	_, err := toggleUpvote(inc, a, 5, dedupNow)

	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{b}, inc.Upvotes)
	assert.Equal(t, []uuid.UUID{a, b}, snapshot)
}

func TestApplyAdminVerify_Idempotent(t *testing.T) {
	inc := newUnverifiedIncident()
	first, second := uuid.New(), uuid.New()

	applyAdminVerify(inc, first, dedupNow)
	applyAdminVerify(inc, second, dedupNow.Add(time.Hour))

	assert.True(t, inc.IsVerified)
	assert.Equal(t, models.VerificationAdmin, inc.VerificationMethod)
	assert.Equal(t, second, *inc.VerifiedBy)
	assert.Equal(t, dedupNow.Add(time.Hour), *inc.VerifiedAt)
}

func TestApplyAdminVerify_OverridesUpvoteMethod(t *testing.T) {
	inc := newUnverifiedIncident()
	_, err := toggleUpvote(inc, uuid.New(), 1, dedupNow)
	require.NoError(t, err)

	applyAdminVerify(inc, uuid.New(), dedupNow)

	assert.Equal(t, models.VerificationAdmin, inc.VerificationMethod)
}

func TestAppendNote_PreservesOrder(t *testing.T) {
	inc := newUnverifiedIncident()
	admin := uuid.New()

	appendNote(inc, "first", admin, dedupNow)
	appendNote(inc, "second", admin, dedupNow.Add(time.Second))

	require.Len(t, inc.InternalNotes, 2)
	assert.Equal(t, "first", inc.InternalNotes[0].Note)
	assert.Equal(t, "second", inc.InternalNotes[1].Note)
	assert.Equal(t, admin, inc.InternalNotes[1].AddedBy)
}

func TestRedactForViewer(t *testing.T) {
	inc := newUnverifiedIncident()
	appendNote(inc, "caller is known", uuid.New(), dedupNow)

	t.Run("user sees no notes", func(t *testing.T) {
		out := redactForViewer(inc, models.Principal{ID: uuid.New(), Role: models.RoleUser})
		assert.Empty(t, out.InternalNotes)
		assert.Len(t, inc.InternalNotes, 1)
	})

	t.Run("admin sees notes", func(t *testing.T) {
		out := redactForViewer(inc, models.Principal{ID: uuid.New(), Role: models.RoleAdmin})
		assert.Len(t, out.InternalNotes, 1)
	})
}
