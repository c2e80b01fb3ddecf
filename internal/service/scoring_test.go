package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var scoringNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func fixedUser(suffix string) *models.User {
	return &models.User{
		ID:   uuid.MustParse("00000000-0000-0000-0000-0000000000" + suffix),
		Name: "user-" + suffix,
	}
}

func highEntries(userID uuid.UUID, n int, at time.Time) []models.ScoreEntry {
	out := make([]models.ScoreEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.ScoreEntry{UserID: userID, Severity: models.SeverityHigh, CreatedAt: at})
	}
	return out
}

func TestBuildStandings_RanksWithTieBreak(t *testing.T) {
	// Подготовка: баллы 100, 300, 300, 50
	a, b, c, d := fixedUser("0a"), fixedUser("0b"), fixedUser("0c"), fixedUser("0d")
	var entries []models.ScoreEntry
	entries = append(entries, highEntries(a.ID, 2, scoringNow)...)
	entries = append(entries, highEntries(c.ID, 6, scoringNow)...)
	entries = append(entries, highEntries(b.ID, 6, scoringNow)...)
	entries = append(entries, highEntries(d.ID, 1, scoringNow)...)

	// Действие
	standings := buildStandings([]*models.User{a, b, c, d}, entries, scoringNow)

	// Проверки
	require.Len(t, standings, 4)
	ranks := map[uuid.UUID]int{}
	points := map[uuid.UUID]int{}
	for _, s := range standings {
		ranks[s.UserID] = s.Rank
		points[s.UserID] = s.Points
	}
	assert.Equal(t, 100, points[a.ID])
	assert.Equal(t, 300, points[b.ID])
	assert.Equal(t, 300, points[c.ID])
	assert.Equal(t, 50, points[d.ID])
	assert.Equal(t, 1, ranks[b.ID])
	assert.Equal(t, 2, ranks[c.ID])
	assert.Equal(t, 3, ranks[a.ID])
	assert.Equal(t, 4, ranks[d.ID])
}

func TestBuildStandings_PointTable(t *testing.T) {
	u := fixedUser("01")
	entries := []models.ScoreEntry{
		{UserID: u.ID, Severity: models.SeverityHigh, CreatedAt: scoringNow},
		{UserID: u.ID, Severity: models.SeverityMedium, CreatedAt: scoringNow},
		{UserID: u.ID, Severity: models.SeverityLow, CreatedAt: scoringNow},
	}

	standings := buildStandings([]*models.User{u}, entries, scoringNow)

	require.Len(t, standings, 1)
	assert.Equal(t, 105, standings[0].Points)
}

func TestBuildStandings_MonthlyUsesCalendarMonthAndYear(t *testing.T) {
	u := fixedUser("01")
	entries := []models.ScoreEntry{
		{UserID: u.ID, Severity: models.SeverityHigh, CreatedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
		{UserID: u.ID, Severity: models.SeverityMedium, CreatedAt: time.Date(2025, 5, 31, 23, 59, 59, 0, time.UTC)},
		{UserID: u.ID, Severity: models.SeverityLow, CreatedAt: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)},
	}

	standings := buildStandings([]*models.User{u}, entries, scoringNow)

	require.Len(t, standings, 1)
	assert.Equal(t, 105, standings[0].Points)
	assert.Equal(t, 50, standings[0].MonthlyPoints)
	assert.Equal(t, 1, standings[0].ReportsThisMonth)
}

func TestBuildStandings_UsersWithoutReportsAndUnknownOwners(t *testing.T) {
	active, idle := fixedUser("01"), fixedUser("02")
	entries := append(highEntries(active.ID, 1, scoringNow), highEntries(uuid.New(), 10, scoringNow)...)

	standings := buildStandings([]*models.User{idle, active}, entries, scoringNow)

	require.Len(t, standings, 2)
	assert.Equal(t, active.ID, standings[0].UserID)
	assert.Equal(t, 50, standings[0].Points)
	assert.Equal(t, idle.ID, standings[1].UserID)
	assert.Equal(t, 0, standings[1].Points)
	assert.Equal(t, 2, standings[1].Rank)
}

func TestBuildStandings_Idempotent(t *testing.T) {
	a, b := fixedUser("0a"), fixedUser("0b")
	entries := append(highEntries(a.ID, 3, scoringNow), highEntries(b.ID, 3, scoringNow)...)
	users := []*models.User{a, b}

	first := buildStandings(users, entries, scoringNow)
	second := buildStandings(users, entries, scoringNow)

	assert.Equal(t, first, second)
}

func TestComputeUserScore(t *testing.T) {
	a, b := fixedUser("0a"), fixedUser("0b")
	entries := append(highEntries(a.ID, 4, scoringNow), highEntries(b.ID, 1, scoringNow)...)
	standings := buildStandings([]*models.User{a, b}, entries, scoringNow)
	ledger := []models.RedeemedReward{{Title: "₹50 Mobile Recharge", Points: 150}}

	t.Run("existing user", func(t *testing.T) {
		score, err := computeUserScore(a.ID, standings, ledger)

		require.NoError(t, err)
		assert.Equal(t, 200, score.TotalPoints)
		assert.Equal(t, 200, score.MonthlyPoints)
		assert.Equal(t, 50, score.PointsRemaining)
		assert.Equal(t, 1, score.Rank)
		assert.Equal(t, 2, score.TotalUsers)
		assert.Equal(t, 4, score.ReportsThisMonth)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := computeUserScore(uuid.New(), standings, nil)

		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCheckRedemption(t *testing.T) {
	reward, ok := findReward("₹50 Mobile Recharge")
	require.True(t, ok)

	t.Run("enough points", func(t *testing.T) {
		assert.NoError(t, checkRedemption(reward, 300, nil))
	})

	t.Run("already redeemed", func(t *testing.T) {
		ledger := []models.RedeemedReward{{Title: reward.Title, Points: reward.Points}}
		err := checkRedemption(reward, 10000, ledger)
		require.ErrorIs(t, err, ErrConflict)
		assert.ErrorContains(t, err, "already redeemed")
	})

	t.Run("insufficient after earlier redemptions", func(t *testing.T) {
		ledger := []models.RedeemedReward{{Title: "₹100 Mobile Recharge", Points: 600}}
		err := checkRedemption(reward, 800, ledger)
		require.ErrorIs(t, err, ErrConflict)
		assert.ErrorContains(t, err, "not enough points")
	})
}

func TestFindReward(t *testing.T) {
	_, ok := findReward("Smart Band")
	assert.True(t, ok)

	_, ok = findReward("Yacht")
	assert.False(t, ok)

	assert.Len(t, rewardCatalog, 11)
}
