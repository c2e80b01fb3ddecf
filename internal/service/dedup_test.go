package service

import (
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var dedupNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func primaryAt(t models.IncidentType, lat, lon float64, age time.Duration) *models.Incident {
	return &models.Incident{
		ID:        uuid.New(),
		Type:      t,
		Latitude:  lat,
		Longitude: lon,
		CreatedAt: dedupNow.Add(-age),
	}
}

func TestSelectPrimary_LinksNearbySameType(t *testing.T) {
	// Подготовка
	existing := primaryAt(models.TypeFire, 10.0, 20.0, time.Minute)
	q := duplicateQuery(models.TypeFire, 10.0005, 20.0005, 0.001, 5*time.Minute, dedupNow)

	// Действие
	primary := selectPrimary(q, 10.0005, 20.0005, []*models.Incident{existing})

	// Проверки
	require.NotNil(t, primary)
	assert.Equal(t, existing.ID, primary.ID)
}

func TestSelectPrimary_NoMatch(t *testing.T) {
	tests := []struct {
		name     string
		existing *models.Incident
		lat, lon float64
		reported models.IncidentType
	}{
		{
			name:     "outside latitude range",
			existing: primaryAt(models.TypeFire, 10.0, 20.0, time.Minute),
			lat:      10.0012,
			lon:      20.0,
			reported: models.TypeFire,
		},
		{
			name:     "outside longitude range",
			existing: primaryAt(models.TypeFire, 10.0, 20.0, time.Minute),
			lat:      10.0,
			lon:      19.9985,
			reported: models.TypeFire,
		},
		{
			name:     "older than window",
			existing: primaryAt(models.TypeFire, 10.0, 20.0, 301*time.Second),
			lat:      10.0,
			lon:      20.0,
			reported: models.TypeFire,
		},
		{
			name:     "different type",
			existing: primaryAt(models.TypeMedical, 10.0, 20.0, time.Minute),
			lat:      10.0,
			lon:      20.0,
			reported: models.TypeFire,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := duplicateQuery(tt.reported, tt.lat, tt.lon, 0.001, 5*time.Minute, dedupNow)
			assert.Nil(t, selectPrimary(q, tt.lat, tt.lon, []*models.Incident{tt.existing}))
		})
	}
}

func TestSelectPrimary_BoundariesInclusive(t *testing.T) {
	// 0.25 и 10.25 точно представимы, граница проверяется без погрешности float
	existing := primaryAt(models.TypeFire, 10.0, 20.0, 5*time.Minute)
	q := duplicateQuery(models.TypeFire, 10.25, 20.25, 0.25, 5*time.Minute, dedupNow)

	primary := selectPrimary(q, 10.25, 20.25, []*models.Incident{existing})

	require.NotNil(t, primary)
	assert.Equal(t, existing.ID, primary.ID)
}

func TestSelectPrimary_SkipsDuplicates(t *testing.T) {
	root := primaryAt(models.TypeFire, 10.0, 20.0, 2*time.Minute)
	dup := primaryAt(models.TypeFire, 10.0001, 20.0001, time.Minute)
	dup.DuplicateOf = &root.ID
	q := duplicateQuery(models.TypeFire, 10.0001, 20.0001, 0.001, 5*time.Minute, dedupNow)

	primary := selectPrimary(q, 10.0001, 20.0001, []*models.Incident{dup, root})

	require.NotNil(t, primary)
	assert.Equal(t, root.ID, primary.ID)
}

func TestSelectPrimary_TieBreak(t *testing.T) {
	t.Run("nearest first", func(t *testing.T) {
		far := primaryAt(models.TypeFire, 10.0008, 20.0, 4*time.Minute)
		near := primaryAt(models.TypeFire, 10.0001, 20.0, time.Minute)
		q := duplicateQuery(models.TypeFire, 10.0, 20.0, 0.001, 5*time.Minute, dedupNow)

		primary := selectPrimary(q, 10.0, 20.0, []*models.Incident{far, near})

		require.NotNil(t, primary)
		assert.Equal(t, near.ID, primary.ID)
	})

	t.Run("earliest when equidistant", func(t *testing.T) {
		later := primaryAt(models.TypeFire, 10.25, 20.0, time.Minute)
		earlier := primaryAt(models.TypeFire, 9.75, 20.0, 3*time.Minute)
		q := duplicateQuery(models.TypeFire, 10.0, 20.0, 0.5, 5*time.Minute, dedupNow)

		primary := selectPrimary(q, 10.0, 20.0, []*models.Incident{later, earlier})

		require.NotNil(t, primary)
		assert.Equal(t, earlier.ID, primary.ID)
	})

	t.Run("lowest id when same place and time", func(t *testing.T) {
		a := primaryAt(models.TypeFire, 10.0, 20.0, time.Minute)
		b := primaryAt(models.TypeFire, 10.0, 20.0, time.Minute)
		a.ID = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
		b.ID = uuid.MustParse("00000000-0000-0000-0000-0000000000bb")
		q := duplicateQuery(models.TypeFire, 10.0, 20.0, 0.001, 5*time.Minute, dedupNow)

		primary := selectPrimary(q, 10.0, 20.0, []*models.Incident{b, a})

		require.NotNil(t, primary)
		assert.Equal(t, a.ID, primary.ID)
	})
}

func TestDedupLockKeys(t *testing.T) {
	t.Run("sorted and scoped by type", func(t *testing.T) {
		q := duplicateQuery(models.TypeFire, 10.0095, 20.0, 0.001, 5*time.Minute, dedupNow)

		keys := dedupLockKeys(models.TypeFire, q.Box)

		assert.Len(t, keys, 4)
		assert.True(t, slices.IsSorted(keys))
		for _, k := range keys {
			assert.Contains(t, k, "dedup:fire:")
		}
	})

	t.Run("reports that can link share a key across a cell border", func(t *testing.T) {
		a := duplicateQuery(models.TypeFire, 10.0099, 20.005, 0.001, 5*time.Minute, dedupNow)
		b := duplicateQuery(models.TypeFire, 10.0101, 20.005, 0.001, 5*time.Minute, dedupNow)

		keysA := dedupLockKeys(models.TypeFire, a.Box)
		keysB := dedupLockKeys(models.TypeFire, b.Box)

		shared := false
		for _, k := range keysA {
			if slices.Contains(keysB, k) {
				shared = true
			}
		}
		assert.True(t, shared)
	})

	t.Run("different types never contend", func(t *testing.T) {
		q := duplicateQuery(models.TypeFire, 10.0, 20.0, 0.001, 5*time.Minute, dedupNow)

		fire := dedupLockKeys(models.TypeFire, q.Box)
		crime := dedupLockKeys(models.TypeCrime, q.Box)

		for _, k := range fire {
			assert.NotContains(t, crime, k)
		}
	})
}
