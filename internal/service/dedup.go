package service

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/shenikar/incident_reporting_system/internal/models"
)

// dedupCellDegrees - шаг сетки для ключей блокировки дедупликации.
// Должен быть не меньше удвоенного радиуса поиска, иначе ключей станет слишком много.
const dedupCellDegrees = 0.01

// duplicateQuery строит условия поиска основного происшествия: тот же тип,
// прямоугольник ±radius градусов и окно по времени создания.
// Прямоугольник в градусах - приближение, к полюсам он сильно сужается по долготе.
func duplicateQuery(t models.IncidentType, lat, lon, radius float64, window time.Duration, now time.Time) models.DuplicateQuery {
	return models.DuplicateQuery{
		Type: t,
		Box: models.BoundingBox{
			MinLat: lat - radius,
			MaxLat: lat + radius,
			MinLon: lon - radius,
			MaxLon: lon + radius,
		},
		CreatedAfter: now.Add(-window),
	}
}

// selectPrimary выбирает основное происшествие среди кандидатов.
// Порядок детерминирован: ближайшее, затем самое раннее, затем с меньшим id.
func selectPrimary(q models.DuplicateQuery, lat, lon float64, candidates []*models.Incident) *models.Incident {
	matched := make([]*models.Incident, 0, len(candidates))
	for _, c := range candidates {
		if q.Matches(c) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	sort.SliceStable(matched, func(i, j int) bool {
		di := squaredDistance(lat, lon, matched[i])
		dj := squaredDistance(lat, lon, matched[j])
		if di != dj {
			return di < dj
		}
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].ID.String() < matched[j].ID.String()
	})
	return matched[0]
}

func squaredDistance(lat, lon float64, inc *models.Incident) float64 {
	dLat := inc.Latitude - lat
	dLon := inc.Longitude - lon
	return dLat*dLat + dLon*dLon
}

// dedupLockKeys возвращает ключи всех ячеек сетки, которые задевает прямоугольник поиска.
// Если два новых сообщения могут оказаться дубликатами друг друга, их прямоугольники
// содержат одну и ту же точку, а значит и общую ячейку. Ключи отсортированы,
// чтобы захват нескольких блокировок не приводил к взаимоблокировке.
func dedupLockKeys(t models.IncidentType, box models.BoundingBox) []string {
	minLat := cellIndex(box.MinLat)
	maxLat := cellIndex(box.MaxLat)
	minLon := cellIndex(box.MinLon)
	maxLon := cellIndex(box.MaxLon)

	keys := make([]string, 0, (maxLat-minLat+1)*(maxLon-minLon+1))
	for la := minLat; la <= maxLat; la++ {
		for lo := minLon; lo <= maxLon; lo++ {
			keys = append(keys, fmt.Sprintf("dedup:%s:%d:%d", t, la, lo))
		}
	}
	slices.Sort(keys)
	return keys
}

func cellIndex(deg float64) int64 {
	return int64(math.Floor(deg / dedupCellDegrees))
}
