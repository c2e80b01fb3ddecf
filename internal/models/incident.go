package models

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// IncidentType - тип происшествия
type IncidentType string

const (
	TypeAccident        IncidentType = "accident"
	TypeMedical         IncidentType = "medical"
	TypeFire            IncidentType = "fire"
	TypeInfrastructure  IncidentType = "infrastructure"
	TypeCrime           IncidentType = "crime"
	TypeNaturalDisaster IncidentType = "natural_disaster"
	TypeOther           IncidentType = "other"
)

// IncidentTypes перечисляет все допустимые типы
var IncidentTypes = []IncidentType{
	TypeAccident, TypeMedical, TypeFire, TypeInfrastructure, TypeCrime, TypeNaturalDisaster, TypeOther,
}

func (t IncidentType) Valid() bool {
	for _, v := range IncidentTypes {
		if v == t {
			return true
		}
	}
	return false
}

// Severity - серьезность происшествия
type Severity string

const (
	SeverityLow    Severity = "Low"
	SeverityMedium Severity = "Medium"
	SeverityHigh   Severity = "High"
)

func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Status - рабочий статус обработки происшествия, не связан с верификацией
type Status string

const (
	StatusReported   Status = "Reported"
	StatusVerified   Status = "Verified"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
	StatusRejected   Status = "Rejected"
)

var Statuses = []Status{StatusReported, StatusVerified, StatusInProgress, StatusResolved, StatusRejected}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if v == s {
			return true
		}
	}
	return false
}

// VerificationMethod - кем подтверждено происшествие. Пустое значение означает "не подтверждено".
type VerificationMethod string

const (
	VerificationNone      VerificationMethod = ""
	VerificationAdmin     VerificationMethod = "admin"
	VerificationUpvote    VerificationMethod = "upvote"
	VerificationAutomatic VerificationMethod = "automatic"
)

// DefaultLocationLabel подставляется, если адрес не удалось определить
const DefaultLocationLabel = "Location not provided"

// InternalNote - заметка модератора, видна только admin/superadmin
type InternalNote struct {
	Note    string    `json:"note"`
	AddedBy uuid.UUID `json:"added_by"`
	AddedAt time.Time `json:"added_at"`
}

type Incident struct {
	ID          uuid.UUID    `json:"id"`
	IncidentID  string       `json:"incident_id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Type        IncidentType `json:"type"`
	Severity    Severity     `json:"severity"`
	Latitude    float64      `json:"latitude"`
	Longitude   float64      `json:"longitude"`
	Location    string       `json:"location"`
	MediaURLs   []string     `json:"media_urls"`
	UserID      uuid.UUID    `json:"user_id"`
	Status      Status       `json:"status"`

	IsVerified         bool               `json:"is_verified"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	VerifiedBy         *uuid.UUID         `json:"verified_by,omitempty"`
	VerifiedAt         *time.Time         `json:"verified_at,omitempty"`

	// DuplicateOf задан только у дубликатов; MergedIncidents заполнен только у основных происшествий
	DuplicateOf     *uuid.UUID  `json:"duplicate_of,omitempty"`
	MergedIncidents []uuid.UUID `json:"merged_incidents"`

	Upvotes       []uuid.UUID    `json:"upvotes"`
	InternalNotes []InternalNote `json:"internal_notes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDuplicate сообщает, привязано ли происшествие к основному
func (i *Incident) IsDuplicate() bool {
	return i.DuplicateOf != nil
}

// HasUpvote проверяет, голосовал ли пользователь за происшествие
func (i *Incident) HasUpvote(userID uuid.UUID) bool {
	for _, id := range i.Upvotes {
		if id == userID {
			return true
		}
	}
	return false
}

// IncidentFilter - параметры выборки ленты происшествий. Дубликаты исключаются всегда.
type IncidentFilter struct {
	Status   *Status
	Type     *IncidentType
	Verified *bool
	Box      *BoundingBox
	Page     int
	PageSize int
}

// GeoRadius - фильтр ленты "рядом с точкой", радиус в километрах
type GeoRadius struct {
	Latitude  float64
	Longitude float64
	RadiusKm  float64
}

// BoundingBox - прямоугольник в градусах, границы включительно
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

func (b BoundingBox) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// DuplicateQuery описывает поиск кандидатов в основные происшествия
type DuplicateQuery struct {
	Type         IncidentType
	Box          BoundingBox
	CreatedAfter time.Time
}

// Matches - эталонный предикат поиска дубликатов; репозиторий выполняет его же в SQL
func (q DuplicateQuery) Matches(inc *Incident) bool {
	return inc.Type == q.Type &&
		q.Box.Contains(inc.Latitude, inc.Longitude) &&
		!inc.CreatedAt.Before(q.CreatedAfter) &&
		inc.DuplicateOf == nil
}

// DashboardStats - сводка для панели ответственных
type DashboardStats struct {
	IncidentsToday   int `json:"incidents_today"`
	NeedReview       int `json:"need_review"`
	ResolvedToday    int `json:"resolved_today"`
	TotalActiveUsers int `json:"total_active_users"`
}

// MediaUpload - файл, приложенный к сообщению о происшествии
type MediaUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Open        func() (io.ReadCloser, error)
}
