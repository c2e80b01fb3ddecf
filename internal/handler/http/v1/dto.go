package v1

import (
	"time"

	"github.com/google/uuid"
)

// RegisterRequest DTO для регистрации и создания администратора
// @Description DTO для регистрации пользователя
type RegisterRequest struct {
	Name     string `json:"name" validate:"required,min=1,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest DTO для входа
// @Description DTO для входа по email и паролю
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// PromoteRequest DTO для назначения администратора
type PromoteRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// CreateIncidentRequest DTO для создания происшествия. Принимается как JSON
// или как multipart/form-data с файлами в поле media.
// @Description DTO для создания происшествия
type CreateIncidentRequest struct {
	Title       string   `json:"title" form:"title" validate:"required,min=2,max=255"`
	Description string   `json:"description" form:"description" validate:"required"`
	Type        string   `json:"type" form:"type" validate:"required"`
	Severity    string   `json:"severity" form:"severity" validate:"required"`
	Latitude    *float64 `json:"latitude" form:"latitude" validate:"required"`
	Longitude   *float64 `json:"longitude" form:"longitude" validate:"required"`
	Location    string   `json:"location,omitempty" form:"location"`
}

// UpdateStatusRequest DTO для смены рабочего статуса
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

// AddNoteRequest DTO для внутренней заметки
type AddNoteRequest struct {
	Note string `json:"note" validate:"required"`
}

// RedeemRequest DTO для списания баллов на награду
type RedeemRequest struct {
	Title string `json:"title" validate:"required"`
}

// UserResponse DTO пользователя
// @Description DTO пользователя
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	City      string    `json:"city,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuthResponse DTO с токеном доступа
type AuthResponse struct {
	Token string        `json:"token"`
	User  *UserResponse `json:"user"`
}

// NoteResponse DTO внутренней заметки
type NoteResponse struct {
	Note    string    `json:"note"`
	AddedBy uuid.UUID `json:"addedBy"`
	AddedAt time.Time `json:"addedAt"`
}

// IncidentResponse DTO для ответа с информацией о происшествии
// @Description DTO для ответа с информацией о происшествии
type IncidentResponse struct {
	ID                 uuid.UUID      `json:"id"`
	IncidentID         string         `json:"incidentId"`
	Title              string         `json:"title"`
	Description        string         `json:"description"`
	Type               string         `json:"type"`
	Severity           string         `json:"severity"`
	Latitude           float64        `json:"latitude"`
	Longitude          float64        `json:"longitude"`
	Location           string         `json:"location"`
	MediaURLs          []string       `json:"mediaUrls"`
	UserID             uuid.UUID      `json:"userId"`
	Status             string         `json:"status"`
	IsVerified         bool           `json:"isVerified"`
	VerificationMethod *string        `json:"verificationMethod"`
	VerifiedBy         *uuid.UUID     `json:"verifiedBy"`
	VerifiedAt         *time.Time     `json:"verifiedAt"`
	DuplicateOf        *uuid.UUID     `json:"duplicateOf"`
	MergedIncidents    []uuid.UUID    `json:"mergedIncidents"`
	Upvotes            int            `json:"upvotes"`
	HasUpvoted         bool           `json:"hasUpvoted"`
	InternalNotes      []NoteResponse `json:"internalNotes"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// UpvoteResponse DTO результата голосования
type UpvoteResponse struct {
	Upvotes    int  `json:"upvotes"`
	IsVerified bool `json:"isVerified"`
	HasUpvoted bool `json:"hasUpvoted"`
}

// RedeemedRewardResponse DTO записи журнала наград
type RedeemedRewardResponse struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	RedeemedAt  time.Time `json:"redeemedAt"`
}

// ProfileResponse DTO профиля с баллами
// @Description DTO профиля пользователя с баллами и наградами
type ProfileResponse struct {
	User             *UserResponse            `json:"user"`
	TotalPoints      int                      `json:"totalPoints"`
	MonthlyPoints    int                      `json:"monthlyPoints"`
	PointsRemaining  int                      `json:"pointsRemaining"`
	Rank             int                      `json:"rank"`
	TotalUsers       int                      `json:"totalUsers"`
	ReportsThisMonth int                      `json:"reportsThisMonth"`
	RedeemedRewards  []RedeemedRewardResponse `json:"redeemedRewards"`
}

// StandingResponse DTO строки таблицы лидеров
type StandingResponse struct {
	UserID           uuid.UUID `json:"userId"`
	Name             string    `json:"name"`
	Points           int       `json:"points"`
	MonthlyPoints    int       `json:"monthlyPoints"`
	ReportsThisMonth int       `json:"reportsThisMonth"`
	Rank             int       `json:"rank"`
}

// RewardResponse DTO позиции каталога наград
type RewardResponse struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// StatsResponse DTO для ответа со статистикой
// @Description DTO для ответа со статистикой панели ответственных
type StatsResponse struct {
	IncidentsToday   int `json:"incidentsToday"`
	NeedReview       int `json:"needReview"`
	ResolvedToday    int `json:"resolvedToday"`
	TotalActiveUsers int `json:"totalActiveUsers"`
}
