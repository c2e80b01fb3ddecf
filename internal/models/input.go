package models

import "github.com/google/uuid"

// Входные структуры операций сервиса. Проверяются validator'ом до бизнес-логики.

type CreateIncidentInput struct {
	Title       string       `validate:"required,min=2,max=255"`
	Description string       `validate:"required,max=5000"`
	Type        IncidentType `validate:"required,oneof=accident medical fire infrastructure crime natural_disaster other"`
	Severity    Severity     `validate:"required,oneof=Low Medium High"`
	Latitude    float64      `validate:"latitude"`
	Longitude   float64      `validate:"longitude"`
	Location    string       `validate:"max=500"`
	Media       []MediaUpload
}

type UpdateStatusInput struct {
	IncidentID uuid.UUID `validate:"required"`
	Status     Status    `validate:"required,oneof=Reported Verified 'In Progress' Resolved Rejected"`
}

type AddNoteInput struct {
	IncidentID uuid.UUID `validate:"required"`
	Note       string    `validate:"required,max=2000"`
}

type RegisterInput struct {
	Name     string `validate:"required,min=1,max=100"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6,max=72"`
}

type LoginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type RedeemInput struct {
	Title string `validate:"required"`
}

// UpvoteResult - ответ на переключение голоса
type UpvoteResult struct {
	Upvotes    int  `json:"upvotes"`
	IsVerified bool `json:"is_verified"`
	HasUpvoted bool `json:"has_upvoted"`
}

// AuthResult - выданный токен и пользователь
type AuthResult struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}
