package models

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// IsResponder - admin и superadmin обрабатывают происшествия
func (r Role) IsResponder() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	City         string    `json:"city,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal - аутентифицированный пользователь, от имени которого выполняется операция
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// RedeemedReward - запись журнала списания баллов, только добавление
type RedeemedReward struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Points      int       `json:"points"`
	RedeemedAt  time.Time `json:"redeemed_at"`
}

// Reward - позиция каталога наград
type Reward struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Points      int    `json:"points"`
}

// ScoreEntry - минимальные данные происшествия, нужные для подсчета баллов
type ScoreEntry struct {
	UserID    uuid.UUID
	Severity  Severity
	CreatedAt time.Time
}

// UserScore - вычисляемое представление баллов пользователя, нигде не хранится
type UserScore struct {
	UserID           uuid.UUID `json:"user_id"`
	TotalPoints      int       `json:"total_points"`
	MonthlyPoints    int       `json:"monthly_points"`
	PointsRemaining  int       `json:"points_remaining"`
	Rank             int       `json:"rank"`
	TotalUsers       int       `json:"total_users"`
	ReportsThisMonth int       `json:"reports_this_month"`
}

// Profile - пользователь вместе с баллами и журналом наград
type Profile struct {
	User            *User            `json:"user"`
	Score           UserScore        `json:"score"`
	RedeemedRewards []RedeemedReward `json:"redeemed_rewards"`
}

// Standing - строка таблицы лидеров
type Standing struct {
	UserID           uuid.UUID `json:"user_id"`
	Name             string    `json:"name"`
	Points           int       `json:"points"`
	MonthlyPoints    int       `json:"monthly_points"`
	ReportsThisMonth int       `json:"reports_this_month"`
	Rank             int       `json:"rank"`
}
