package service

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// severityPoints - единая таблица баллов за происшествие
var severityPoints = map[models.Severity]int{
	models.SeverityHigh:   50,
	models.SeverityMedium: 30,
	models.SeverityLow:    25,
}

func pointsFor(s models.Severity) int {
	return severityPoints[s]
}

// sameMonth сравнивает календарный месяц и год в UTC
func sameMonth(a, b time.Time) bool {
	a, b = a.UTC(), b.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// buildStandings считает баллы всех пользователей по записям основных происшествий
// и сортирует их по убыванию. При равенстве выше пользователь с меньшим id.
// Записи без известного пользователя игнорируются.
func buildStandings(users []*models.User, entries []models.ScoreEntry, asOf time.Time) []models.Standing {
	index := make(map[uuid.UUID]int, len(users))
	standings := make([]models.Standing, len(users))
	for i, u := range users {
		index[u.ID] = i
		standings[i] = models.Standing{UserID: u.ID, Name: displayName(u)}
	}

	for _, e := range entries {
		i, ok := index[e.UserID]
		if !ok {
			continue
		}
		p := pointsFor(e.Severity)
		standings[i].Points += p
		if sameMonth(e.CreatedAt, asOf) {
			standings[i].MonthlyPoints += p
			standings[i].ReportsThisMonth++
		}
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Points != standings[j].Points {
			return standings[i].Points > standings[j].Points
		}
		return standings[i].UserID.String() < standings[j].UserID.String()
	})
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings
}

// computeUserScore собирает представление баллов пользователя из таблицы лидеров и журнала наград
func computeUserScore(userID uuid.UUID, standings []models.Standing, ledger []models.RedeemedReward) (models.UserScore, error) {
	for _, s := range standings {
		if s.UserID != userID {
			continue
		}
		return models.UserScore{
			UserID:           userID,
			TotalPoints:      s.Points,
			MonthlyPoints:    s.MonthlyPoints,
			PointsRemaining:  s.Points - redeemedTotal(ledger),
			Rank:             s.Rank,
			TotalUsers:       len(standings),
			ReportsThisMonth: s.ReportsThisMonth,
		}, nil
	}
	return models.UserScore{}, fmt.Errorf("%w: user %s", ErrNotFound, userID)
}

func redeemedTotal(ledger []models.RedeemedReward) int {
	sum := 0
	for _, r := range ledger {
		sum += r.Points
	}
	return sum
}

// checkRedemption проверяет, можно ли списать награду: название еще не получено
// и остатка баллов хватает
func checkRedemption(reward models.Reward, totalPoints int, ledger []models.RedeemedReward) error {
	for _, r := range ledger {
		if r.Title == reward.Title {
			return conflictError("reward %q already redeemed", reward.Title)
		}
	}
	remaining := totalPoints - redeemedTotal(ledger)
	if reward.Points > remaining {
		return conflictError("not enough points: %d required, %d available", reward.Points, remaining)
	}
	return nil
}

func displayName(u *models.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// rewardCatalog - фиксированный каталог наград
var rewardCatalog = []models.Reward{
	{Title: "₹50 Mobile Recharge", Description: "Instant prepaid mobile recharge.", Points: 300},
	{Title: "₹100 Mobile Recharge", Description: "Instant prepaid mobile recharge.", Points: 600},
	{Title: "₹50 Amazon Voucher", Description: "Amazon gift voucher worth ₹50.", Points: 800},
	{Title: "₹100 Amazon Voucher", Description: "Amazon gift voucher worth ₹100.", Points: 1200},
	{Title: "Power Bank", Description: "Portable charger for everyday use.", Points: 2000},
	{Title: "Bluetooth Speaker", Description: "Compact wireless speaker.", Points: 2500},
	{Title: "Wireless Mouse", Description: "Ergonomic wireless mouse.", Points: 3000},
	{Title: "Wireless Earbuds", Description: "True wireless earbuds.", Points: 4500},
	{Title: "₹500 Amazon Voucher", Description: "Amazon gift voucher worth ₹500.", Points: 5000},
	{Title: "Smart Band", Description: "Fitness tracker with health monitoring.", Points: 8000},
	{Title: "₹1000 Amazon Voucher", Description: "Amazon gift voucher worth ₹1000.", Points: 12000},
}

func findReward(title string) (models.Reward, bool) {
	for _, r := range rewardCatalog {
		if r.Title == title {
			return r, true
		}
	}
	return models.Reward{}, false
}
