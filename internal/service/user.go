package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/metrics"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
)

// UserRepository определяет контракт для работы с пользователями и журналом наград
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	CountByRole(ctx context.Context, role models.Role) (int, error)
	UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error
	ListRedeemedRewards(ctx context.Context, userID uuid.UUID) ([]models.RedeemedReward, error)
	// RedeemReward блокирует строку пользователя, передает fn текущий журнал
	// и дописывает возвращенную запись. Ошибка fn откатывает транзакцию.
	RedeemReward(ctx context.Context, userID uuid.UUID, fn func(ledger []models.RedeemedReward) (*models.RedeemedReward, error)) (*models.RedeemedReward, error)
}

// UserService определяет контракт баллов, наград и сводной статистики
type UserService interface {
	GetProfile(ctx context.Context, actor models.Principal) (*models.Profile, error)
	Leaderboard(ctx context.Context, actor models.Principal, limit int) ([]models.Standing, error)
	ListRewards(ctx context.Context) []models.Reward
	RedeemReward(ctx context.Context, actor models.Principal, in models.RedeemInput) (*models.Profile, error)
	DashboardStats(ctx context.Context, actor models.Principal) (*models.DashboardStats, error)
}

type userService struct {
	users     UserRepository
	incidents IncidentRepository
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	cfg       *config.Config
	validate  *validator.Validate
	now       func() time.Time
}

func NewUserService(users UserRepository, incidents IncidentRepository, m *metrics.Metrics, logger *logrus.Logger, cfg *config.Config) UserService {
	return &userService{
		users:     users,
		incidents: incidents,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// standings пересчитывает таблицу лидеров на момент now. Баллы нигде не кешируются.
// При citizensOnly в таблицу попадают только пользователи с ролью user.
func (s *userService) standings(ctx context.Context, now time.Time, citizensOnly bool) ([]models.Standing, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if citizensOnly {
		citizens := make([]*models.User, 0, len(users))
		for _, u := range users {
			if u.Role == models.RoleUser {
				citizens = append(citizens, u)
			}
		}
		users = citizens
	}
	entries, err := s.incidents.ListScoreEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list score entries: %w", err)
	}
	return buildStandings(users, entries, now), nil
}

// GetProfile возвращает пользователя, его баллы и журнал наград
func (s *userService) GetProfile(ctx context.Context, actor models.Principal) (*models.Profile, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "GetProfile",
		"user_id": actor.ID,
	})
	log.Info("Fetching profile")

	user, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		log.WithError(err).Warn("Failed to get user")
		return nil, fmt.Errorf("service: could not get user: %w", err)
	}
	standings, err := s.standings(ctx, s.now().UTC(), false)
	if err != nil {
		log.WithError(err).Error("Failed to compute standings")
		return nil, fmt.Errorf("service: could not compute score: %w", err)
	}
	ledger, err := s.users.ListRedeemedRewards(ctx, actor.ID)
	if err != nil {
		log.WithError(err).Error("Failed to list redeemed rewards")
		return nil, fmt.Errorf("service: could not list rewards: %w", err)
	}
	score, err := computeUserScore(actor.ID, standings, ledger)
	if err != nil {
		return nil, fmt.Errorf("service: could not compute score: %w", err)
	}

	return &models.Profile{User: user, Score: score, RedeemedRewards: ledger}, nil
}

// Leaderboard возвращает первые limit строк таблицы лидеров
func (s *userService) Leaderboard(ctx context.Context, actor models.Principal, limit int) ([]models.Standing, error) {
	if limit < 1 || limit > 100 {
		limit = s.cfg.LeaderboardSize
	}
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "Leaderboard",
		"limit":   limit,
	})
	log.Info("Building leaderboard")

	standings, err := s.standings(ctx, s.now().UTC(), true)
	if err != nil {
		log.WithError(err).Error("Failed to compute standings")
		return nil, fmt.Errorf("service: could not build leaderboard: %w", err)
	}
	if len(standings) > limit {
		standings = standings[:limit]
	}
	return standings, nil
}

// ListRewards возвращает каталог наград
func (s *userService) ListRewards(_ context.Context) []models.Reward {
	out := make([]models.Reward, len(rewardCatalog))
	copy(out, rewardCatalog)
	return out
}

// RedeemReward списывает баллы за награду из каталога
func (s *userService) RedeemReward(ctx context.Context, actor models.Principal, in models.RedeemInput) (*models.Profile, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "RedeemReward",
		"user_id": actor.ID,
		"reward":  in.Title,
	})
	log.Info("Attempting to redeem reward")

	in.Title = strings.TrimSpace(in.Title)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%v", err)
	}
	reward, ok := findReward(in.Title)
	if !ok {
		log.Warn("Unknown reward requested")
		return nil, validationError("unknown reward %q", in.Title)
	}

	now := s.now().UTC()
	standings, err := s.standings(ctx, now, false)
	if err != nil {
		log.WithError(err).Error("Failed to compute standings")
		return nil, fmt.Errorf("service: could not compute score: %w", err)
	}
	// Баллы только растут, поэтому итог, посчитанный до блокировки, не завышает баланс
	score, err := computeUserScore(actor.ID, standings, nil)
	if err != nil {
		return nil, fmt.Errorf("service: could not compute score: %w", err)
	}

	_, err = s.users.RedeemReward(ctx, actor.ID, func(ledger []models.RedeemedReward) (*models.RedeemedReward, error) {
		if err := checkRedemption(reward, score.TotalPoints, ledger); err != nil {
			return nil, err
		}
		return &models.RedeemedReward{
			Title:       reward.Title,
			Description: reward.Description,
			Points:      reward.Points,
			RedeemedAt:  now,
		}, nil
	})
	if err != nil {
		log.WithError(err).Warn("Reward redemption rejected")
		return nil, fmt.Errorf("service: could not redeem reward: %w", err)
	}
	s.metrics.RewardRedeemed()

	log.Info("Reward redeemed successfully")
	return s.GetProfile(ctx, actor)
}

// DashboardStats возвращает сводку за текущие сутки UTC
func (s *userService) DashboardStats(ctx context.Context, actor models.Principal) (*models.DashboardStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "user",
		"method":  "DashboardStats",
	})
	log.Info("Fetching dashboard stats")

	if err := authorize(actor, responderRoles...); err != nil {
		log.WithError(err).Warn("Dashboard access denied")
		return nil, err
	}

	dayStart := s.now().UTC().Truncate(24 * time.Hour)
	stats, err := s.incidents.CountStats(ctx, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		log.WithError(err).Error("Failed to count incident stats")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}
	users, err := s.users.CountByRole(ctx, models.RoleUser)
	if err != nil {
		log.WithError(err).Error("Failed to count users")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}
	stats.TotalActiveUsers = users

	log.WithField("stats", *stats).Info("Dashboard stats fetched successfully")
	return stats, nil
}
