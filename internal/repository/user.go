package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/shenikar/incident_reporting_system/pkg/postgres"
)

const userColumns = `id, name, email, password_hash, role, city, created_at`

type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) service.UserRepository {
	return &UserRepository{db: db}
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.City, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// Create сохраняет пользователя. Занятый email или второй superadmin - ErrConflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, name, email, password_hash, role, city, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`
	_, err := r.db.Exec(ctx, query,
		user.ID, user.Name, user.Email, user.PasswordHash, user.Role, user.City, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %s already exists", service.ErrConflict, user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user with id %s", service.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1;`, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user with email %s", service.ErrNotFound, email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// List возвращает всех пользователей в порядке регистрации
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id;`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return users, nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role models.Role) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1;`, role).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count users by role: %w", err)
	}
	return n, nil
}

func (r *UserRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE users SET role = $1 WHERE id = $2;`, role, id)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: role %s is already assigned", service.ErrConflict, role)
		}
		return fmt.Errorf("failed to update user role: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user with id %s", service.ErrNotFound, id)
	}
	return nil
}

// ListRedeemedRewards возвращает журнал наград пользователя в порядке списания
func (r *UserRepository) ListRedeemedRewards(ctx context.Context, userID uuid.UUID) ([]models.RedeemedReward, error) {
	return listRedeemed(ctx, r.db, userID)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listRedeemed(ctx context.Context, q querier, userID uuid.UUID) ([]models.RedeemedReward, error) {
	rows, err := q.Query(ctx, `
		SELECT title, description, points, redeemed_at
		FROM redeemed_rewards
		WHERE user_id = $1
		ORDER BY redeemed_at, id;`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list redeemed rewards: %w", err)
	}
	ledger, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RedeemedReward, error) {
		var rr models.RedeemedReward
		err := row.Scan(&rr.Title, &rr.Description, &rr.Points, &rr.RedeemedAt)
		return rr, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan redeemed rewards: %w", err)
	}
	return ledger, nil
}

// RedeemReward выполняет fn под блокировкой строки пользователя, поэтому два
// одновременных списания видят журнал друг друга
func (r *UserRepository) RedeemReward(
	ctx context.Context,
	userID uuid.UUID,
	fn func(ledger []models.RedeemedReward) (*models.RedeemedReward, error),
) (*models.RedeemedReward, error) {
	var redeemed *models.RedeemedReward
	err := postgres.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id = $1 FOR UPDATE;`, userID).Scan(&locked); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: user with id %s", service.ErrNotFound, userID)
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		ledger, err := listRedeemed(ctx, tx, userID)
		if err != nil {
			return err
		}

		entry, err := fn(ledger)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO redeemed_rewards (user_id, title, description, points, redeemed_at)
			VALUES ($1, $2, $3, $4, $5);`,
			userID, entry.Title, entry.Description, entry.Points, entry.RedeemedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: reward %q already redeemed", service.ErrConflict, entry.Title)
			}
			return fmt.Errorf("failed to save redeemed reward: %w", err)
		}
		redeemed = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}
