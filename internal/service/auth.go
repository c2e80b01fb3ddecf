package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenIssuer выпускает токен доступа для пользователя
type TokenIssuer interface {
	Issue(p models.Principal) (string, error)
}

// AuthService определяет контракт регистрации, входа и управления ролями
type AuthService interface {
	Register(ctx context.Context, in models.RegisterInput) (*models.AuthResult, error)
	Login(ctx context.Context, in models.LoginInput) (*models.AuthResult, error)
	SetupSuperadmin(ctx context.Context, in models.RegisterInput) (*models.User, error)
	CreateAdmin(ctx context.Context, actor models.Principal, in models.RegisterInput) (*models.User, error)
	PromoteToAdmin(ctx context.Context, actor models.Principal, email string) (*models.User, error)
}

type authService struct {
	users      UserRepository
	tokens     TokenIssuer
	logger     *logrus.Logger
	validate   *validator.Validate
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(users UserRepository, tokens TokenIssuer, logger *logrus.Logger) AuthService {
	return &authService{
		users:      users,
		tokens:     tokens,
		logger:     logger,
		validate:   validator.New(),
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register создает пользователя с ролью user и сразу выдает токен
func (s *authService) Register(ctx context.Context, in models.RegisterInput) (*models.AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	log := s.logger.WithFields(logrus.Fields{
		"service": "auth",
		"method":  "Register",
		"email":   in.Email,
	})
	log.Info("Registering user")

	user, err := s.createUser(ctx, in, models.RoleUser)
	if err != nil {
		log.WithError(err).Warn("Registration failed")
		return nil, err
	}
	token, err := s.tokens.Issue(models.Principal{ID: user.ID, Role: user.Role})
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		return nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User registered successfully")
	return &models.AuthResult{Token: token, User: user}, nil
}

// Login проверяет пароль и выдает токен. Неизвестный email и неверный пароль неразличимы.
func (s *authService) Login(ctx context.Context, in models.LoginInput) (*models.AuthResult, error) {
	in.Email = normalizeEmail(in.Email)
	log := s.logger.WithFields(logrus.Fields{
		"service": "auth",
		"method":  "Login",
		"email":   in.Email,
	})
	log.Info("Login attempt")

	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%v", err)
	}

	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("Login with unknown email")
			return nil, ErrUnauthenticated
		}
		log.WithError(err).Error("Failed to get user by email")
		return nil, fmt.Errorf("service: could not get user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		log.Warn("Login with wrong password")
		return nil, ErrUnauthenticated
	}

	token, err := s.tokens.Issue(models.Principal{ID: user.ID, Role: user.Role})
	if err != nil {
		log.WithError(err).Error("Failed to issue token")
		return nil, fmt.Errorf("service: could not issue token: %w", err)
	}

	log.WithField("user_id", user.ID).Info("User logged in successfully")
	return &models.AuthResult{Token: token, User: user}, nil
}

// SetupSuperadmin создает единственного superadmin. Вызывается один раз при развертывании.
func (s *authService) SetupSuperadmin(ctx context.Context, in models.RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	log := s.logger.WithFields(logrus.Fields{
		"service": "auth",
		"method":  "SetupSuperadmin",
		"email":   in.Email,
	})
	log.Info("Setting up superadmin")

	count, err := s.users.CountByRole(ctx, models.RoleSuperadmin)
	if err != nil {
		log.WithError(err).Error("Failed to count superadmins")
		return nil, fmt.Errorf("service: could not count superadmins: %w", err)
	}
	if count > 0 {
		log.Warn("Superadmin already exists")
		return nil, conflictError("superadmin already exists")
	}

	// Второго superadmin при гонке не даст создать частичный уникальный индекс
	user, err := s.createUser(ctx, in, models.RoleSuperadmin)
	if err != nil {
		log.WithError(err).Warn("Superadmin setup failed")
		return nil, err
	}

	log.WithField("user_id", user.ID).Info("Superadmin created successfully")
	return user, nil
}

// CreateAdmin создает администратора. Доступно только superadmin.
func (s *authService) CreateAdmin(ctx context.Context, actor models.Principal, in models.RegisterInput) (*models.User, error) {
	in.Email = normalizeEmail(in.Email)
	log := s.logger.WithFields(logrus.Fields{
		"service": "auth",
		"method":  "CreateAdmin",
		"email":   in.Email,
	})
	log.Info("Creating admin")

	if err := authorize(actor, models.RoleSuperadmin); err != nil {
		log.WithError(err).Warn("Admin creation denied")
		return nil, err
	}
	user, err := s.createUser(ctx, in, models.RoleAdmin)
	if err != nil {
		log.WithError(err).Warn("Admin creation failed")
		return nil, err
	}

	log.WithField("user_id", user.ID).Info("Admin created successfully")
	return user, nil
}

// PromoteToAdmin повышает существующего пользователя до admin. Доступно только superadmin.
func (s *authService) PromoteToAdmin(ctx context.Context, actor models.Principal, email string) (*models.User, error) {
	email = normalizeEmail(email)
	log := s.logger.WithFields(logrus.Fields{
		"service": "auth",
		"method":  "PromoteToAdmin",
		"email":   email,
	})
	log.Info("Promoting user to admin")

	if err := authorize(actor, models.RoleSuperadmin); err != nil {
		log.WithError(err).Warn("Promotion denied")
		return nil, err
	}
	if email == "" {
		return nil, validationError("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		log.WithError(err).Warn("Failed to get user by email")
		return nil, fmt.Errorf("service: could not get user: %w", err)
	}
	if user.Role.IsResponder() {
		return nil, conflictError("user already has role %q", user.Role)
	}
	if err := s.users.UpdateRole(ctx, user.ID, models.RoleAdmin); err != nil {
		log.WithError(err).Error("Failed to update role")
		return nil, fmt.Errorf("service: could not update role: %w", err)
	}
	user.Role = models.RoleAdmin

	log.WithField("user_id", user.ID).Info("User promoted successfully")
	return user, nil
}

func (s *authService) createUser(ctx context.Context, in models.RegisterInput, role models.Role) (*models.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError("%v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("service: could not hash password: %w", err)
	}
	user := &models.User{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service: could not create user: %w", err)
	}
	return user, nil
}
