package service

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"
)

func newTestAuthService(t *testing.T) (*authService, *mocks.MockUserRepository, *mocks.MockTokenIssuer) {
	ctrl := gomock.NewController(t)
	usersMock := mocks.NewMockUserRepository(ctrl)
	tokensMock := mocks.NewMockTokenIssuer(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})

	svc := NewAuthService(usersMock, tokensMock, logger)
	s := svc.(*authService)
	s.bcryptCost = bcrypt.MinCost
	return s, usersMock, tokensMock
}

func hashed(t *testing.T, password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestRegister(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		// Подготовка
		service, usersMock, tokensMock := newTestAuthService(t)
		ctx := context.Background()
		in := models.RegisterInput{Name: "Asha", Email: "  Asha@Example.com ", Password: "secret1"}

		// Ожидания
		usersMock.EXPECT().
			Create(ctx, gomock.Any()).
			Do(func(_ context.Context, u *models.User) {
				assert.Equal(t, "asha@example.com", u.Email)
				assert.Equal(t, models.RoleUser, u.Role)
				assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("secret1")))
			}).Return(nil).Times(1)
		tokensMock.EXPECT().Issue(gomock.Any()).Return("jwt-token", nil).Times(1)

		// Действие
		result, err := service.Register(ctx, in)

		// Проверки
		require.NoError(t, err)
		assert.Equal(t, "jwt-token", result.Token)
		assert.Equal(t, models.RoleUser, result.User.Role)
		assert.NotEqual(t, uuid.Nil, result.User.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().Create(ctx, gomock.Any()).Return(fmt.Errorf("%w: email already registered", ErrConflict)).Times(1)

		_, err := service.Register(ctx, models.RegisterInput{Name: "Asha", Email: "asha@example.com", Password: "secret1"})

		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("short password", func(t *testing.T) {
		service, _, _ := newTestAuthService(t)

		_, err := service.Register(context.Background(), models.RegisterInput{Name: "Asha", Email: "asha@example.com", Password: "123"})

		require.ErrorIs(t, err, ErrValidation)
	})
}

func TestLogin(t *testing.T) {
	user := &models.User{ID: uuid.New(), Email: "asha@example.com", Role: models.RoleAdmin}

	t.Run("success", func(t *testing.T) {
		service, usersMock, tokensMock := newTestAuthService(t)
		ctx := context.Background()
		u := *user
		u.PasswordHash = hashed(t, "secret1")

		usersMock.EXPECT().GetByEmail(ctx, "asha@example.com").Return(&u, nil).Times(1)
		tokensMock.EXPECT().Issue(models.Principal{ID: u.ID, Role: models.RoleAdmin}).Return("jwt-token", nil).Times(1)

		result, err := service.Login(ctx, models.LoginInput{Email: "ASHA@example.com", Password: "secret1"})

		require.NoError(t, err)
		assert.Equal(t, "jwt-token", result.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()
		u := *user
		u.PasswordHash = hashed(t, "secret1")

		usersMock.EXPECT().GetByEmail(ctx, "asha@example.com").Return(&u, nil).Times(1)

		_, err := service.Login(ctx, models.LoginInput{Email: "asha@example.com", Password: "nope"})

		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unknown email", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().GetByEmail(ctx, "ghost@example.com").Return(nil, fmt.Errorf("%w: user", ErrNotFound)).Times(1)

		_, err := service.Login(ctx, models.LoginInput{Email: "ghost@example.com", Password: "secret1"})

		require.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestSetupSuperadmin(t *testing.T) {
	in := models.RegisterInput{Name: "Root", Email: "root@example.com", Password: "secret1"}

	t.Run("first superadmin", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().CountByRole(ctx, models.RoleSuperadmin).Return(0, nil).Times(1)
		usersMock.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(1)

		user, err := service.SetupSuperadmin(ctx, in)

		require.NoError(t, err)
		assert.Equal(t, models.RoleSuperadmin, user.Role)
	})

	t.Run("already exists", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().CountByRole(ctx, models.RoleSuperadmin).Return(1, nil).Times(1)

		_, err := service.SetupSuperadmin(ctx, in)

		require.ErrorIs(t, err, ErrConflict)
	})
}

func TestCreateAdmin(t *testing.T) {
	superadmin := models.Principal{ID: uuid.New(), Role: models.RoleSuperadmin}
	in := models.RegisterInput{Name: "Ops", Email: "ops@example.com", Password: "secret1"}

	t.Run("superadmin creates admin", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().Create(ctx, gomock.Any()).Return(nil).Times(1)

		user, err := service.CreateAdmin(ctx, superadmin, in)

		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, user.Role)
	})

	t.Run("admin is denied", func(t *testing.T) {
		service, _, _ := newTestAuthService(t)

		_, err := service.CreateAdmin(context.Background(), admin, in)

		require.ErrorIs(t, err, ErrPermissionDenied)
	})
}

func TestPromoteToAdmin(t *testing.T) {
	superadmin := models.Principal{ID: uuid.New(), Role: models.RoleSuperadmin}

	t.Run("promotes user", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()
		user := &models.User{ID: uuid.New(), Email: "asha@example.com", Role: models.RoleUser}

		usersMock.EXPECT().GetByEmail(ctx, "asha@example.com").Return(user, nil).Times(1)
		usersMock.EXPECT().UpdateRole(ctx, user.ID, models.RoleAdmin).Return(nil).Times(1)

		promoted, err := service.PromoteToAdmin(ctx, superadmin, "Asha@example.com")

		require.NoError(t, err)
		assert.Equal(t, models.RoleAdmin, promoted.Role)
	})

	t.Run("already admin", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()
		user := &models.User{ID: uuid.New(), Email: "ops@example.com", Role: models.RoleAdmin}

		usersMock.EXPECT().GetByEmail(ctx, "ops@example.com").Return(user, nil).Times(1)

		_, err := service.PromoteToAdmin(ctx, superadmin, "ops@example.com")

		require.ErrorIs(t, err, ErrConflict)
	})

	t.Run("unknown email", func(t *testing.T) {
		service, usersMock, _ := newTestAuthService(t)
		ctx := context.Background()

		usersMock.EXPECT().GetByEmail(ctx, "ghost@example.com").Return(nil, fmt.Errorf("%w: user", ErrNotFound)).Times(1)

		_, err := service.PromoteToAdmin(ctx, superadmin, "ghost@example.com")

		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("user is denied", func(t *testing.T) {
		service, _, _ := newTestAuthService(t)

		_, err := service.PromoteToAdmin(context.Background(), reporter, "asha@example.com")

		require.ErrorIs(t, err, ErrPermissionDenied)
	})
}
