package service

import (
	"errors"
	"fmt"

	"github.com/shenikar/incident_reporting_system/internal/models"
)

// Классы ошибок операций. Сервис и репозиторий оборачивают их через %w,
// HTTP-слой различает их через errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("conflict")
	ErrUnauthenticated  = errors.New("invalid credentials")

	// ErrNumberTaken - публичный номер происшествия уже занят, номер можно сгенерировать заново
	ErrNumberTaken = fmt.Errorf("%w: incident number already taken", ErrConflict)
)

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// authorize проверяет, что роль участника входит в список разрешенных
func authorize(actor models.Principal, roles ...models.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return fmt.Errorf("%w: role %q may not perform this operation", ErrPermissionDenied, actor.Role)
}

var responderRoles = []models.Role{models.RoleAdmin, models.RoleSuperadmin}
