package service

import (
	"time"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// Машина состояний верификации. Функции чистые и вызываются репозиторием
// внутри транзакции с блокировкой строки (см. IncidentRepository.Mutate).

// applyAdminVerify безусловно подтверждает происшествие от имени администратора.
// Повторный вызов только обновляет verifiedBy/verifiedAt.
func applyAdminVerify(inc *models.Incident, adminID uuid.UUID, now time.Time) {
	inc.IsVerified = true
	inc.VerificationMethod = models.VerificationAdmin
	inc.VerifiedBy = &adminID
	inc.VerifiedAt = &now
}

// toggleUpvote переключает голос пользователя и пересчитывает автоподтверждение.
// Возвращает, стоит ли голос пользователя после переключения.
// Подтверждение администратором снятием голосов не отменяется.
func toggleUpvote(inc *models.Incident, userID uuid.UUID, threshold int, now time.Time) (bool, error) {
	if inc.UserID == userID {
		return false, validationError("you cannot upvote your own incident")
	}

	hasUpvoted := !inc.HasUpvote(userID)
	if hasUpvoted {
		inc.Upvotes = append(inc.Upvotes, userID)
	} else {
		kept := make([]uuid.UUID, 0, len(inc.Upvotes))
		for _, id := range inc.Upvotes {
			if id != userID {
				kept = append(kept, id)
			}
		}
		inc.Upvotes = kept
	}

	count := len(inc.Upvotes)
	switch {
	case count >= threshold && !inc.IsVerified:
		inc.IsVerified = true
		inc.VerificationMethod = models.VerificationUpvote
		inc.VerifiedAt = &now
	case count < threshold && inc.VerificationMethod == models.VerificationUpvote:
		inc.IsVerified = false
		inc.VerificationMethod = models.VerificationNone
		inc.VerifiedAt = nil
	}
	return hasUpvoted, nil
}

// applyStatus меняет рабочий статус. Порядок переходов не ограничивается.
func applyStatus(inc *models.Incident, status models.Status) {
	inc.Status = status
}

// appendNote добавляет внутреннюю заметку в конец журнала
func appendNote(inc *models.Incident, note string, authorID uuid.UUID, now time.Time) {
	inc.InternalNotes = append(inc.InternalNotes, models.InternalNote{
		Note:    note,
		AddedBy: authorID,
		AddedAt: now,
	})
}

// redactForViewer скрывает внутренние заметки от всех, кроме ответственных
func redactForViewer(inc *models.Incident, viewer models.Principal) *models.Incident {
	if viewer.Role.IsResponder() {
		return inc
	}
	out := *inc
	out.InternalNotes = []models.InternalNote{}
	return &out
}
