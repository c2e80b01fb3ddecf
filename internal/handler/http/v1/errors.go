package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/sirupsen/logrus"
)

// statusFor сопоставляет класс ошибки сервиса с HTTP-статусом
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError отвечает ошибкой сервиса. Текст внутренних ошибок клиенту не отдается.
func writeError(c *gin.Context, log *logrus.Entry, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Service call failed")
		c.JSON(status, gin.H{"error": "internal server error"})
		return
	}
	log.WithError(err).Warn("Request rejected by service")
	c.JSON(status, gin.H{"error": err.Error()})
}
