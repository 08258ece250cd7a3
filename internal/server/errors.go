package server

import (
	"bloodsync/internal/blob"
	"bloodsync/internal/core"
	"bloodsync/pkg/domain"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// statusFor maps domain error kinds to HTTP status codes.
func statusFor(err error) int {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, blob.ErrExists),
		errors.As(err, &violation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrIneligibleDonor):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrBackendUnavailable),
		errors.Is(err, core.ErrNoLedgerStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	_ = c.Error(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
