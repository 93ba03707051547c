package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"wallet_settlement/internal/repository"
	"wallet_settlement/internal/service"

	"github.com/gin-gonic/gin"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, repository.ErrInvalidAmount),
		errors.Is(err, service.ErrMissingJustification),
		errors.Is(err, service.ErrInvalidWalletType),
		errors.Is(err, service.ErrInvalidSourceType),
		errors.Is(err, service.ErrInvalidPayment),
		errors.Is(err, service.ErrMissingReason),
		errors.Is(err, service.ErrInvalidRange),
		errors.Is(err, service.ErrInvalidStatus),
		errors.Is(err, service.ErrReservedReason):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInsufficientFunds),
		errors.Is(err, repository.ErrAlreadyReviewed),
		errors.Is(err, repository.ErrAlreadyClaimed),
		errors.Is(err, repository.ErrDuplicateReference),
		errors.Is(err, repository.ErrReasonConflict):
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// writeError maps err to a status. Storage details stay in the log.
func (h *SettlementHTTPHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status != http.StatusServiceUnavailable {
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	h.logger.Error("Request failed",
		slog.String("method", c.Request.Method),
		slog.String("path", c.FullPath()),
		slog.Bool("transient", repository.IsTransient(err)),
		slog.Any("err", err),
	)
	c.JSON(status, gin.H{"error": repository.ErrStorageUnavailable.Error(), "retryable": true})
}
