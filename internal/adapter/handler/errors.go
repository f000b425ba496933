package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
)

type errorMapping struct {
	target error
	status int
}

// errorStatuses is checked in order; the first match wins.
var errorStatuses = []errorMapping{
	{domain.ErrInvalidSignature, http.StatusUnauthorized},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrProviderUnavailable, http.StatusBadGateway},
	{domain.ErrProviderRejected, http.StatusUnprocessableEntity},
	{domain.ErrConflict, http.StatusConflict},
	{domain.ErrStaleState, http.StatusConflict},
	{domain.ErrValidation, http.StatusBadRequest},
	{domain.ErrInvalidTransition, http.StatusBadRequest},
	{domain.ErrAlreadyPaid, http.StatusBadRequest},
	{domain.ErrNoPaymentToRefund, http.StatusBadRequest},
	{domain.ErrRefundFailed, http.StatusBadRequest},
	{domain.ErrUnsupportedProvider, http.StatusBadRequest},
	{domain.ErrUnrecognizedPayload, http.StatusBadRequest},
	{domain.ErrNFTDisabled, http.StatusBadRequest},
	{domain.ErrNFTAlreadyMinted, http.StatusBadRequest},
	{domain.ErrNotEligibleForNFT, http.StatusBadRequest},
}

// handleError writes the JSON error for err. Only validation errors carry
// their detail; everything else is reduced to the sentinel message so
// provider bodies never reach the client.
func handleError(c *gin.Context, log *zap.Logger, err error) {
	for _, m := range errorStatuses {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.target.Error()
		if m.target == domain.ErrValidation || m.target == domain.ErrNotFound {
			msg = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			log.Warn("upstream failure", zap.String("path", c.FullPath()), zap.Error(err))
		}
		c.JSON(m.status, gin.H{"error": msg})
		return
	}

	log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
