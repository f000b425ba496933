package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/services"
)

type PaymentHandler struct {
	svc *services.OrchestrationService
	log *zap.Logger
}

func NewPaymentHandler(svc *services.OrchestrationService, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log}
}

type payRequest struct {
	Provider string  `json:"provider" binding:"required"`
	Amount   float64 `json:"amount" binding:"required"`
}

func (h *PaymentHandler) Pay(c *gin.Context) {
	var req payRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "provider and amount are required"})
		return
	}

	res, err := h.svc.ProcessBookingPayment(c.Request.Context(), c.Param("id"), domain.Provider(req.Provider), req.Amount)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) Capture(c *gin.Context) {
	res, err := h.svc.CapturePayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}

func (h *PaymentHandler) Refund(c *gin.Context) {
	res, err := h.svc.RefundBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *PaymentHandler) Complete(c *gin.Context) {
	booking, err := h.svc.CompleteBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *PaymentHandler) GetBookingDetails(c *gin.Context) {
	details, err := h.svc.GetBookingWithPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.svc.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// Webhook hands the untouched body to the orchestrator; signatures are
// computed over these exact bytes.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	res, err := h.svc.HandlePaymentWebhook(c.Request.Context(), c.Param("provider"), raw, c.Request.Header)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "result": res})
}
