package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/domain"
	"github.com/srgjo27/defi_booking/internal/core/services"
)

type BookingHandler struct {
	svc *services.BookingService
	log *zap.Logger
}

func NewBookingHandler(svc *services.BookingService, log *zap.Logger) *BookingHandler {
	return &BookingHandler{svc: svc, log: log}
}

// apiTime accepts either a calendar date or a full RFC 3339 timestamp.
type apiTime struct{ time.Time }

func (t *apiTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid date %q", s)
}

type createBookingRequest struct {
	UserID        string  `json:"userId"`
	ServiceID     string  `json:"serviceId"`
	MerchantID    string  `json:"merchantId"`
	PriceUSD      float64 `json:"priceUsd"`
	CheckIn       apiTime `json:"checkIn"`
	CheckOut      apiTime `json:"checkOut"`
	WalletAddress string  `json:"walletAddress"`
}

func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	resp, err := h.svc.CreateBooking(c.Request.Context(), domain.CreateBookingInput{
		UserID:        req.UserID,
		ServiceID:     req.ServiceID,
		MerchantID:    req.MerchantID,
		PriceUSD:      req.PriceUSD,
		CheckIn:       req.CheckIn.Time,
		CheckOut:      req.CheckOut.Time,
		WalletAddress: strings.TrimSpace(req.WalletAddress),
	})
	if err != nil {
		handleError(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, resp)
}

func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.svc.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

func (h *BookingHandler) ListUserBookings(c *gin.Context) {
	bookings, err := h.svc.ListByUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	if bookings == nil {
		bookings = []*domain.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

func (h *BookingHandler) CancelBooking(c *gin.Context) {
	if err := h.svc.CancelBooking(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
