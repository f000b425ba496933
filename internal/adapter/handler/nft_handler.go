package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/srgjo27/defi_booking/internal/core/services"
)

type NFTHandler struct {
	svc *services.NFTService
	log *zap.Logger
}

func NewNFTHandler(svc *services.NFTService, log *zap.Logger) *NFTHandler {
	return &NFTHandler{svc: svc, log: log}
}

type mintRequest struct {
	BookingID     string `json:"bookingId" binding:"required"`
	WalletAddress string `json:"walletAddress"`
}

func (h *NFTHandler) Mint(c *gin.Context) {
	var req mintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bookingId is required"})
		return
	}

	nft, err := h.svc.MintForBooking(c.Request.Context(), req.BookingID, req.WalletAddress)
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, nft)
}

func (h *NFTHandler) GetByBooking(c *gin.Context) {
	nft, err := h.svc.GetByBooking(c.Request.Context(), c.Param("bookingId"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, nft)
}

func (h *NFTHandler) Burn(c *gin.Context) {
	nft, err := h.svc.Burn(c.Request.Context(), c.Param("nftId"))
	if err != nil {
		handleError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "nft": nft})
}
