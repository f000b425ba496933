// Package handler exposes the booking, payment, webhook and NFT operations over HTTP.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func NewRouter(bookings *BookingHandler, payments *PaymentHandler, nfts *NFTHandler, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Recovery(log), RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	b := r.Group("/bookings")
	b.POST("", bookings.CreateBooking)
	b.GET("/:id", bookings.GetBooking)
	b.GET("/:id/details", payments.GetBookingDetails)
	b.POST("/:id/pay", payments.Pay)
	b.POST("/:id/capture", payments.Capture)
	b.POST("/:id/cancel", bookings.CancelBooking)
	b.POST("/:id/refund", payments.Refund)
	b.POST("/:id/complete", payments.Complete)

	r.GET("/users/:id/bookings", bookings.ListUserBookings)
	r.GET("/payments/:id", payments.GetPayment)
	r.POST("/webhooks/:provider", payments.Webhook)

	n := r.Group("/nfts")
	n.POST("/mint", nfts.Mint)
	n.GET("/:bookingId", nfts.GetByBooking)
	n.POST("/:nftId/burn", nfts.Burn)

	return r
}
