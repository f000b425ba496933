package domain

import (
	"time"
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingPaid      BookingStatus = "paid"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

// bookingTransitions lists every allowed edge of the booking lifecycle.
// paid -> cancelled is only reachable through a refund.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingPending: {BookingPaid, BookingCancelled},
	BookingPaid:    {BookingCompleted, BookingCancelled},
}

func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s BookingStatus) IsTerminal() bool {
	return s == BookingCancelled || s == BookingCompleted
}

// HasBeenPaid reports whether a booking in this status reached paid at some point.
func (s BookingStatus) HasBeenPaid() bool {
	return s == BookingPaid || s == BookingCompleted
}

type Booking struct {
	ID              string        `json:"id" db:"id"`
	UserID          string        `json:"userId" db:"user_id"`
	ServiceID       string        `json:"serviceId" db:"service_id"`
	MerchantID      string        `json:"merchantId" db:"merchant_id"`
	PriceUSD        float64       `json:"priceUsd" db:"price_usd"`
	Status          BookingStatus `json:"status" db:"status"`
	BookingHash     string        `json:"bookingHash" db:"booking_hash"`
	CheckIn         time.Time     `json:"checkIn" db:"check_in"`
	CheckOut        time.Time     `json:"checkOut" db:"check_out"`
	EncryptedWallet string        `json:"-" db:"encrypted_wallet"`
	Version         int           `json:"version" db:"version"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

func (b *Booking) HasWallet() bool {
	return b.EncryptedWallet != ""
}

// BookingUpdate is a partial update; nil fields are left untouched.
type BookingUpdate struct {
	Status *BookingStatus
}

type CreateBookingInput struct {
	UserID        string
	ServiceID     string
	MerchantID    string
	PriceUSD      float64
	CheckIn       time.Time
	CheckOut      time.Time
	WalletAddress string
}
