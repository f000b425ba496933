package domain

import "errors"

var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrBookingNotFound  = notFound("booking not found")
	ErrPaymentNotFound  = notFound("payment not found")
	ErrNFTNotFound      = notFound("nft not found")
	ErrMerchantNotFound = notFound("merchant not found")
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrAlreadyPaid       = errors.New("booking already paid")
	ErrNoPaymentToRefund = errors.New("no completed payment to refund")
	ErrStaleState        = errors.New("state changed concurrently")
	ErrNFTAlreadyMinted  = errors.New("nft already minted for booking")
	ErrNFTDisabled       = errors.New("nft minting disabled")
	ErrNotEligibleForNFT = errors.New("booking has not been paid")
)

var (
	ErrInvalidSignature    = errors.New("invalid webhook signature")
	ErrUnrecognizedPayload = errors.New("unrecognized webhook payload")
	ErrUnsupportedProvider = errors.New("unsupported payment provider")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderRejected    = errors.New("payment provider rejected request")
	ErrRefundFailed        = errors.New("provider refund failed")
)

// notFoundError keeps the entity-specific message while matching ErrNotFound.
type notFoundError struct{ msg string }

func (e *notFoundError) Error() string        { return e.msg }
func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(msg string) error { return &notFoundError{msg: msg} }
