// Package postgres implements the core repositories on PostgreSQL through sqlx.
package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

// Store bundles every repository behind one value so it satisfies ports.Store.
type Store struct {
	*BookingRepository
	*PaymentRepository
	*NFTRepository
	*ReferenceRepository
	*WebhookLogRepository
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		BookingRepository:    NewBookingRepository(db),
		PaymentRepository:    NewPaymentRepository(db),
		NFTRepository:        NewNFTRepository(db),
		ReferenceRepository:  NewReferenceRepository(db),
		WebhookLogRepository: NewWebhookLogRepository(db),
	}
}

// uniqueConstraint returns the violated constraint name, or "" if err is
// not a unique violation.
func uniqueConstraint(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// jsonArg turns an optional raw document into a jsonb parameter.
func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
