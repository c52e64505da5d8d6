package domain

import (
	"context"
	"errors"
	"time"
)

// AddCreditsRequest increases a user's available balance. When
// IdempotencyKey matches a recorded transaction the prior result is
// returned without mutating state. PlanID and ValidityDays, when set,
// record an expiring grant alongside the balance increase.
type AddCreditsRequest struct {
	UserID         string `json:"user_id"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	PlanID         string `json:"plan_id,omitempty"`
	ValidityDays   int    `json:"validity_days,omitempty"`
}

type DeductCreditsRequest struct {
	UserID      string `json:"user_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description,omitempty"`
}

// ReserveCreditsRequest moves Amount from available to reserved. A caller
// may supply ReservationID to make the call idempotent across retries; an
// empty id is generated by the engine. TTL is advisory: expired-but-open
// reservations are only released by the expiration engine or an explicit
// release call.
type ReserveCreditsRequest struct {
	UserID        string        `json:"user_id"`
	Amount        int64         `json:"amount"`
	ReservationID string        `json:"reservation_id,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	TTL           time.Duration `json:"ttl,omitempty"`
}

type CommitReservationRequest struct {
	ReservationID string `json:"reservation_id"`
	ActualAmount  int64  `json:"actual_amount"`
	Description   string `json:"description,omitempty"`
}

type ExpiringCredits struct {
	UserID string        `json:"user_id"`
	Total  int64         `json:"total"`
	Grants []CreditGrant `json:"grants"`
}

// Service is the credit engine: the public operation surface consumed by
// the HTTP layer, the expiration engine and the subscription allocator.
type Service interface {
	AddCredits(ctx context.Context, req AddCreditsRequest) (*Transaction, error)
	DeductCredits(ctx context.Context, req DeductCreditsRequest) (*Transaction, error)
	ReserveCredits(ctx context.Context, req ReserveCreditsRequest) (*Reservation, error)
	CommitReservation(ctx context.Context, req CommitReservationRequest) (*Transaction, error)
	ReleaseReservation(ctx context.Context, reservationID string) error
	GetUserCreditsInfo(ctx context.Context, userID string) (UserCreditInfo, error)
	GetCreditHistory(ctx context.Context, userID string) ([]Transaction, error)
	GetExpiringCredits(ctx context.Context, userID string, within time.Duration) (ExpiringCredits, error)
	ExpireCredits(ctx context.Context, userID string, asOf time.Time) (int64, error)
}

var (
	ErrInvalidAmount            = errors.New("invalid_amount")
	ErrInsufficientCredits      = errors.New("insufficient_credits")
	ErrReservationNotFound      = errors.New("reservation_not_found")
	ErrReservationAlreadyClosed = errors.New("reservation_already_closed")
	ErrUserNotFound             = errors.New("user_not_found")
	ErrContention               = errors.New("contention")
	ErrStorageUnavailable       = errors.New("storage_unavailable")
)
