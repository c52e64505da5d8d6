// Package storage defines the backend contract every credit component
// depends on, plus the reference implementations. The conditional balance
// update is the single serialization point for a user's state; backends
// must implement it with a native atomic primitive.
package storage

import (
	"context"
	"errors"
	"time"

	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	subscriptiondomain "github.com/smallbiznis/credits/internal/subscription/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record_not_found")
	// ErrDuplicate indicates an append hit an existing id. For transactions
	// this is the idempotent-replay signal, not a failure.
	ErrDuplicate = errors.New("duplicate_record")
	// ErrVersionConflict indicates a conditional write lost the race; the
	// caller must re-read and retry its whole read-compute-write cycle.
	ErrVersionConflict = errors.New("version_conflict")
	// ErrUnavailable wraps backend I/O failures.
	ErrUnavailable = errors.New("storage_unavailable")
)

// Backend is the storage port. Implementations must make CASUpdateBalance
// atomic per user record so that two concurrent mutations never both
// succeed against the same version.
type Backend interface {
	GetBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error)
	CreateBalance(ctx context.Context, record *creditdomain.BalanceRecord) error
	CASUpdateBalance(ctx context.Context, userID string, expectedVersion, available, reserved int64, updatedAt time.Time) error

	AppendTransaction(ctx context.Context, tx *creditdomain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*creditdomain.Transaction, error)
	ListTransactions(ctx context.Context, userID string) ([]creditdomain.Transaction, error)

	GetReservation(ctx context.Context, reservationID string) (*creditdomain.Reservation, error)
	ListReservations(ctx context.Context, userID string, status creditdomain.ReservationStatus) ([]creditdomain.Reservation, error)
	UpsertReservation(ctx context.Context, reservation *creditdomain.Reservation) error
	// CloseReservation transitions an open reservation to status atomically.
	// ErrVersionConflict when the reservation is already closed: exactly one
	// concurrent closer wins the transition.
	CloseReservation(ctx context.Context, reservationID string, status creditdomain.ReservationStatus, updatedAt time.Time) error

	ListGrants(ctx context.Context, userID string) ([]creditdomain.CreditGrant, error)
	UpsertGrant(ctx context.Context, grant *creditdomain.CreditGrant) error

	AppendLedgerEntry(ctx context.Context, entry *creditdomain.LedgerEntry) error
	ListLedgerEntries(ctx context.Context, userID string, category creditdomain.LedgerCategory) ([]creditdomain.LedgerEntry, error)

	GetUserSubscription(ctx context.Context, userID string) (*subscriptiondomain.UserSubscription, error)
	UpsertUserSubscription(ctx context.Context, sub *subscriptiondomain.UserSubscription) error
	ListUserSubscriptions(ctx context.Context) ([]subscriptiondomain.UserSubscription, error)

	ListUserIDs(ctx context.Context) ([]string, error)
}
