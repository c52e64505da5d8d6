// Package domain contains persistence models and contracts for the credit ledger.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// BalanceRecord is the per-user balance row. Version is the optimistic
// concurrency counter; every conditional write must match it exactly.
type BalanceRecord struct {
	UserID    string    `gorm:"primaryKey;type:text" json:"user_id"`
	Available int64     `gorm:"not null" json:"available"`
	Reserved  int64     `gorm:"not null" json:"reserved"`
	Version   int64     `gorm:"not null" json:"version"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (BalanceRecord) TableName() string { return "credit_balances" }

// Total is the externally reported balance.
func (b BalanceRecord) Total() int64 { return b.Available + b.Reserved }

// ReservationStatus represents lifecycle states for a reservation.
// A reservation transitions exactly once from open to committed or released.
type ReservationStatus string

const (
	ReservationStatusOpen      ReservationStatus = "open"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

// Reservation holds credits against an in-flight operation whose final cost
// is unknown until after execution.
type Reservation struct {
	ID        string            `gorm:"primaryKey;type:text" json:"reservation_id"`
	UserID    string            `gorm:"not null;index;type:text" json:"user_id"`
	Amount    int64             `gorm:"not null" json:"amount_reserved"`
	Status    ReservationStatus `gorm:"type:text;not null;index" json:"status"`
	Reason    string            `gorm:"type:text" json:"reason,omitempty"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	CreatedAt time.Time         `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time         `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Reservation) TableName() string { return "credit_reservations" }

// Open reports whether the reservation still holds credits.
func (r Reservation) Open() bool { return r.Status == ReservationStatusOpen }

// TransactionKind represents the business reason for a balance mutation.
type TransactionKind string

const (
	TransactionKindAdd     TransactionKind = "add"
	TransactionKindDeduct  TransactionKind = "deduct"
	TransactionKindReserve TransactionKind = "reserve"
	TransactionKindCommit  TransactionKind = "commit"
	TransactionKindRelease TransactionKind = "release"
	TransactionKindExpire  TransactionKind = "expire"
)

// Transaction is the immutable audit record for one balance mutation.
// ID doubles as the idempotency key: appending an existing id is a replay,
// not a new effect.
type Transaction struct {
	ID             string            `gorm:"primaryKey;type:text" json:"transaction_id"`
	UserID         string            `gorm:"not null;index;type:text" json:"user_id"`
	Kind           TransactionKind   `gorm:"type:text;not null" json:"kind"`
	Amount         int64             `gorm:"not null" json:"amount"`
	AvailableAfter int64             `gorm:"not null" json:"available_after"`
	ReservedAfter  int64             `gorm:"not null" json:"reserved_after"`
	Description    string            `gorm:"type:text" json:"description,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null;index" json:"created_at"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "credit_transactions" }

// LedgerCategory classifies operational ledger entries.
type LedgerCategory string

const (
	LedgerCategoryTransaction LedgerCategory = "transaction"
	LedgerCategoryError       LedgerCategory = "error"
	LedgerCategorySystem      LedgerCategory = "system"
)

// LedgerEntry is the structured operational log written alongside (never
// instead of) the authoritative Transaction trail.
type LedgerEntry struct {
	ID            int64             `gorm:"primaryKey" json:"id"`
	Category      LedgerCategory    `gorm:"type:text;not null;index" json:"category"`
	UserID        string            `gorm:"index;type:text" json:"user_id,omitempty"`
	CorrelationID string            `gorm:"type:text;index" json:"correlation_id,omitempty"`
	Message       string            `gorm:"type:text;not null" json:"message"`
	Details       datatypes.JSONMap `gorm:"type:jsonb" json:"details,omitempty"`
	CreatedAt     time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "credit_ledger_entries" }

// CreditGrant is a chunk of credits with an explicit expiry, used to apply
// per-plan validity windows.
type CreditGrant struct {
	ID        string    `gorm:"primaryKey;type:text" json:"grant_id"`
	UserID    string    `gorm:"not null;index;type:text" json:"user_id"`
	PlanID    string    `gorm:"type:text" json:"plan_id,omitempty"`
	Credits   int64     `gorm:"not null" json:"credits"`
	Remaining int64     `gorm:"not null" json:"remaining_credits"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Expired   bool      `gorm:"not null;default:false" json:"expired"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (CreditGrant) TableName() string { return "credit_grants" }

// UserCreditInfo is the derived balance snapshot returned to callers and
// kept in the balance cache.
type UserCreditInfo struct {
	UserID    string `json:"user_id"`
	Available int64  `json:"available"`
	Reserved  int64  `json:"reserved"`
	Total     int64  `json:"total"`
}
