package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	subscriptiondomain "github.com/smallbiznis/credits/internal/subscription/domain"
	"github.com/smallbiznis/credits/pkg/db"
	"gorm.io/gorm"
)

// GormBackend implements the storage port on a relational database. The
// conditional balance update is a single `UPDATE ... WHERE version = ?`,
// which is atomic at row level on every supported backend.
type GormBackend struct {
	db *gorm.DB
}

// NewGormBackend wraps an open gorm handle.
func NewGormBackend(handle *gorm.DB) *GormBackend {
	return &GormBackend{db: handle}
}

var _ Backend = (*GormBackend)(nil)

// DB exposes the underlying handle for migrations.
func (g *GormBackend) DB() *gorm.DB {
	return g.db
}

// AutoMigrate creates the credit tables. The postgres deployment path uses
// the embedded SQL migrations instead; this covers sqlite and tests.
func (g *GormBackend) AutoMigrate() error {
	return g.db.AutoMigrate(
		&creditdomain.BalanceRecord{},
		&creditdomain.Transaction{},
		&creditdomain.Reservation{},
		&creditdomain.CreditGrant{},
		&creditdomain.LedgerEntry{},
		&subscriptiondomain.UserSubscription{},
	)
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case db.IsDuplicateKeyErr(err):
		return ErrDuplicate
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func (g *GormBackend) GetBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error) {
	var record creditdomain.BalanceRecord
	err := g.db.WithContext(ctx).First(&record, "user_id = ?", userID).Error
	if err != nil {
		return nil, classify(err)
	}
	return &record, nil
}

func (g *GormBackend) CreateBalance(ctx context.Context, record *creditdomain.BalanceRecord) error {
	return classify(g.db.WithContext(ctx).Create(record).Error)
}

func (g *GormBackend) CASUpdateBalance(ctx context.Context, userID string, expectedVersion, available, reserved int64, updatedAt time.Time) error {
	result := g.db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET available = ?, reserved = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND version = ?`,
		available, reserved, updatedAt.UTC(), userID, expectedVersion,
	)
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing row from a lost race.
		var count int64
		if err := g.db.WithContext(ctx).Model(&creditdomain.BalanceRecord{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return classify(err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (g *GormBackend) AppendTransaction(ctx context.Context, tx *creditdomain.Transaction) error {
	return classify(g.db.WithContext(ctx).Create(tx).Error)
}

func (g *GormBackend) GetTransaction(ctx context.Context, id string) (*creditdomain.Transaction, error) {
	var tx creditdomain.Transaction
	err := g.db.WithContext(ctx).First(&tx, "id = ?", id).Error
	if err != nil {
		return nil, classify(err)
	}
	return &tx, nil
}

func (g *GormBackend) ListTransactions(ctx context.Context, userID string) ([]creditdomain.Transaction, error) {
	var out []creditdomain.Transaction
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *GormBackend) GetReservation(ctx context.Context, reservationID string) (*creditdomain.Reservation, error) {
	var reservation creditdomain.Reservation
	err := g.db.WithContext(ctx).First(&reservation, "id = ?", reservationID).Error
	if err != nil {
		return nil, classify(err)
	}
	return &reservation, nil
}

func (g *GormBackend) ListReservations(ctx context.Context, userID string, status creditdomain.ReservationStatus) ([]creditdomain.Reservation, error) {
	query := g.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var out []creditdomain.Reservation
	if err := query.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *GormBackend) UpsertReservation(ctx context.Context, reservation *creditdomain.Reservation) error {
	return classify(g.db.WithContext(ctx).Save(reservation).Error)
}

func (g *GormBackend) CloseReservation(ctx context.Context, reservationID string, status creditdomain.ReservationStatus, updatedAt time.Time) error {
	result := g.db.WithContext(ctx).
		Model(&creditdomain.Reservation{}).
		Where("id = ? AND status = ?", reservationID, creditdomain.ReservationStatusOpen).
		Updates(map[string]any{"status": status, "updated_at": updatedAt.UTC()})
	if result.Error != nil {
		return classify(result.Error)
	}
	if result.RowsAffected == 0 {
		// Distinguish a missing reservation from an already-closed one.
		var count int64
		if err := g.db.WithContext(ctx).Model(&creditdomain.Reservation{}).Where("id = ?", reservationID).Count(&count).Error; err != nil {
			return classify(err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrVersionConflict
	}
	return nil
}

func (g *GormBackend) ListGrants(ctx context.Context, userID string) ([]creditdomain.CreditGrant, error) {
	var out []creditdomain.CreditGrant
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *GormBackend) UpsertGrant(ctx context.Context, grant *creditdomain.CreditGrant) error {
	return classify(g.db.WithContext(ctx).Save(grant).Error)
}

func (g *GormBackend) AppendLedgerEntry(ctx context.Context, entry *creditdomain.LedgerEntry) error {
	return classify(g.db.WithContext(ctx).Create(entry).Error)
}

func (g *GormBackend) ListLedgerEntries(ctx context.Context, userID string, category creditdomain.LedgerCategory) ([]creditdomain.LedgerEntry, error) {
	query := g.db.WithContext(ctx)
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if category != "" {
		query = query.Where("category = ?", category)
	}
	var out []creditdomain.LedgerEntry
	if err := query.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *GormBackend) GetUserSubscription(ctx context.Context, userID string) (*subscriptiondomain.UserSubscription, error) {
	var sub subscriptiondomain.UserSubscription
	err := g.db.WithContext(ctx).First(&sub, "user_id = ?", userID).Error
	if err != nil {
		return nil, classify(err)
	}
	return &sub, nil
}

func (g *GormBackend) UpsertUserSubscription(ctx context.Context, sub *subscriptiondomain.UserSubscription) error {
	return classify(g.db.WithContext(ctx).Save(sub).Error)
}

func (g *GormBackend) ListUserSubscriptions(ctx context.Context) ([]subscriptiondomain.UserSubscription, error) {
	var out []subscriptiondomain.UserSubscription
	if err := g.db.WithContext(ctx).Order("user_id ASC").Find(&out).Error; err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (g *GormBackend) ListUserIDs(ctx context.Context) ([]string, error) {
	var out []string
	err := g.db.WithContext(ctx).
		Model(&creditdomain.BalanceRecord{}).
		Order("user_id ASC").
		Pluck("user_id", &out).Error
	if err != nil {
		return nil, classify(err)
	}
	return out, nil
}
