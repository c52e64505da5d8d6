// Package service implements the credit engine. Every operation is a
// single atomic transition attempt against the user's balance record,
// serialized by the storage port's conditional write.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/credits/internal/cache"
	"github.com/smallbiznis/credits/internal/clock"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/ledger"
	"github.com/smallbiznis/credits/internal/notification"
	"github.com/smallbiznis/credits/internal/observability"
	"github.com/smallbiznis/credits/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	// maxCASRetries bounds the read-compute-write cycle retries before an
	// operation surfaces Contention.
	maxCASRetries = 5
	// maxIORetries bounds retries of an individual storage call that
	// reported unavailability.
	maxIORetries = 3
	ioBackoff    = 50 * time.Millisecond

	defaultGrantValidityDays = 30
)

type Params struct {
	fx.In

	Backend storage.Backend
	Ledger  *ledger.Writer
	Cache   cache.BalanceCache
	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Trigger *notification.Trigger  `optional:"true"`
	Metrics *observability.Metrics `optional:"true"`
}

type Service struct {
	backend storage.Backend
	ledger  *ledger.Writer
	cache   cache.BalanceCache
	log     *zap.Logger
	clock   clock.Clock
	genID   *snowflake.Node
	trigger *notification.Trigger
	metrics *observability.Metrics
}

func NewService(p Params) creditdomain.Service {
	return &Service{
		backend: p.Backend,
		ledger:  p.Ledger,
		cache:   p.Cache,
		log:     p.Log.Named("credit.service"),
		clock:   p.Clock,
		genID:   p.GenID,
		trigger: p.Trigger,
		metrics: p.Metrics,
	}
}

func (s *Service) AddCredits(ctx context.Context, req creditdomain.AddCreditsRequest) (*creditdomain.Transaction, error) {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	if req.Amount <= 0 {
		return nil, s.fail(ctx, "add", req.UserID, req.Amount, creditdomain.ErrInvalidAmount, correlationID, start)
	}

	// Idempotent replay check before any mutation.
	if req.IdempotencyKey != "" {
		prior, err := s.getTransaction(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			s.observe("add", observability.ResultOK, start)
			return prior, nil
		case !errors.Is(err, storage.ErrNotFound):
			return nil, s.fail(ctx, "add", req.UserID, req.Amount, err, correlationID, start)
		}
	}

	var record *creditdomain.BalanceRecord
	err := s.mutate(ctx, func() error {
		balance, err := s.getOrCreateBalance(ctx, req.UserID)
		if err != nil {
			return err
		}
		record = balance
		return s.casUpdate(ctx, req.UserID, balance.Version, balance.Available+req.Amount, balance.Reserved)
	})
	if err != nil {
		return nil, s.fail(ctx, "add", req.UserID, req.Amount, err, correlationID, start)
	}

	txID := req.IdempotencyKey
	if txID == "" {
		txID = s.ledger.NewTransactionID()
	}
	tx := &creditdomain.Transaction{
		ID:             txID,
		UserID:         req.UserID,
		Kind:           creditdomain.TransactionKindAdd,
		Amount:         req.Amount,
		AvailableAfter: record.Available + req.Amount,
		ReservedAfter:  record.Reserved,
		Description:    req.Description,
		CreatedAt:      s.clock.Now(),
	}
	if req.PlanID != "" {
		tx.Metadata = datatypes.JSONMap{"plan_id": req.PlanID}
	}
	recorded, replayed, err := s.ledger.RecordTransaction(ctx, tx, correlationID)
	if err != nil {
		return nil, s.fail(ctx, "add", req.UserID, req.Amount, err, correlationID, start)
	}

	if replayed {
		// A concurrent request with the same key won the transaction
		// append after this one had already incremented the balance. The
		// winner's increment is the one on record; back this one out.
		if compErr := s.mutate(ctx, func() error {
			balance, err := s.getBalance(ctx, req.UserID)
			if err != nil {
				return err
			}
			return s.casUpdate(ctx, req.UserID, balance.Version,
				clampNonNegative(balance.Available-req.Amount), balance.Reserved)
		}); compErr != nil {
			s.log.Error("duplicate add rollback failed",
				zap.String("user_id", req.UserID),
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(compErr),
			)
		}
		s.cache.Invalidate(ctx, req.UserID)
		s.observe("add", observability.ResultOK, start)
		return recorded, nil
	}

	if req.PlanID != "" || req.ValidityDays > 0 {
		if err := s.recordGrant(ctx, req); err != nil {
			s.log.Warn("grant record write failed",
				zap.String("user_id", req.UserID),
				zap.String("plan_id", req.PlanID),
				zap.Error(err),
			)
		}
	}

	s.cache.Invalidate(ctx, req.UserID)
	s.observe("add", observability.ResultOK, start)
	return recorded, nil
}

func (s *Service) DeductCredits(ctx context.Context, req creditdomain.DeductCreditsRequest) (*creditdomain.Transaction, error) {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	if req.Amount <= 0 {
		return nil, s.fail(ctx, "deduct", req.UserID, req.Amount, creditdomain.ErrInvalidAmount, correlationID, start)
	}

	var record *creditdomain.BalanceRecord
	err := s.mutate(ctx, func() error {
		balance, err := s.getBalance(ctx, req.UserID)
		if err != nil {
			return err
		}
		if balance.Available < req.Amount {
			return creditdomain.ErrInsufficientCredits
		}
		record = balance
		return s.casUpdate(ctx, req.UserID, balance.Version, balance.Available-req.Amount, balance.Reserved)
	})
	if err != nil {
		return nil, s.fail(ctx, "deduct", req.UserID, req.Amount, err, correlationID, start)
	}

	tx := &creditdomain.Transaction{
		ID:             s.ledger.NewTransactionID(),
		UserID:         req.UserID,
		Kind:           creditdomain.TransactionKindDeduct,
		Amount:         req.Amount,
		AvailableAfter: record.Available - req.Amount,
		ReservedAfter:  record.Reserved,
		Description:    req.Description,
		CreatedAt:      s.clock.Now(),
	}
	recorded, _, err := s.ledger.RecordTransaction(ctx, tx, correlationID)
	if err != nil {
		return nil, s.fail(ctx, "deduct", req.UserID, req.Amount, err, correlationID, start)
	}

	s.cache.Invalidate(ctx, req.UserID)
	s.evaluateLowBalance(ctx, req.UserID, tx.AvailableAfter, tx.ReservedAfter)
	s.observe("deduct", observability.ResultOK, start)
	return recorded, nil
}

func (s *Service) ReserveCredits(ctx context.Context, req creditdomain.ReserveCreditsRequest) (*creditdomain.Reservation, error) {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	if req.Amount <= 0 {
		return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, creditdomain.ErrInvalidAmount, correlationID, start)
	}

	reservationID := req.ReservationID
	if reservationID == "" {
		reservationID = uuid.NewString()
	} else {
		existing, err := s.backend.GetReservation(ctx, reservationID)
		switch {
		case err == nil && existing.UserID != req.UserID:
			return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, creditdomain.ErrReservationNotFound, correlationID, start)
		case err == nil && existing.Open():
			// Idempotent retry of an in-flight reservation.
			s.observe("reserve", observability.ResultOK, start)
			return existing, nil
		case err == nil:
			return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, creditdomain.ErrReservationAlreadyClosed, correlationID, start)
		case !errors.Is(err, storage.ErrNotFound):
			return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, err, correlationID, start)
		}
	}

	var record *creditdomain.BalanceRecord
	err := s.mutate(ctx, func() error {
		balance, err := s.getBalance(ctx, req.UserID)
		if err != nil {
			return err
		}
		if balance.Available < req.Amount {
			return creditdomain.ErrInsufficientCredits
		}
		record = balance
		return s.casUpdate(ctx, req.UserID, balance.Version, balance.Available-req.Amount, balance.Reserved+req.Amount)
	})
	if err != nil {
		return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, err, correlationID, start)
	}

	now := s.clock.Now()
	reservation := &creditdomain.Reservation{
		ID:        reservationID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Status:    creditdomain.ReservationStatusOpen,
		Reason:    req.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.TTL > 0 {
		expiresAt := now.Add(req.TTL)
		reservation.ExpiresAt = &expiresAt
	}
	if err := s.upsertReservation(ctx, reservation); err != nil {
		return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, err, correlationID, start)
	}

	tx := &creditdomain.Transaction{
		ID:             s.ledger.NewTransactionID(),
		UserID:         req.UserID,
		Kind:           creditdomain.TransactionKindReserve,
		Amount:         req.Amount,
		AvailableAfter: record.Available - req.Amount,
		ReservedAfter:  record.Reserved + req.Amount,
		Description:    req.Reason,
		Metadata:       datatypes.JSONMap{"reservation_id": reservationID},
		CreatedAt:      now,
	}
	if _, _, err := s.ledger.RecordTransaction(ctx, tx, correlationID); err != nil {
		return nil, s.fail(ctx, "reserve", req.UserID, req.Amount, err, correlationID, start)
	}

	s.cache.Invalidate(ctx, req.UserID)
	s.evaluateLowBalance(ctx, req.UserID, tx.AvailableAfter, tx.ReservedAfter)
	s.observe("reserve", observability.ResultOK, start)
	return reservation, nil
}

func (s *Service) CommitReservation(ctx context.Context, req creditdomain.CommitReservationRequest) (*creditdomain.Transaction, error) {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	if req.ActualAmount < 0 {
		return nil, s.fail(ctx, "commit", "", req.ActualAmount, creditdomain.ErrInvalidAmount, correlationID, start)
	}

	reservation, err := s.getOpenReservation(ctx, req.ReservationID)
	if err != nil {
		return nil, s.fail(ctx, "commit", "", req.ActualAmount, err, correlationID, start)
	}
	if req.ActualAmount > reservation.Amount {
		return nil, s.fail(ctx, "commit", reservation.UserID, req.ActualAmount, creditdomain.ErrInvalidAmount, correlationID, start)
	}

	// Closing the reservation first is the commit point: exactly one
	// concurrent commit or release wins the transition, and only the
	// winner goes on to move the balance.
	if err := s.closeReservation(ctx, reservation.ID, creditdomain.ReservationStatusCommitted); err != nil {
		switch {
		case errors.Is(err, storage.ErrVersionConflict):
			err = creditdomain.ErrReservationAlreadyClosed
		case errors.Is(err, storage.ErrNotFound):
			err = creditdomain.ErrReservationNotFound
		}
		return nil, s.fail(ctx, "commit", reservation.UserID, req.ActualAmount, err, correlationID, start)
	}

	// Remainder of the hold flows back to available; actual usage leaves
	// reserved permanently.
	remainder := reservation.Amount - req.ActualAmount

	var record *creditdomain.BalanceRecord
	err = s.mutate(ctx, func() error {
		balance, err := s.getBalance(ctx, reservation.UserID)
		if err != nil {
			return err
		}
		record = balance
		return s.casUpdate(ctx, reservation.UserID, balance.Version,
			balance.Available+remainder,
			clampNonNegative(balance.Reserved-reservation.Amount),
		)
	})
	if err != nil {
		return nil, s.fail(ctx, "commit", reservation.UserID, req.ActualAmount, err, correlationID, start)
	}

	tx := &creditdomain.Transaction{
		ID:             s.ledger.NewTransactionID(),
		UserID:         reservation.UserID,
		Kind:           creditdomain.TransactionKindCommit,
		Amount:         req.ActualAmount,
		AvailableAfter: record.Available + remainder,
		ReservedAfter:  clampNonNegative(record.Reserved - reservation.Amount),
		Description:    req.Description,
		Metadata:       datatypes.JSONMap{"reservation_id": reservation.ID, "reserved_amount": reservation.Amount},
		CreatedAt:      s.clock.Now(),
	}
	recorded, _, err := s.ledger.RecordTransaction(ctx, tx, correlationID)
	if err != nil {
		return nil, s.fail(ctx, "commit", reservation.UserID, req.ActualAmount, err, correlationID, start)
	}

	s.cache.Invalidate(ctx, reservation.UserID)
	s.evaluateLowBalance(ctx, reservation.UserID, tx.AvailableAfter, tx.ReservedAfter)
	s.observe("commit", observability.ResultOK, start)
	return recorded, nil
}

func (s *Service) ReleaseReservation(ctx context.Context, reservationID string) error {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	reservation, err := s.backend.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return s.fail(ctx, "release", "", 0, creditdomain.ErrReservationNotFound, correlationID, start)
		}
		return s.fail(ctx, "release", "", 0, err, correlationID, start)
	}
	if !reservation.Open() {
		// At-least-once cleanup: releasing a closed reservation is a no-op.
		s.observe("release", observability.ResultOK, start)
		return nil
	}

	// The close is the commit point; a caller that loses it to a
	// concurrent commit or release must not return the hold again.
	if err := s.closeReservation(ctx, reservation.ID, creditdomain.ReservationStatusReleased); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			s.observe("release", observability.ResultOK, start)
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			err = creditdomain.ErrReservationNotFound
		}
		return s.fail(ctx, "release", reservation.UserID, reservation.Amount, err, correlationID, start)
	}

	var record *creditdomain.BalanceRecord
	err = s.mutate(ctx, func() error {
		balance, err := s.getBalance(ctx, reservation.UserID)
		if err != nil {
			return err
		}
		record = balance
		return s.casUpdate(ctx, reservation.UserID, balance.Version,
			balance.Available+reservation.Amount,
			clampNonNegative(balance.Reserved-reservation.Amount),
		)
	})
	if err != nil {
		return s.fail(ctx, "release", reservation.UserID, reservation.Amount, err, correlationID, start)
	}

	tx := &creditdomain.Transaction{
		ID:             s.ledger.NewTransactionID(),
		UserID:         reservation.UserID,
		Kind:           creditdomain.TransactionKindRelease,
		Amount:         reservation.Amount,
		AvailableAfter: record.Available + reservation.Amount,
		ReservedAfter:  clampNonNegative(record.Reserved - reservation.Amount),
		Metadata:       datatypes.JSONMap{"reservation_id": reservation.ID},
		CreatedAt:      s.clock.Now(),
	}
	if _, _, err := s.ledger.RecordTransaction(ctx, tx, correlationID); err != nil {
		return s.fail(ctx, "release", reservation.UserID, reservation.Amount, err, correlationID, start)
	}

	s.cache.Invalidate(ctx, reservation.UserID)
	s.observe("release", observability.ResultOK, start)
	return nil
}

func (s *Service) GetUserCreditsInfo(ctx context.Context, userID string) (creditdomain.UserCreditInfo, error) {
	if info, ok := s.cache.Get(ctx, userID); ok {
		return info, nil
	}

	balance, err := s.getBalance(ctx, userID)
	if err != nil {
		return creditdomain.UserCreditInfo{}, s.mapError(err)
	}
	info := creditdomain.UserCreditInfo{
		UserID:    userID,
		Available: balance.Available,
		Reserved:  balance.Reserved,
		Total:     balance.Total(),
	}
	s.cache.Set(ctx, userID, info)
	return info, nil
}

func (s *Service) GetCreditHistory(ctx context.Context, userID string) ([]creditdomain.Transaction, error) {
	transactions, err := s.backend.ListTransactions(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return transactions, nil
}

func (s *Service) GetExpiringCredits(ctx context.Context, userID string, within time.Duration) (creditdomain.ExpiringCredits, error) {
	grants, err := s.backend.ListGrants(ctx, userID)
	if err != nil {
		return creditdomain.ExpiringCredits{}, s.mapError(err)
	}
	cutoff := s.clock.Now().Add(within)
	out := creditdomain.ExpiringCredits{UserID: userID}
	for _, grant := range grants {
		if grant.Expired || grant.Remaining <= 0 {
			continue
		}
		if grant.ExpiresAt.After(cutoff) {
			continue
		}
		out.Total += grant.Remaining
		out.Grants = append(out.Grants, grant)
	}
	return out, nil
}

// ExpireCredits removes grant remainders whose validity window has passed,
// never driving available below zero. Returns the amount actually removed
// from the balance.
func (s *Service) ExpireCredits(ctx context.Context, userID string, asOf time.Time) (int64, error) {
	start := s.clock.Now()
	correlationID := uuid.NewString()

	grants, err := s.backend.ListGrants(ctx, userID)
	if err != nil {
		return 0, s.fail(ctx, "expire", userID, 0, err, correlationID, start)
	}

	var expiredTotal int64
	for i := range grants {
		grant := grants[i]
		if grant.Expired || grant.ExpiresAt.After(asOf) {
			continue
		}
		expiredTotal += grant.Remaining
		grant.Remaining = 0
		grant.Expired = true
		if err := s.backend.UpsertGrant(ctx, &grant); err != nil {
			return 0, s.fail(ctx, "expire", userID, expiredTotal, err, correlationID, start)
		}
	}
	if expiredTotal == 0 {
		s.observe("expire", observability.ResultOK, start)
		return 0, nil
	}

	var removed int64
	var record *creditdomain.BalanceRecord
	err = s.mutate(ctx, func() error {
		balance, err := s.getBalance(ctx, userID)
		if err != nil {
			return err
		}
		newAvailable := clampNonNegative(balance.Available - expiredTotal)
		removed = balance.Available - newAvailable
		record = balance
		return s.casUpdate(ctx, userID, balance.Version, newAvailable, balance.Reserved)
	})
	if err != nil {
		return 0, s.fail(ctx, "expire", userID, expiredTotal, err, correlationID, start)
	}

	tx := &creditdomain.Transaction{
		ID:             s.ledger.NewTransactionID(),
		UserID:         userID,
		Kind:           creditdomain.TransactionKindExpire,
		Amount:         removed,
		AvailableAfter: record.Available - removed,
		ReservedAfter:  record.Reserved,
		Description:    "credits expired",
		Metadata:       datatypes.JSONMap{"expired_grant_total": expiredTotal},
		CreatedAt:      s.clock.Now(),
	}
	if _, _, err := s.ledger.RecordTransaction(ctx, tx, correlationID); err != nil {
		return 0, s.fail(ctx, "expire", userID, expiredTotal, err, correlationID, start)
	}

	s.cache.Invalidate(ctx, userID)
	s.metrics.AddExpiredCredits(removed)
	s.observe("expire", observability.ResultOK, start)
	return removed, nil
}

// mutate runs the read-compute-write cycle, retrying the whole cycle on a
// version conflict up to maxCASRetries.
func (s *Service) mutate(ctx context.Context, cycle func() error) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := cycle()
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			s.metrics.IncCASConflict()
			continue
		}
		return err
	}
	s.metrics.IncContention()
	return creditdomain.ErrContention
}

// casUpdate retries only the conditional-write step on I/O failure. The
// write is idempotent via the version check, so re-issuing it never
// applies business logic twice.
func (s *Service) casUpdate(ctx context.Context, userID string, expectedVersion, available, reserved int64) error {
	var err error
	for attempt := 0; attempt < maxIORetries; attempt++ {
		err = s.backend.CASUpdateBalance(ctx, userID, expectedVersion, available, reserved, s.clock.Now())
		if !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ioBackoff << attempt):
		}
	}
	return err
}

func (s *Service) getBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error) {
	var record *creditdomain.BalanceRecord
	var err error
	for attempt := 0; attempt < maxIORetries; attempt++ {
		record, err = s.backend.GetBalance(ctx, userID)
		if err == nil {
			return record, nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, creditdomain.ErrUserNotFound
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ioBackoff << attempt):
		}
	}
	return nil, err
}

func (s *Service) getOrCreateBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error) {
	record, err := s.getBalance(ctx, userID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, creditdomain.ErrUserNotFound) {
		return nil, err
	}
	fresh := &creditdomain.BalanceRecord{
		UserID:    userID,
		Available: 0,
		Reserved:  0,
		Version:   1,
		UpdatedAt: s.clock.Now(),
	}
	createErr := s.backend.CreateBalance(ctx, fresh)
	if createErr == nil {
		return fresh, nil
	}
	if errors.Is(createErr, storage.ErrDuplicate) {
		// Lost the creation race; the record exists now.
		return s.getBalance(ctx, userID)
	}
	return nil, createErr
}

func (s *Service) getTransaction(ctx context.Context, id string) (*creditdomain.Transaction, error) {
	var tx *creditdomain.Transaction
	var err error
	for attempt := 0; attempt < maxIORetries; attempt++ {
		tx, err = s.backend.GetTransaction(ctx, id)
		if err == nil || errors.Is(err, storage.ErrNotFound) {
			return tx, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(ioBackoff << attempt):
		}
	}
	return nil, err
}

func (s *Service) getOpenReservation(ctx context.Context, reservationID string) (*creditdomain.Reservation, error) {
	reservation, err := s.backend.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, creditdomain.ErrReservationNotFound
		}
		return nil, err
	}
	if !reservation.Open() {
		return nil, creditdomain.ErrReservationAlreadyClosed
	}
	return reservation, nil
}

func (s *Service) upsertReservation(ctx context.Context, reservation *creditdomain.Reservation) error {
	var err error
	for attempt := 0; attempt < maxIORetries; attempt++ {
		err = s.backend.UpsertReservation(ctx, reservation)
		if !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ioBackoff << attempt):
		}
	}
	return err
}

func (s *Service) closeReservation(ctx context.Context, reservationID string, status creditdomain.ReservationStatus) error {
	var err error
	for attempt := 0; attempt < maxIORetries; attempt++ {
		err = s.backend.CloseReservation(ctx, reservationID, status, s.clock.Now())
		if !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ioBackoff << attempt):
		}
	}
	return err
}

func (s *Service) recordGrant(ctx context.Context, req creditdomain.AddCreditsRequest) error {
	validityDays := req.ValidityDays
	if validityDays <= 0 {
		validityDays = defaultGrantValidityDays
	}
	now := s.clock.Now()
	grant := &creditdomain.CreditGrant{
		ID:        s.genID.Generate().String(),
		UserID:    req.UserID,
		PlanID:    req.PlanID,
		Credits:   req.Amount,
		Remaining: req.Amount,
		ExpiresAt: now.AddDate(0, 0, validityDays),
		CreatedAt: now,
	}
	return s.backend.UpsertGrant(ctx, grant)
}

func (s *Service) evaluateLowBalance(ctx context.Context, userID string, available, reserved int64) {
	if s.trigger == nil {
		return
	}
	s.trigger.EvaluateLowBalance(ctx, creditdomain.UserCreditInfo{
		UserID:    userID,
		Available: available,
		Reserved:  reserved,
		Total:     available + reserved,
	})
}

// fail records the failure on the ledger error trail, maps storage errors
// to the engine's typed errors and emits metrics. The ledger entry is
// written even though the caller also receives the error synchronously.
func (s *Service) fail(ctx context.Context, operation, userID string, amount int64, err error, correlationID string, start time.Time) error {
	mapped := s.mapError(err)
	s.ledger.RecordError(ctx, userID, operation, amount, mapped, correlationID)
	if s.trigger != nil && errors.Is(mapped, creditdomain.ErrInsufficientCredits) {
		s.trigger.NotifyTransactionError(ctx, userID, operation, mapped)
	}
	s.observe(operation, observability.ResultError, start)
	return mapped
}

func (s *Service) mapError(err error) error {
	switch {
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Errorf("%w: %v", creditdomain.ErrStorageUnavailable, err)
	case errors.Is(err, storage.ErrNotFound):
		return creditdomain.ErrUserNotFound
	default:
		return err
	}
}

func (s *Service) observe(operation, result string, start time.Time) {
	s.metrics.ObserveOperation(operation, result, s.clock.Now().Sub(start))
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
