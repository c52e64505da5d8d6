// Package expiration sweeps expired reservation holds and grant
// remainders back out of user balances.
package expiration

import (
	"context"
	"time"

	"github.com/smallbiznis/credits/internal/clock"
	"github.com/smallbiznis/credits/internal/config"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/ledger"
	"github.com/smallbiznis/credits/internal/notification"
	"github.com/smallbiznis/credits/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Backend          storage.Backend
	Credits          creditdomain.Service
	Ledger           *ledger.Writer
	Log              *zap.Logger
	Clock            clock.Clock
	Trigger *notification.Trigger `optional:"true"`
	Config  config.Config
}

// Service runs the expiration sweep. All mutations go through the credit
// engine so the balance invariants hold under concurrent traffic.
type Service struct {
	backend          storage.Backend
	credits          creditdomain.Service
	ledger           *ledger.Writer
	log              *zap.Logger
	clock            clock.Clock
	trigger          *notification.Trigger
	expiringSoonDays int
}

// Result summarizes one sweep.
type Result struct {
	UsersProcessed       int
	UsersFailed          int
	ReservationsReleased int
	CreditsExpired       int64
}

func NewService(p Params) *Service {
	days := p.Config.ExpiringSoonDays
	if days <= 0 {
		days = 7
	}
	return &Service{
		backend:          p.Backend,
		credits:          p.Credits,
		ledger:           p.Ledger,
		log:              p.Log.Named("expiration.service"),
		clock:            p.Clock,
		trigger:          p.Trigger,
		expiringSoonDays: days,
	}
}

// ExpireUser sweeps a single user: stale open reservations are released,
// then expired grant remainders are removed from the balance.
func (s *Service) ExpireUser(ctx context.Context, userID string) (released int, expired int64, err error) {
	now := s.clock.Now()

	open, err := s.backend.ListReservations(ctx, userID, creditdomain.ReservationStatusOpen)
	if err != nil {
		return 0, 0, err
	}
	for _, reservation := range open {
		if reservation.ExpiresAt == nil || reservation.ExpiresAt.After(now) {
			continue
		}
		if err := s.credits.ReleaseReservation(ctx, reservation.ID); err != nil {
			return released, 0, err
		}
		released++
	}

	expired, err = s.credits.ExpireCredits(ctx, userID, now)
	if err != nil {
		return released, 0, err
	}

	s.notifyExpiringSoon(ctx, userID)
	return released, expired, nil
}

// ExpireAll sweeps every known user. A failing user is logged and skipped
// so one bad record cannot stall the rest of the run.
func (s *Service) ExpireAll(ctx context.Context) (Result, error) {
	userIDs, err := s.backend.ListUserIDs(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		released, expired, err := s.ExpireUser(ctx, userID)
		result.ReservationsReleased += released
		if err != nil {
			result.UsersFailed++
			s.log.Warn("expiration sweep failed for user",
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		result.UsersProcessed++
		result.CreditsExpired += expired
	}

	s.ledger.RecordSystem(ctx, "expiration sweep completed", map[string]any{
		"users_processed":       result.UsersProcessed,
		"users_failed":          result.UsersFailed,
		"reservations_released": result.ReservationsReleased,
		"credits_expired":       result.CreditsExpired,
	})
	return result, nil
}

func (s *Service) notifyExpiringSoon(ctx context.Context, userID string) {
	if s.trigger == nil {
		return
	}
	within := time.Duration(s.expiringSoonDays) * 24 * time.Hour
	expiring, err := s.credits.GetExpiringCredits(ctx, userID, within)
	if err != nil {
		s.log.Warn("expiring credits lookup failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.trigger.NotifyExpiringCredits(ctx, userID, expiring.Total, s.expiringSoonDays)
}
