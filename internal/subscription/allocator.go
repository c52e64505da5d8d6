package subscription

import (
	"context"
	"fmt"

	"github.com/smallbiznis/credits/internal/clock"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/ledger"
	"github.com/smallbiznis/credits/internal/storage"
	subscriptiondomain "github.com/smallbiznis/credits/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Backend storage.Backend
	Catalog *PlanCatalogHolder
	Credits creditdomain.Service
	Ledger  *ledger.Writer
	Log     *zap.Logger
	Clock   clock.Clock
}

// Allocator grants each subscribed user their plan's credit pool once per
// billing period. Allocation rides on the credit engine's idempotency: the
// key is deterministic per user, plan and period, so re-running a period
// can never double-grant.
type Allocator struct {
	backend storage.Backend
	catalog *PlanCatalogHolder
	credits creditdomain.Service
	ledger  *ledger.Writer
	log     *zap.Logger
	clock   clock.Clock
}

// Result summarizes one allocation run.
type Result struct {
	Processed int
	Allocated int
	Skipped   int
	Failed    int
}

func NewAllocator(p Params) *Allocator {
	return &Allocator{
		backend: p.Backend,
		catalog: p.Catalog,
		credits: p.Credits,
		ledger:  p.Ledger,
		log:     p.Log.Named("subscription.allocator"),
		clock:   p.Clock,
	}
}

// AssignPlan binds the user to a plan and allocates the current period
// immediately.
func (a *Allocator) AssignPlan(ctx context.Context, userID, planID string) (*subscriptiondomain.UserSubscription, error) {
	plan, err := a.catalog.Plan(planID)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now()
	sub := &subscriptiondomain.UserSubscription{
		UserID:     userID,
		PlanID:     plan.ID,
		AssignedAt: now,
		AutoRenew:  true,
		UpdatedAt:  now,
	}
	if existing, err := a.backend.GetUserSubscription(ctx, userID); err == nil {
		sub.AssignedAt = existing.AssignedAt
		if existing.PlanID == plan.ID {
			sub.LastAllocatedAt = existing.LastAllocatedAt
		}
	}
	if err := a.backend.UpsertUserSubscription(ctx, sub); err != nil {
		return nil, err
	}

	if err := a.allocate(ctx, sub, plan); err != nil {
		return nil, err
	}
	return sub, nil
}

// CancelPlan turns off renewal; already-granted credits keep their own
// expiry.
func (a *Allocator) CancelPlan(ctx context.Context, userID string) error {
	sub, err := a.backend.GetUserSubscription(ctx, userID)
	if err != nil {
		return err
	}
	sub.AutoRenew = false
	sub.UpdatedAt = a.clock.Now()
	return a.backend.UpsertUserSubscription(ctx, sub)
}

// GetSubscription returns the user's current plan binding.
func (a *Allocator) GetSubscription(ctx context.Context, userID string) (*subscriptiondomain.UserSubscription, error) {
	return a.backend.GetUserSubscription(ctx, userID)
}

// RunOnce allocates the current billing period for every subscription that
// has not received it yet. A failing user is logged and skipped.
func (a *Allocator) RunOnce(ctx context.Context) (Result, error) {
	subs, err := a.backend.ListUserSubscriptions(ctx)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for i := range subs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		sub := subs[i]
		result.Processed++

		plan, err := a.catalog.Plan(sub.PlanID)
		if err != nil {
			result.Skipped++
			a.log.Warn("subscription references unknown plan",
				zap.String("user_id", sub.UserID),
				zap.String("plan_id", sub.PlanID),
			)
			continue
		}
		if !a.due(sub, plan) {
			result.Skipped++
			continue
		}
		if err := a.allocate(ctx, &sub, plan); err != nil {
			result.Failed++
			a.log.Warn("allocation failed for user",
				zap.String("user_id", sub.UserID),
				zap.String("plan_id", sub.PlanID),
				zap.Error(err),
			)
			continue
		}
		result.Allocated++
	}

	a.ledger.RecordSystem(ctx, "allocation run completed", map[string]any{
		"processed": result.Processed,
		"allocated": result.Allocated,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	return result, nil
}

func (a *Allocator) due(sub subscriptiondomain.UserSubscription, plan subscriptiondomain.SubscriptionPlan) bool {
	now := a.clock.Now()
	if sub.ExpiresAt != nil && sub.ExpiresAt.Before(now) {
		return false
	}
	if !sub.AutoRenew && sub.LastAllocatedAt != nil {
		return false
	}
	if sub.LastAllocatedAt == nil {
		return true
	}
	return sub.LastAllocatedAt.Before(plan.BillingPeriod.PeriodStart(now))
}

func (a *Allocator) allocate(ctx context.Context, sub *subscriptiondomain.UserSubscription, plan subscriptiondomain.SubscriptionPlan) error {
	now := a.clock.Now()
	periodStart := plan.BillingPeriod.PeriodStart(now)
	key := fmt.Sprintf("alloc:%s:%s:%s", sub.UserID, plan.ID, periodStart.Format("2006-01-02"))

	_, err := a.credits.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID:         sub.UserID,
		Amount:         plan.CreditLimit,
		Description:    fmt.Sprintf("%s plan allocation", plan.Name),
		IdempotencyKey: key,
		PlanID:         plan.ID,
		ValidityDays:   plan.ValidityDays,
	})
	if err != nil {
		return err
	}

	sub.LastAllocatedAt = &now
	sub.UpdatedAt = now
	if err := a.backend.UpsertUserSubscription(ctx, sub); err != nil {
		// The grant is safe either way: the next run replays the same key.
		a.log.Warn("allocation bookkeeping write failed",
			zap.String("user_id", sub.UserID),
			zap.Error(err),
		)
	}
	return nil
}
