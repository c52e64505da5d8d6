// Package subscription assigns plans to users and allocates their
// per-period credit pools.
package subscription

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	subscriptiondomain "github.com/smallbiznis/credits/internal/subscription/domain"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// ErrPlanNotFound is returned when a plan id is absent from the catalog
// or inactive.
var ErrPlanNotFound = errors.New("plan_not_found")

// DefaultPlans seeds the catalog when no config file is present.
func DefaultPlans() []subscriptiondomain.SubscriptionPlan {
	return []subscriptiondomain.SubscriptionPlan{
		{
			ID:            "free",
			Name:          "Free",
			CreditLimit:   100,
			Price:         0,
			BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
			ValidityDays:  30,
			IsActive:      true,
		},
		{
			ID:            "starter",
			Name:          "Starter",
			CreditLimit:   1_000,
			Price:         9.99,
			BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
			ValidityDays:  30,
			IsActive:      true,
		},
		{
			ID:            "pro",
			Name:          "Pro",
			CreditLimit:   10_000,
			Price:         49.99,
			BillingPeriod: subscriptiondomain.BillingPeriodMonthly,
			ValidityDays:  30,
			IsActive:      true,
		},
	}
}

// PlanCatalogHolder serves the plan catalog and hot-reloads it when the
// config file changes. A reload that fails validation is ignored; the
// last good catalog keeps serving.
type PlanCatalogHolder struct {
	current atomic.Value // holds []subscriptiondomain.SubscriptionPlan
	log     *zap.Logger
}

// NewPlanCatalogHolder loads the catalog from path, or from the default
// search locations when path is empty.
func NewPlanCatalogHolder(path string, log *zap.Logger) (*PlanCatalogHolder, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/credits/config")
		v.AddConfigPath("/etc/credits")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CREDITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		v.SetDefault("plans", DefaultPlans())
	}

	var plans []subscriptiondomain.SubscriptionPlan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, err
	}
	if err := validatePlans(plans); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{log: log.Named("subscription.catalog")}
	holder.current.Store(plans)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated []subscriptiondomain.SubscriptionPlan
		if err := v.UnmarshalKey("plans", &updated); err != nil {
			holder.log.Warn("plan catalog reload failed", zap.Error(err))
			return
		}
		if err := validatePlans(updated); err != nil {
			holder.log.Warn("invalid plan catalog ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		holder.log.Info("plan catalog reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// Plans returns every active plan in the catalog.
func (h *PlanCatalogHolder) Plans() []subscriptiondomain.SubscriptionPlan {
	all := h.current.Load().([]subscriptiondomain.SubscriptionPlan)
	out := make([]subscriptiondomain.SubscriptionPlan, 0, len(all))
	for _, plan := range all {
		if plan.IsActive {
			out = append(out, plan)
		}
	}
	return out
}

// Plan looks up an active plan by id.
func (h *PlanCatalogHolder) Plan(id string) (subscriptiondomain.SubscriptionPlan, error) {
	for _, plan := range h.Plans() {
		if plan.ID == id {
			return plan, nil
		}
	}
	return subscriptiondomain.SubscriptionPlan{}, ErrPlanNotFound
}

func validatePlans(plans []subscriptiondomain.SubscriptionPlan) error {
	if len(plans) == 0 {
		return errors.New("plan catalog cannot be empty")
	}
	seen := make(map[string]struct{}, len(plans))
	for _, plan := range plans {
		if plan.ID == "" {
			return errors.New("plan id cannot be empty")
		}
		if _, dup := seen[plan.ID]; dup {
			return errors.New("duplicate plan id: " + plan.ID)
		}
		seen[plan.ID] = struct{}{}
		if plan.CreditLimit <= 0 {
			return errors.New("plan credit_limit must be positive: " + plan.ID)
		}
		if !plan.BillingPeriod.Valid() {
			return errors.New("plan billing_period invalid: " + plan.ID)
		}
	}
	return nil
}
