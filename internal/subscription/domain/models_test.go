package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPeriodStart(t *testing.T) {
	at := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), BillingPeriodDaily.PeriodStart(at))
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), BillingPeriodMonthly.PeriodStart(at))
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), BillingPeriodYearly.PeriodStart(at))
}

func TestBillingPeriodValid(t *testing.T) {
	assert.True(t, BillingPeriodDaily.Valid())
	assert.True(t, BillingPeriodMonthly.Valid())
	assert.True(t, BillingPeriodYearly.Valid())
	assert.False(t, BillingPeriod("weekly").Valid())
}
