package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/credits/internal/cache"
	"github.com/smallbiznis/credits/internal/clock"
	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	"github.com/smallbiznis/credits/internal/ledger"
	"github.com/smallbiznis/credits/internal/notification"
	"github.com/smallbiznis/credits/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	backend *storage.MemoryBackend
	clock   *clock.FakeClock
	queue   *notification.MemoryQueue
	svc     creditdomain.Service
}

// newFixtureWithBackend lets tests interpose a faulty backend while the
// memory backend keeps serving as the underlying store.
func newFixtureWithBackend(t *testing.T, memory *storage.MemoryBackend, backend storage.Backend) *fixture {
	t.Helper()
	log := zap.NewNop()
	clk := clock.NewFakeClock(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	writer, err := ledger.NewWriter(backend, log, clk, node, "")
	require.NoError(t, err)
	queue := notification.NewMemoryQueue()

	svc := NewService(Params{
		Backend: backend,
		Ledger:  writer,
		Cache:   cache.NewMemoryBalanceCache(),
		Log:     log,
		Clock:   clk,
		GenID:   node,
		Trigger: notification.NewTrigger(queue, log, clk, 10),
	})
	return &fixture{backend: memory, clock: clk, queue: queue, svc: svc}
}

func newMemoryFixture(t *testing.T) *fixture {
	t.Helper()
	memory := storage.NewMemoryBackend()
	return newFixtureWithBackend(t, memory, memory)
}

func (f *fixture) add(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := f.svc.AddCredits(context.Background(), creditdomain.AddCreditsRequest{
		UserID: userID,
		Amount: amount,
	})
	require.NoError(t, err)
}

func (f *fixture) info(t *testing.T, userID string) creditdomain.UserCreditInfo {
	t.Helper()
	info, err := f.svc.GetUserCreditsInfo(context.Background(), userID)
	require.NoError(t, err)
	return info
}

func TestAddCreditsCreatesBalance(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	tx, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID:      "user-1",
		Amount:      100,
		Description: "signup bonus",
	})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionKindAdd, tx.Kind)
	assert.Equal(t, int64(100), tx.AvailableAfter)
	assert.Equal(t, int64(0), tx.ReservedAfter)
	assert.NotEmpty(t, tx.ID)

	info := f.info(t, "user-1")
	assert.Equal(t, int64(100), info.Available)
	assert.Equal(t, int64(0), info.Reserved)
	assert.Equal(t, int64(100), info.Total)
}

func TestAddCreditsRejectsNonPositiveAmount(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	for _, amount := range []int64{0, -5} {
		_, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{UserID: "user-1", Amount: amount})
		assert.ErrorIs(t, err, creditdomain.ErrInvalidAmount)
	}

	_, err := f.svc.GetUserCreditsInfo(ctx, "user-1")
	assert.ErrorIs(t, err, creditdomain.ErrUserNotFound)
}

func TestAddCreditsIdempotentReplay(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	req := creditdomain.AddCreditsRequest{
		UserID:         "user-1",
		Amount:         50,
		IdempotencyKey: "topup-2024-06",
	}

	first, err := f.svc.AddCredits(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.AddCredits(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.AvailableAfter, second.AvailableAfter)
	assert.Equal(t, int64(50), f.info(t, "user-1").Available)

	history, err := f.svc.GetCreditHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestAddCreditsRecordsGrant(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID:       "user-1",
		Amount:       200,
		PlanID:       "pro",
		ValidityDays: 14,
	})
	require.NoError(t, err)

	grants, err := f.backend.ListGrants(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "pro", grants[0].PlanID)
	assert.Equal(t, int64(200), grants[0].Remaining)
	assert.Equal(t, f.clock.Now().AddDate(0, 0, 14), grants[0].ExpiresAt)
	assert.False(t, grants[0].Expired)
}

func TestDeductCredits(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	tx, err := f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{
		UserID:      "user-1",
		Amount:      30,
		Description: "api usage",
	})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionKindDeduct, tx.Kind)
	assert.Equal(t, int64(70), tx.AvailableAfter)
	assert.Equal(t, int64(70), f.info(t, "user-1").Available)
}

func TestDeductCreditsUnknownUser(t *testing.T) {
	f := newMemoryFixture(t)

	_, err := f.svc.DeductCredits(context.Background(), creditdomain.DeductCreditsRequest{
		UserID: "ghost",
		Amount: 10,
	})
	assert.ErrorIs(t, err, creditdomain.ErrUserNotFound)
}

func TestDeductCreditsInsufficient(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 20)

	_, err := f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{UserID: "user-1", Amount: 50})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)

	// Balance untouched and the failure is on the error trail.
	assert.Equal(t, int64(20), f.info(t, "user-1").Available)
	entries, err := f.backend.ListLedgerEntries(ctx, "user-1", creditdomain.LedgerCategoryError)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Contains(t, entries[0].Message, "deduct")
}

func TestDeductCreditsLowBalanceNotification(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	_, err := f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{UserID: "user-1", Amount: 95})
	require.NoError(t, err)

	events := f.queue.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notification.EventLowCredits, events[0].Kind)
	assert.Equal(t, "user-1", events[0].UserID)
	assert.Equal(t, int64(5), events[0].Payload["available"])
}

func TestReserveCommitRoundTrip(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{
		UserID: "user-1",
		Amount: 30,
		Reason: "batch job",
	})
	require.NoError(t, err)
	assert.True(t, reservation.Open())
	assert.NotEmpty(t, reservation.ID)

	mid := f.info(t, "user-1")
	assert.Equal(t, int64(70), mid.Available)
	assert.Equal(t, int64(30), mid.Reserved)
	assert.Equal(t, int64(100), mid.Total)

	tx, err := f.svc.CommitReservation(ctx, creditdomain.CommitReservationRequest{
		ReservationID: reservation.ID,
		ActualAmount:  20,
	})
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionKindCommit, tx.Kind)
	assert.Equal(t, int64(20), tx.Amount)

	// 100 - 20 actually used; the 10 remainder flowed back to available.
	final := f.info(t, "user-1")
	assert.Equal(t, int64(80), final.Available)
	assert.Equal(t, int64(0), final.Reserved)
	assert.Equal(t, int64(80), final.Total)

	stored, err := f.backend.GetReservation(ctx, reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, creditdomain.ReservationStatusCommitted, stored.Status)
}

func TestReserveCreditsInsufficient(t *testing.T) {
	f := newMemoryFixture(t)
	f.add(t, "user-1", 10)

	_, err := f.svc.ReserveCredits(context.Background(), creditdomain.ReserveCreditsRequest{
		UserID: "user-1",
		Amount: 11,
	})
	assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
	assert.Equal(t, int64(10), f.info(t, "user-1").Available)
}

func TestReserveCreditsIdempotentRetry(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)
	req := creditdomain.ReserveCreditsRequest{
		UserID:        "user-1",
		Amount:        40,
		ReservationID: "res-1",
	}

	first, err := f.svc.ReserveCredits(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.ReserveCredits(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	info := f.info(t, "user-1")
	assert.Equal(t, int64(60), info.Available)
	assert.Equal(t, int64(40), info.Reserved)
}

func TestReserveCreditsClosedID(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	_, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{
		UserID: "user-1", Amount: 40, ReservationID: "res-1",
	})
	require.NoError(t, err)
	require.NoError(t, f.svc.ReleaseReservation(ctx, "res-1"))

	_, err = f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{
		UserID: "user-1", Amount: 40, ReservationID: "res-1",
	})
	assert.ErrorIs(t, err, creditdomain.ErrReservationAlreadyClosed)
}

func TestCommitMoreThanReserved(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{UserID: "user-1", Amount: 30})
	require.NoError(t, err)

	_, err = f.svc.CommitReservation(ctx, creditdomain.CommitReservationRequest{
		ReservationID: reservation.ID,
		ActualAmount:  31,
	})
	assert.ErrorIs(t, err, creditdomain.ErrInvalidAmount)

	// The hold survives a rejected commit.
	stored, err := f.backend.GetReservation(ctx, reservation.ID)
	require.NoError(t, err)
	assert.True(t, stored.Open())
}

func TestCommitClosedReservation(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{UserID: "user-1", Amount: 30})
	require.NoError(t, err)
	_, err = f.svc.CommitReservation(ctx, creditdomain.CommitReservationRequest{ReservationID: reservation.ID, ActualAmount: 30})
	require.NoError(t, err)

	_, err = f.svc.CommitReservation(ctx, creditdomain.CommitReservationRequest{ReservationID: reservation.ID, ActualAmount: 30})
	assert.ErrorIs(t, err, creditdomain.ErrReservationAlreadyClosed)
}

func TestCommitUnknownReservation(t *testing.T) {
	f := newMemoryFixture(t)

	_, err := f.svc.CommitReservation(context.Background(), creditdomain.CommitReservationRequest{
		ReservationID: "missing",
		ActualAmount:  1,
	})
	assert.ErrorIs(t, err, creditdomain.ErrReservationNotFound)
}

func TestReleaseRestoresBalance(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{UserID: "user-1", Amount: 25})
	require.NoError(t, err)
	require.NoError(t, f.svc.ReleaseReservation(ctx, reservation.ID))

	info := f.info(t, "user-1")
	assert.Equal(t, int64(100), info.Available)
	assert.Equal(t, int64(0), info.Reserved)

	// Releasing again is an idempotent no-op.
	require.NoError(t, f.svc.ReleaseReservation(ctx, reservation.ID))
	assert.Equal(t, int64(100), f.info(t, "user-1").Available)
}

func TestReleaseUnknownReservation(t *testing.T) {
	f := newMemoryFixture(t)

	err := f.svc.ReleaseReservation(context.Background(), "missing")
	assert.ErrorIs(t, err, creditdomain.ErrReservationNotFound)
}

func TestConcurrentDeductsNeverOverspend(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	const workers = 5
	results := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{
				UserID: "user-1",
				Amount: 40,
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, creditdomain.ErrInsufficientCredits)
		}
	}
	assert.Equal(t, 2, succeeded)
	assert.Equal(t, int64(20), f.info(t, "user-1").Available)
}

func TestContentionExhaustsRetries(t *testing.T) {
	memory := storage.NewMemoryBackend()
	f := newFixtureWithBackend(t, memory, &conflictingBackend{Backend: memory})
	ctx := context.Background()
	require.NoError(t, memory.CreateBalance(ctx, &creditdomain.BalanceRecord{
		UserID: "user-1", Available: 100, Version: 1, UpdatedAt: f.clock.Now(),
	}))

	_, err := f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{UserID: "user-1", Amount: 10})
	assert.ErrorIs(t, err, creditdomain.ErrContention)
}

func TestStorageUnavailableSurfaces(t *testing.T) {
	memory := storage.NewMemoryBackend()
	f := newFixtureWithBackend(t, memory, &unavailableBackend{Backend: memory})

	_, err := f.svc.GetUserCreditsInfo(context.Background(), "user-1")
	assert.ErrorIs(t, err, creditdomain.ErrStorageUnavailable)
}

func TestGetUserCreditsInfoServesCachedSnapshot(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	require.Equal(t, int64(100), f.info(t, "user-1").Available)

	// A write that bypasses the engine is invisible until invalidation.
	record, err := f.backend.GetBalance(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, f.backend.CASUpdateBalance(ctx, "user-1", record.Version, 5, 0, f.clock.Now()))
	assert.Equal(t, int64(100), f.info(t, "user-1").Available)

	// An engine write invalidates the snapshot synchronously.
	f.add(t, "user-1", 10)
	assert.Equal(t, int64(15), f.info(t, "user-1").Available)
}

func TestGetCreditHistory(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)
	_, err := f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{UserID: "user-1", Amount: 40})
	require.NoError(t, err)

	history, err := f.svc.GetCreditHistory(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, creditdomain.TransactionKindAdd, history[0].Kind)
	assert.Equal(t, creditdomain.TransactionKindDeduct, history[1].Kind)
}

func TestGetExpiringCredits(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID: "user-1", Amount: 100, PlanID: "starter", ValidityDays: 3,
	})
	require.NoError(t, err)
	_, err = f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID: "user-1", Amount: 50, PlanID: "starter", ValidityDays: 60,
	})
	require.NoError(t, err)

	expiring, err := f.svc.GetExpiringCredits(ctx, "user-1", 7*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(100), expiring.Total)
	require.Len(t, expiring.Grants, 1)
	assert.Equal(t, int64(100), expiring.Grants[0].Remaining)
}

func TestExpireCredits(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID: "user-1", Amount: 100, PlanID: "starter", ValidityDays: 5,
	})
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)
	removed, err := f.svc.ExpireCredits(ctx, "user-1", f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(100), removed)
	assert.Equal(t, int64(0), f.info(t, "user-1").Available)

	grants, err := f.backend.ListGrants(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.True(t, grants[0].Expired)
	assert.Equal(t, int64(0), grants[0].Remaining)

	history, err := f.svc.GetCreditHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, creditdomain.TransactionKindExpire, history[len(history)-1].Kind)
}

func TestExpireCreditsNeverDrivesAvailableNegative(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, creditdomain.AddCreditsRequest{
		UserID: "user-1", Amount: 100, PlanID: "starter", ValidityDays: 5,
	})
	require.NoError(t, err)
	_, err = f.svc.DeductCredits(ctx, creditdomain.DeductCreditsRequest{UserID: "user-1", Amount: 80})
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)
	removed, err := f.svc.ExpireCredits(ctx, "user-1", f.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(20), removed)
	assert.Equal(t, int64(0), f.info(t, "user-1").Available)
}

func TestExpireCreditsNothingToExpire(t *testing.T) {
	f := newMemoryFixture(t)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	removed, err := f.svc.ExpireCredits(ctx, "user-1", f.clock.Now())
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, int64(100), f.info(t, "user-1").Available)
}

func TestConcurrentReleasesReturnHoldOnce(t *testing.T) {
	memory := storage.NewMemoryBackend()
	gate := &sync.WaitGroup{}
	f := newFixtureWithBackend(t, memory, &gatedReservationReads{Backend: memory, gate: gate})
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{UserID: "user-1", Amount: 25})
	require.NoError(t, err)

	// Both releases observe the reservation open before either closes it.
	gate.Add(2)
	results := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.svc.ReleaseReservation(ctx, reservation.ID)
		}(i)
	}
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	info := f.info(t, "user-1")
	assert.Equal(t, int64(100), info.Available)
	assert.Equal(t, int64(0), info.Reserved)

	history, err := f.svc.GetCreditHistory(ctx, "user-1")
	require.NoError(t, err)
	var releases int
	for _, tx := range history {
		if tx.Kind == creditdomain.TransactionKindRelease {
			releases++
		}
	}
	assert.Equal(t, 1, releases)
}

func TestCommitAfterReleaseWithStaleRead(t *testing.T) {
	memory := storage.NewMemoryBackend()
	backend := &staleReservationReads{Backend: memory}
	f := newFixtureWithBackend(t, memory, backend)
	ctx := context.Background()
	f.add(t, "user-1", 100)

	reservation, err := f.svc.ReserveCredits(ctx, creditdomain.ReserveCreditsRequest{UserID: "user-1", Amount: 25})
	require.NoError(t, err)
	require.NoError(t, f.svc.ReleaseReservation(ctx, reservation.ID))

	// A commit acting on a stale open snapshot must lose the transition.
	backend.stale.Store(true)
	_, err = f.svc.CommitReservation(ctx, creditdomain.CommitReservationRequest{
		ReservationID: reservation.ID,
		ActualAmount:  25,
	})
	assert.ErrorIs(t, err, creditdomain.ErrReservationAlreadyClosed)

	// And a stale re-release must not return the hold a second time.
	require.NoError(t, f.svc.ReleaseReservation(ctx, reservation.ID))

	info := f.info(t, "user-1")
	assert.Equal(t, int64(100), info.Available)
	assert.Equal(t, int64(0), info.Reserved)
}

func TestConcurrentAddsSameKeyIncrementOnce(t *testing.T) {
	memory := storage.NewMemoryBackend()
	backend := &blindDedupBackend{Backend: memory}
	backend.misses.Store(2)
	f := newFixtureWithBackend(t, memory, backend)
	ctx := context.Background()
	req := creditdomain.AddCreditsRequest{
		UserID:         "user-1",
		Amount:         50,
		IdempotencyKey: "topup-2024-06",
	}

	// Both calls miss the idempotency probe, as two concurrent requests
	// with the same key would; the transaction append decides the winner
	// and the loser backs its increment out.
	first, err := f.svc.AddCredits(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.AddCredits(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(50), f.info(t, "user-1").Available)

	history, err := f.svc.GetCreditHistory(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

// conflictingBackend fails every conditional write with a version conflict.
type conflictingBackend struct {
	storage.Backend
}

func (b *conflictingBackend) CASUpdateBalance(ctx context.Context, userID string, expectedVersion, available, reserved int64, updatedAt time.Time) error {
	return storage.ErrVersionConflict
}

// unavailableBackend fails every read.
type unavailableBackend struct {
	storage.Backend
}

func (b *unavailableBackend) GetBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error) {
	return nil, storage.ErrUnavailable
}

// gatedReservationReads holds every reader that sees the reservation open
// until all expected readers have seen it.
type gatedReservationReads struct {
	storage.Backend
	gate *sync.WaitGroup
}

func (b *gatedReservationReads) GetReservation(ctx context.Context, id string) (*creditdomain.Reservation, error) {
	reservation, err := b.Backend.GetReservation(ctx, id)
	if err == nil && reservation.Open() {
		b.gate.Done()
		b.gate.Wait()
	}
	return reservation, err
}

// staleReservationReads serves reservation reads from before the close
// landed, like a replica lagging the status transition.
type staleReservationReads struct {
	storage.Backend
	stale atomic.Bool
}

func (b *staleReservationReads) GetReservation(ctx context.Context, id string) (*creditdomain.Reservation, error) {
	reservation, err := b.Backend.GetReservation(ctx, id)
	if err == nil && b.stale.Load() {
		snapshot := *reservation
		snapshot.Status = creditdomain.ReservationStatusOpen
		return &snapshot, nil
	}
	return reservation, err
}

// blindDedupBackend misses the first idempotency probes, reproducing
// concurrent adds that all check the key before any of them records it.
type blindDedupBackend struct {
	storage.Backend
	misses atomic.Int32
}

func (b *blindDedupBackend) GetTransaction(ctx context.Context, id string) (*creditdomain.Transaction, error) {
	if b.misses.Add(-1) >= 0 {
		return nil, storage.ErrNotFound
	}
	return b.Backend.GetTransaction(ctx, id)
}
