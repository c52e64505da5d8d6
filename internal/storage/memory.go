package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	creditdomain "github.com/smallbiznis/credits/internal/credit/domain"
	subscriptiondomain "github.com/smallbiznis/credits/internal/subscription/domain"
)

// MemoryBackend is the reference in-process implementation. A single mutex
// provides the conditional-write semantics the contract requires, so
// concurrent tests observe the same behavior as a shared database backend.
type MemoryBackend struct {
	mu            sync.RWMutex
	balances      map[string]creditdomain.BalanceRecord
	transactions  map[string]creditdomain.Transaction
	txOrder       []string
	reservations  map[string]creditdomain.Reservation
	grants        map[string]creditdomain.CreditGrant
	ledger        []creditdomain.LedgerEntry
	ledgerSeq     int64
	subscriptions map[string]subscriptiondomain.UserSubscription
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		balances:      make(map[string]creditdomain.BalanceRecord),
		transactions:  make(map[string]creditdomain.Transaction),
		reservations:  make(map[string]creditdomain.Reservation),
		grants:        make(map[string]creditdomain.CreditGrant),
		subscriptions: make(map[string]subscriptiondomain.UserSubscription),
	}
}

var _ Backend = (*MemoryBackend)(nil)

func (m *MemoryBackend) GetBalance(ctx context.Context, userID string) (*creditdomain.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.balances[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *MemoryBackend) CreateBalance(ctx context.Context, record *creditdomain.BalanceRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[record.UserID]; ok {
		return ErrDuplicate
	}
	m.balances[record.UserID] = *record
	return nil
}

func (m *MemoryBackend) CASUpdateBalance(ctx context.Context, userID string, expectedVersion, available, reserved int64, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.balances[userID]
	if !ok {
		return ErrNotFound
	}
	if record.Version != expectedVersion {
		return ErrVersionConflict
	}
	record.Available = available
	record.Reserved = reserved
	record.Version++
	record.UpdatedAt = updatedAt
	m.balances[userID] = record
	return nil
}

func (m *MemoryBackend) AppendTransaction(ctx context.Context, tx *creditdomain.Transaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transactions[tx.ID]; ok {
		return ErrDuplicate
	}
	m.transactions[tx.ID] = *tx
	m.txOrder = append(m.txOrder, tx.ID)
	return nil
}

func (m *MemoryBackend) GetTransaction(ctx context.Context, id string) (*creditdomain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	tx, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (m *MemoryBackend) ListTransactions(ctx context.Context, userID string) ([]creditdomain.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []creditdomain.Transaction
	for _, id := range m.txOrder {
		tx := m.transactions[id]
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MemoryBackend) GetReservation(ctx context.Context, reservationID string) (*creditdomain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	reservation, ok := m.reservations[reservationID]
	if !ok {
		return nil, ErrNotFound
	}
	return &reservation, nil
}

func (m *MemoryBackend) ListReservations(ctx context.Context, userID string, status creditdomain.ReservationStatus) ([]creditdomain.Reservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []creditdomain.Reservation
	for _, reservation := range m.reservations {
		if reservation.UserID != userID {
			continue
		}
		if status != "" && reservation.Status != status {
			continue
		}
		out = append(out, reservation)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryBackend) UpsertReservation(ctx context.Context, reservation *creditdomain.Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[reservation.ID] = *reservation
	return nil
}

func (m *MemoryBackend) CloseReservation(ctx context.Context, reservationID string, status creditdomain.ReservationStatus, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	reservation, ok := m.reservations[reservationID]
	if !ok {
		return ErrNotFound
	}
	if !reservation.Open() {
		return ErrVersionConflict
	}
	reservation.Status = status
	reservation.UpdatedAt = updatedAt
	m.reservations[reservationID] = reservation
	return nil
}

func (m *MemoryBackend) ListGrants(ctx context.Context, userID string) ([]creditdomain.CreditGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []creditdomain.CreditGrant
	for _, grant := range m.grants {
		if grant.UserID == userID {
			out = append(out, grant)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryBackend) UpsertGrant(ctx context.Context, grant *creditdomain.CreditGrant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[grant.ID] = *grant
	return nil
}

func (m *MemoryBackend) AppendLedgerEntry(ctx context.Context, entry *creditdomain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == 0 {
		m.ledgerSeq++
		entry.ID = m.ledgerSeq
	}
	m.ledger = append(m.ledger, *entry)
	return nil
}

func (m *MemoryBackend) ListLedgerEntries(ctx context.Context, userID string, category creditdomain.LedgerCategory) ([]creditdomain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []creditdomain.LedgerEntry
	for _, entry := range m.ledger {
		if userID != "" && entry.UserID != userID {
			continue
		}
		if category != "" && entry.Category != category {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func (m *MemoryBackend) GetUserSubscription(ctx context.Context, userID string) (*subscriptiondomain.UserSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	sub, ok := m.subscriptions[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &sub, nil
}

func (m *MemoryBackend) UpsertUserSubscription(ctx context.Context, sub *subscriptiondomain.UserSubscription) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.UserID] = *sub
	return nil
}

func (m *MemoryBackend) ListUserSubscriptions(ctx context.Context) ([]subscriptiondomain.UserSubscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]subscriptiondomain.UserSubscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *MemoryBackend) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.balances))
	for userID := range m.balances {
		out = append(out, userID)
	}
	sort.Strings(out)
	return out, nil
}
