package withdrawal

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/common/database"
	"payledger/internal/common/events"
	"payledger/internal/common/money"
	"payledger/internal/ledger"
)

type memStore struct {
	mu          sync.Mutex
	withdrawals map[string]*Withdrawal
	failCreate  error
}

func newMemStore() *memStore {
	return &memStore{withdrawals: map[string]*Withdrawal{}}
}

func (m *memStore) CreateWithdrawal(_ context.Context, wd *Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	cp := *wd
	m.withdrawals[wd.ID] = &cp
	return nil
}

func (m *memStore) GetWithdrawal(_ context.Context, id string) (*Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wd, ok := m.withdrawals[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *wd
	return &cp, nil
}

func (m *memStore) TransitionStatus(_ context.Context, id string, from, to Status, processedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wd, ok := m.withdrawals[id]
	if !ok || wd.Status != from {
		return false, nil
	}
	wd.Status = to
	if processedAt != nil {
		wd.ProcessedAt = processedAt
	}
	wd.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memStore) MarkReversed(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wd, ok := m.withdrawals[id]; ok {
		wd.Reversed = true
	}
	return nil
}

func (m *memStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]*Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Withdrawal
	for _, wd := range m.withdrawals {
		if wd.OwnerID == ownerID && len(out) < limit {
			cp := *wd
			out = append(out, &cp)
		}
	}
	return out, nil
}

// memLedger mimics the ledger service: atomic floor-checked debits and
// exactly-once credits per key.
type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	applied  map[string]bool
}

func newMemLedger() *memLedger {
	return &memLedger{balances: map[string]int64{}, applied: map[string]bool{}}
}

func (m *memLedger) Debit(_ context.Context, ownerID string, amount money.Money) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[ownerID] < amount.AmountMinor {
		return ledger.ErrInsufficientBalance
	}
	m.balances[ownerID] -= amount.AmountMinor
	return nil
}

func (m *memLedger) Credit(_ context.Context, ownerID string, amount money.Money, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.applied[key] {
		return nil
	}
	m.applied[key] = true
	m.balances[ownerID] += amount.AmountMinor
	return nil
}

func (m *memLedger) balance(ownerID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[ownerID]
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, string, *events.Envelope) error { return nil }

func newTestService(store *memStore, lgr *memLedger) *Service {
	cfg := Config{MinAmount: 50000, Currency: "IDR"}
	return NewService(store, lgr, nopPublisher{}, cfg, slog.Default())
}

func createRequest(amount int64) *CreateRequest {
	return &CreateRequest{
		OwnerID:       "admin-1",
		Amount:        amount,
		Method:        "bank_transfer",
		BankName:      "BCA",
		AccountNumber: "1234567890",
		AccountName:   "PT Example",
	}
}

func TestCreate_DebitsBeforePersist(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	wd, err := svc.Create(context.Background(), createRequest(150000))
	require.NoError(t, err)

	assert.Equal(t, StatusPending, wd.Status)
	assert.Equal(t, int64(50000), lgr.balance("admin-1"))

	stored, err := store.GetWithdrawal(context.Background(), wd.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCreate_BelowMinimum(t *testing.T) {
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(newMemStore(), lgr)

	_, err := svc.Create(context.Background(), createRequest(49999))
	assert.ErrorIs(t, err, ErrBelowMinimum)

	// Nothing was debited.
	assert.Equal(t, int64(200000), lgr.balance("admin-1"))
}

func TestCreate_InsufficientBalance(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 100000
	svc := newTestService(store, lgr)

	_, err := svc.Create(context.Background(), createRequest(150000))
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.Equal(t, int64(100000), lgr.balance("admin-1"))
	assert.Empty(t, store.withdrawals)
}

func TestCreate_CompensatesDebitOnPersistFailure(t *testing.T) {
	store := newMemStore()
	store.failCreate = assert.AnError
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	_, err := svc.Create(context.Background(), createRequest(150000))
	assert.Error(t, err)

	// The debit was rolled back by the compensating credit.
	assert.Equal(t, int64(200000), lgr.balance("admin-1"))
}

func TestCreate_ConcurrentCannotOverdraw(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 100000
	svc := newTestService(store, lgr)

	// Two concurrent 60k withdrawals against 100k: one wins, one fails.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Create(context.Background(), createRequest(60000))
		}(i)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Equal(t, int64(40000), lgr.balance("admin-1"))
	assert.Len(t, store.withdrawals, 1)
}

func TestTransition_RejectRefundsOnce(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	wd, err := svc.Create(context.Background(), createRequest(150000))
	require.NoError(t, err)
	require.Equal(t, int64(50000), lgr.balance("admin-1"))

	rejected, err := svc.Transition(context.Background(), wd.ID, StatusRejected)
	require.NoError(t, err)

	assert.Equal(t, StatusRejected, rejected.Status)
	assert.True(t, rejected.Reversed)
	assert.Equal(t, int64(200000), lgr.balance("admin-1"))

	// Repeating the rejection is an idempotent no-op for the balance.
	rejected, err = svc.Transition(context.Background(), wd.ID, StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)
	assert.Equal(t, int64(200000), lgr.balance("admin-1"))
}

func TestTransition_CompleteKeepsDebit(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	wd, err := svc.Create(context.Background(), createRequest(150000))
	require.NoError(t, err)

	completed, err := svc.Transition(context.Background(), wd.ID, StatusCompleted)
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, completed.Status)
	assert.NotNil(t, completed.ProcessedAt)
	assert.Equal(t, int64(50000), lgr.balance("admin-1"))
}

func TestTransition_ProcessingThenCompleted(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	wd, err := svc.Create(context.Background(), createRequest(150000))
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), wd.ID, StatusProcessing)
	require.NoError(t, err)

	completed, err := svc.Transition(context.Background(), wd.ID, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
}

func TestTransition_TerminalIsAbsorbing(t *testing.T) {
	store := newMemStore()
	lgr := newMemLedger()
	lgr.balances["admin-1"] = 200000
	svc := newTestService(store, lgr)

	wd, err := svc.Create(context.Background(), createRequest(150000))
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), wd.ID, StatusCompleted)
	require.NoError(t, err)

	_, err = svc.Transition(context.Background(), wd.ID, StatusRejected)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// A completed withdrawal never refunds.
	assert.Equal(t, int64(50000), lgr.balance("admin-1"))
}

func TestTransition_UnknownWithdrawal(t *testing.T) {
	svc := newTestService(newMemStore(), newMemLedger())

	_, err := svc.Transition(context.Background(), "WDMISSING", StatusCompleted)
	assert.True(t, database.IsNotFound(err))
}
