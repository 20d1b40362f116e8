package history

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/common/money"
	"payledger/internal/payment"
	"payledger/internal/withdrawal"
)

type fakePayments struct {
	intents []*payment.Intent
}

func (f *fakePayments) ListByOwner(_ context.Context, _ string, limit int) ([]*payment.Intent, error) {
	if len(f.intents) > limit {
		return f.intents[:limit], nil
	}
	return f.intents, nil
}

type fakeWithdrawals struct {
	withdrawals []*withdrawal.Withdrawal
}

func (f *fakeWithdrawals) ListByOwner(_ context.Context, _ string, limit int) ([]*withdrawal.Withdrawal, error) {
	if len(f.withdrawals) > limit {
		return f.withdrawals[:limit], nil
	}
	return f.withdrawals, nil
}

func intentAt(id string, createdAt time.Time) *payment.Intent {
	return &payment.Intent{
		ID:        id,
		OwnerID:   "user-1",
		Amount:    money.New(50000, money.IDR),
		Method:    payment.MethodQRIS,
		Status:    payment.StatusSuccess,
		CreatedAt: createdAt,
	}
}

func withdrawalAt(id string, createdAt time.Time) *withdrawal.Withdrawal {
	return &withdrawal.Withdrawal{
		ID:        id,
		OwnerID:   "user-1",
		Amount:    money.New(75000, money.IDR),
		Method:    "bank_transfer",
		Status:    withdrawal.StatusCompleted,
		CreatedAt: createdAt,
	}
}

func TestList_MergesNewestFirst(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	svc := NewService(
		&fakePayments{intents: []*payment.Intent{
			intentAt("PAY1", base),
			intentAt("PAY2", base.Add(2*time.Minute)),
		}},
		&fakeWithdrawals{withdrawals: []*withdrawal.Withdrawal{
			withdrawalAt("WD1", base.Add(time.Minute)),
		}},
	)

	entries, err := svc.List(context.Background(), "user-1", "", 50)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, []string{"PAY2", "WD1", "PAY1"},
		[]string{entries[0].ID, entries[1].ID, entries[2].ID})
	assert.Equal(t, TypeDeposit, entries[0].Type)
	assert.Equal(t, TypeWithdrawal, entries[1].Type)
}

func TestList_TypeFilter(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	svc := NewService(
		&fakePayments{intents: []*payment.Intent{intentAt("PAY1", base)}},
		&fakeWithdrawals{withdrawals: []*withdrawal.Withdrawal{withdrawalAt("WD1", base)}},
	)

	deposits, err := svc.List(context.Background(), "user-1", TypeDeposit, 50)
	require.NoError(t, err)
	require.Len(t, deposits, 1)
	assert.Equal(t, "PAY1", deposits[0].ID)

	withdrawals, err := svc.List(context.Background(), "user-1", TypeWithdrawal, 50)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	assert.Equal(t, "WD1", withdrawals[0].ID)
}

func TestList_TruncatesToLimit(t *testing.T) {
	base := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)

	var intents []*payment.Intent
	for i := 0; i < 5; i++ {
		intents = append(intents, intentAt("PAY"+string(rune('A'+i)), base.Add(time.Duration(i)*time.Minute)))
	}

	svc := NewService(
		&fakePayments{intents: intents},
		&fakeWithdrawals{withdrawals: []*withdrawal.Withdrawal{
			withdrawalAt("WD1", base.Add(10*time.Minute)),
		}},
	)

	entries, err := svc.List(context.Background(), "user-1", "", 3)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest entry across both sources leads.
	assert.Equal(t, "WD1", entries[0].ID)
}

func TestList_EmptySources(t *testing.T) {
	svc := NewService(&fakePayments{}, &fakeWithdrawals{})

	entries, err := svc.List(context.Background(), "user-1", "", 50)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
