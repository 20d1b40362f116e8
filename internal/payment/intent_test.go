package payment

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/common/money"
)

func TestNewPaymentID(t *testing.T) {
	id := NewPaymentID()

	assert.True(t, strings.HasPrefix(id, "PAY"))
	assert.Len(t, id, 3+26)
	assert.NotEqual(t, id, NewPaymentID())
}

func TestNewIntent(t *testing.T) {
	amount := money.New(50000, money.IDR)

	intent, err := NewIntent("PAY1", "user-1", amount, MethodQRIS, "topup", 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, intent.Status)
	assert.Equal(t, "user-1", intent.OwnerID)
	assert.False(t, intent.IsTerminal())
	assert.WithinDuration(t, time.Now().UTC().Add(5*time.Minute), intent.ExpiresAt, time.Second)
}

func TestNewIntent_Validation(t *testing.T) {
	amount := money.New(50000, money.IDR)

	_, err := NewIntent("", "user-1", amount, MethodQRIS, "", 5*time.Minute)
	assert.Error(t, err)

	_, err = NewIntent("PAY1", "", amount, MethodQRIS, "", 5*time.Minute)
	assert.Error(t, err)

	_, err = NewIntent("PAY1", "user-1", money.Zero(money.IDR), MethodQRIS, "", 5*time.Minute)
	assert.Error(t, err)
}

func TestIntent_IsExpired(t *testing.T) {
	intent, err := NewIntent("PAY1", "user-1", money.New(1000, money.IDR), MethodQRIS, "", 5*time.Minute)
	require.NoError(t, err)

	assert.False(t, intent.IsExpired(time.Now().UTC()))
	assert.True(t, intent.IsExpired(time.Now().UTC().Add(6*time.Minute)))

	// Terminal intents never read as expired, regardless of the clock.
	require.NoError(t, intent.MarkSettled(StatusSuccess, time.Now()))
	assert.False(t, intent.IsExpired(time.Now().UTC().Add(time.Hour)))
}

func TestIntent_MarkSettled(t *testing.T) {
	intent, err := NewIntent("PAY1", "user-1", money.New(1000, money.IDR), MethodQRIS, "", 5*time.Minute)
	require.NoError(t, err)

	settledAt := time.Now()
	require.NoError(t, intent.MarkSettled(StatusFailed, settledAt))

	assert.Equal(t, StatusFailed, intent.Status)
	assert.True(t, intent.IsTerminal())
	require.NotNil(t, intent.SettledAt)

	// Terminal states are absorbing.
	assert.Error(t, intent.MarkSettled(StatusSuccess, time.Now()))
	assert.Error(t, intent.MarkExpired())
	assert.Equal(t, StatusFailed, intent.Status)
}

func TestIntent_MarkSettled_RejectsNonTerminalTarget(t *testing.T) {
	intent, err := NewIntent("PAY1", "user-1", money.New(1000, money.IDR), MethodQRIS, "", 5*time.Minute)
	require.NoError(t, err)

	assert.Error(t, intent.MarkSettled(StatusExpired, time.Now()))
	assert.Error(t, intent.MarkSettled(StatusPending, time.Now()))
	assert.Equal(t, StatusPending, intent.Status)
}

func TestParseStatus(t *testing.T) {
	status, err := ParseStatus("success")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, status)

	status, err = ParseStatus("failed")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, status)

	for _, s := range []string{"pending", "expired", "SUCCESS", "", "done"} {
		_, err := ParseStatus(s)
		assert.ErrorIs(t, err, ErrInvalidStatus, "status %q", s)
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []string{"qris", "bank_transfer", "ewallet"} {
		method, err := ParseMethod(m)
		require.NoError(t, err)
		assert.Equal(t, Method(m), method)
	}

	_, err := ParseMethod("card")
	assert.ErrorIs(t, err, ErrInvalidMethod)
}
