package payment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payledger/internal/common/money"
)

func testMethodConfig() MethodConfig {
	return MethodConfig{
		MerchantName:    "PAYLEDGER MERCHANT",
		MerchantCity:    "JAKARTA",
		PaymentBaseURL:  "https://pay.example.com",
		QRImageBaseURL:  "https://api.qrserver.com/v1/create-qr-code/",
		BankCode:        "BCA",
		BankAccountName: "PAYLEDGER MERCHANT",
		EWalletProvider: "DANA",
		EWalletPhone:    "081234567890",
		EWalletAccount:  "PAYLEDGER",
	}
}

func TestQRISInstructions(t *testing.T) {
	reg := NewAdapterRegistry(testMethodConfig())
	amount := money.New(50000, money.IDR)

	payload, ok := reg.Instructions(MethodQRIS, "PAY01HV3BQRISABC", amount).(QRISInstructions)
	require.True(t, ok)

	assert.True(t, strings.HasSuffix(payload.QRString, "SABC"))
	assert.Contains(t, payload.QRString, "PAYLEDGER MERCHANT")
	assert.Contains(t, payload.QRURL, "https://api.qrserver.com")
	assert.Equal(t, "https://pay.example.com/pay/PAY01HV3BQRISABC", payload.PaymentURL)
}

func TestQRISInstructions_Deterministic(t *testing.T) {
	reg := NewAdapterRegistry(testMethodConfig())
	amount := money.New(50000, money.IDR)

	first := reg.Instructions(MethodQRIS, "PAY1", amount)
	second := reg.Instructions(MethodQRIS, "PAY1", amount)

	assert.Equal(t, first, second)
}

func TestBankTransferInstructions(t *testing.T) {
	reg := NewAdapterRegistry(testMethodConfig())
	amount := money.New(150000, money.IDR)

	payload, ok := reg.Instructions(MethodBankTransfer, "PAY0001234", amount).(BankTransferInstructions)
	require.True(t, ok)

	assert.Equal(t, "BCA", payload.BankCode)
	assert.True(t, strings.HasPrefix(payload.AccountNumber, "888"))
	assert.Len(t, payload.AccountNumber, 10)
	// Non-digits in the id tail map to zero.
	assert.Equal(t, "8880001234", payload.AccountNumber)

	joined := strings.Join(payload.Steps, "\n")
	assert.Contains(t, joined, "Rp 150.000")
	assert.Contains(t, joined, payload.AccountNumber)
}

func TestVirtualAccountSuffix(t *testing.T) {
	tests := []struct {
		paymentID string
		want      string
	}{
		{"PAY0001234", "0001234"},
		{"PAYABCDEFG", "0000000"},
		{"42", "0000042"},
		{"PAY12X45Y7", "1204507"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, virtualAccountSuffix(tt.paymentID), "id %s", tt.paymentID)
	}
}

func TestEWalletInstructions(t *testing.T) {
	reg := NewAdapterRegistry(testMethodConfig())
	amount := money.New(75000, money.IDR)

	payload, ok := reg.Instructions(MethodEWallet, "PAY42", amount).(EWalletInstructions)
	require.True(t, ok)

	assert.Equal(t, "DANA", payload.Provider)
	assert.Equal(t, "081234567890", payload.PhoneNumber)
	assert.Equal(t, int64(75000), payload.Amount)
	assert.Contains(t, payload.Note, "PAY42")
}

func TestInstructions_UnknownMethod(t *testing.T) {
	reg := NewAdapterRegistry(testMethodConfig())

	assert.Nil(t, reg.Instructions(Method("card"), "PAY1", money.New(1000, money.IDR)))
}
