package payment

import (
	"fmt"
	"net/url"
	"strings"

	"payledger/internal/common/money"
)

// Method identifies how a payment intent is expected to be funded.
type Method string

const (
	MethodQRIS         Method = "qris"
	MethodBankTransfer Method = "bank_transfer"
	MethodEWallet      Method = "ewallet"
)

// ParseMethod validates a client-supplied payment method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodQRIS, MethodBankTransfer, MethodEWallet:
		return Method(s), nil
	default:
		return "", ErrInvalidMethod
	}
}

// MethodAdapter produces the instruction payload a payer needs to fund an
// intent through a given method. Adapters are pure: same intent in, same
// payload out, no I/O and no gateway calls.
type MethodAdapter interface {
	Method() Method
	Instructions(paymentID string, amount money.Money) any
}

// MethodConfig carries the merchant-side constants baked into instruction
// payloads.
type MethodConfig struct {
	MerchantName   string `envconfig:"MERCHANT_NAME" default:"PAYLEDGER MERCHANT"`
	MerchantCity   string `envconfig:"MERCHANT_CITY" default:"JAKARTA"`
	PaymentBaseURL string `envconfig:"PAYMENT_BASE_URL" default:"https://pay.example.com"`
	QRImageBaseURL string `envconfig:"QR_IMAGE_BASE_URL" default:"https://api.qrserver.com/v1/create-qr-code/"`

	BankCode        string `envconfig:"VA_BANK_CODE" default:"BCA"`
	BankAccountName string `envconfig:"VA_ACCOUNT_NAME" default:"PAYLEDGER MERCHANT"`

	EWalletProvider string `envconfig:"EWALLET_PROVIDER" default:"DANA"`
	EWalletPhone    string `envconfig:"EWALLET_PHONE" default:"081234567890"`
	EWalletAccount  string `envconfig:"EWALLET_ACCOUNT_NAME" default:"PAYLEDGER"`
}

// AdapterRegistry resolves a method to its adapter.
type AdapterRegistry struct {
	adapters map[Method]MethodAdapter
}

func NewAdapterRegistry(cfg MethodConfig) *AdapterRegistry {
	return &AdapterRegistry{
		adapters: map[Method]MethodAdapter{
			MethodQRIS:         &qrisAdapter{cfg: cfg},
			MethodBankTransfer: &bankTransferAdapter{cfg: cfg},
			MethodEWallet:      &ewalletAdapter{cfg: cfg},
		},
	}
}

// Instructions builds the payload for the given method. The method is
// validated at intent creation, so a miss here is a programming error.
func (r *AdapterRegistry) Instructions(method Method, paymentID string, amount money.Money) any {
	adapter, ok := r.adapters[method]
	if !ok {
		return nil
	}
	return adapter.Instructions(paymentID, amount)
}

// QRISInstructions is the payload for QRIS payments.
type QRISInstructions struct {
	QRString   string `json:"qr_string"`
	QRURL      string `json:"qr_url"`
	PaymentURL string `json:"payment_url"`
	Steps      string `json:"steps"`
}

type qrisAdapter struct {
	cfg MethodConfig
}

func (a *qrisAdapter) Method() Method { return MethodQRIS }

func (a *qrisAdapter) Instructions(paymentID string, amount money.Money) any {
	suffix := paymentID
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	deeplink := fmt.Sprintf("%s/scan/%s/%d", a.cfg.PaymentBaseURL, paymentID, amount.AmountMinor)

	return QRISInstructions{
		QRString: fmt.Sprintf(
			"00020101021226680014ID.CO.QRIS.WWW0118936009110022222222220303UME51450014ID.CO.QRIS.WWW0215ID12345678901230303UME520454995802ID5920%s6007%s6105101406304%s",
			a.cfg.MerchantName, a.cfg.MerchantCity, suffix,
		),
		QRURL:      a.cfg.QRImageBaseURL + "?size=250x250&data=" + url.QueryEscape(deeplink),
		PaymentURL: fmt.Sprintf("%s/pay/%s", a.cfg.PaymentBaseURL, paymentID),
		Steps:      "Scan the QR code with any e-wallet or mobile banking app",
	}
}

// BankTransferInstructions is the payload for virtual-account transfers.
type BankTransferInstructions struct {
	BankCode      string   `json:"bank_code"`
	AccountNumber string   `json:"account_number"`
	AccountName   string   `json:"account_name"`
	Steps         []string `json:"steps"`
}

type bankTransferAdapter struct {
	cfg MethodConfig
}

func (a *bankTransferAdapter) Method() Method { return MethodBankTransfer }

func (a *bankTransferAdapter) Instructions(paymentID string, amount money.Money) any {
	va := "888" + virtualAccountSuffix(paymentID)

	return BankTransferInstructions{
		BankCode:      a.cfg.BankCode,
		AccountNumber: va,
		AccountName:   a.cfg.BankAccountName,
		Steps: []string{
			fmt.Sprintf("Open your %s mobile banking app", a.cfg.BankCode),
			fmt.Sprintf("Choose transfer to %s Virtual Account", a.cfg.BankCode),
			"Enter account number " + va,
			"Transfer exactly " + amount.String(),
			"Confirm the transfer",
		},
	}
}

// virtualAccountSuffix derives 7 digits from the tail of the payment id.
// Non-digit characters map to zero so the account number stays numeric.
func virtualAccountSuffix(paymentID string) string {
	tail := paymentID
	if len(tail) > 7 {
		tail = tail[len(tail)-7:]
	}
	var b strings.Builder
	for i := len(tail); i < 7; i++ {
		b.WriteByte('0')
	}
	for _, c := range tail {
		if c >= '0' && c <= '9' {
			b.WriteRune(c)
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// EWalletInstructions is the payload for e-wallet transfers.
type EWalletInstructions struct {
	Provider    string `json:"provider"`
	PhoneNumber string `json:"phone_number"`
	AccountName string `json:"account_name"`
	Amount      int64  `json:"amount"`
	Note        string `json:"note"`
	Steps       string `json:"steps"`
}

type ewalletAdapter struct {
	cfg MethodConfig
}

func (a *ewalletAdapter) Method() Method { return MethodEWallet }

func (a *ewalletAdapter) Instructions(paymentID string, amount money.Money) any {
	return EWalletInstructions{
		Provider:    a.cfg.EWalletProvider,
		PhoneNumber: a.cfg.EWalletPhone,
		AccountName: a.cfg.EWalletAccount,
		Amount:      amount.AmountMinor,
		Note:        "Payment ID: " + paymentID,
		Steps: fmt.Sprintf("Transfer to %s number %s (%s) and include the payment ID in the note",
			a.cfg.EWalletProvider, a.cfg.EWalletPhone, a.cfg.EWalletAccount),
	}
}
