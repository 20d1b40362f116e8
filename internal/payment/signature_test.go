package payment

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign_KnownVector(t *testing.T) {
	// sha256("amount=50000&payment_id=PAY123&status=success" + "topsecret")
	v := NewSignatureVerifier("topsecret")

	sig := v.Sign(map[string]any{
		"payment_id": "PAY123",
		"status":     "success",
		"amount":     json.Number("50000"),
	})

	assert.Equal(t, "fa7a87366dc158b414f4db10fc2336bdbe8cc06c2113dd5f52b2e6de6f3d844d", sig)
}

func TestVerify_RoundTrip(t *testing.T) {
	v := NewSignatureVerifier("secret-key")
	payload := map[string]any{
		"payment_id": "PAY01HV3B",
		"status":     "success",
		"amount":     json.Number("250000"),
		"timestamp":  "2026-08-30T10:00:00Z",
	}

	sig := v.Sign(payload)

	assert.True(t, v.Verify(payload, sig))
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	v := NewSignatureVerifier("secret-key")
	payload := map[string]any{
		"payment_id": "PAY01HV3B",
		"status":     "failed",
		"amount":     json.Number("250000"),
	}
	sig := v.Sign(payload)

	payload["status"] = "success"

	assert.False(t, v.Verify(payload, sig))
}

func TestVerify_RejectsEmptySignature(t *testing.T) {
	v := NewSignatureVerifier("secret-key")

	assert.False(t, v.Verify(map[string]any{"payment_id": "PAY1"}, ""))
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	payload := map[string]any{"payment_id": "PAY1", "status": "success"}
	sig := NewSignatureVerifier("secret-a").Sign(payload)

	assert.False(t, NewSignatureVerifier("secret-b").Verify(payload, sig))
}

func TestSign_NumbersKeepWireRepresentation(t *testing.T) {
	// A payload decoded with UseNumber must sign identically however the
	// values were typed upstream.
	v := NewSignatureVerifier("secret-key")

	body := []byte(`{"payment_id":"PAY1","amount":50000,"status":"success"}`)
	var decoded map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	require.NoError(t, dec.Decode(&decoded))

	fromStrings := v.Sign(map[string]any{
		"payment_id": "PAY1",
		"amount":     "50000",
		"status":     "success",
	})

	assert.Equal(t, fromStrings, v.Sign(decoded))
}
