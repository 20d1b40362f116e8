package payment

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"payledger/internal/common/api"
	"payledger/internal/common/database"
)

// SignatureHeader carries the gateway's callback signature.
const SignatureHeader = "X-Callback-Signature"

// WebhookPayload is the structure of gateway settlement callbacks.
type WebhookPayload struct {
	PaymentID string      `json:"payment_id"`
	Status    string      `json:"status"`
	Amount    json.Number `json:"amount"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// WebhookHandler handles gateway settlement callbacks. The signature covers
// the full payload, so the raw body is canonicalized and verified before
// anything else looks at it.
type WebhookHandler struct {
	service  *Service
	verifier *SignatureVerifier
	logger   *slog.Logger
}

// NewWebhookHandler creates a new settlement webhook handler.
func NewWebhookHandler(service *Service, verifier *SignatureVerifier, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:  service,
		verifier: verifier,
		logger:   logger,
	}
}

// ServeHTTP handles incoming settlement callbacks.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		api.BadRequest(w, "failed to read body")
		return
	}
	defer r.Body.Close()

	// Decode with UseNumber so numeric values canonicalize exactly as the
	// gateway sent them.
	var raw map[string]any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		h.logger.Error("failed to parse webhook payload", "error", err)
		api.BadRequest(w, "invalid json")
		return
	}

	if !h.verifier.Verify(raw, r.Header.Get(SignatureHeader)) {
		h.logger.Warn("webhook signature mismatch", "payment_id", raw["payment_id"])
		api.Unauthorized(w, "invalid signature")
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.PaymentID == "" {
		api.BadRequest(w, "missing payment_id")
		return
	}

	h.logger.Info("received settlement callback",
		"payment_id", payload.PaymentID,
		"status", payload.Status,
	)

	var amount int64
	if payload.Amount != "" {
		v, perr := payload.Amount.Int64()
		if perr != nil {
			// Gateways format whole amounts with decimals ("50000.00").
			if f, ferr := payload.Amount.Float64(); ferr == nil && f == math.Trunc(f) {
				v = int64(f)
			} else {
				h.logger.Warn("unparseable settlement amount",
					"payment_id", payload.PaymentID,
					"amount", payload.Amount.String(),
				)
				// Can never match the stored amount, so the cross-check
				// reports it instead of silently skipping.
				v = -1
			}
		}
		amount = v
	}

	var ts time.Time
	if payload.Timestamp != "" {
		if t, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
			ts = t
		}
	}

	err = h.service.ApplySettlement(ctx, &SettlementNotification{
		PaymentID:  payload.PaymentID,
		Status:     payload.Status,
		Amount:     amount,
		Timestamp:  ts,
		RawPayload: body,
	})
	switch {
	case err == nil:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	case database.IsNotFound(err):
		api.NotFound(w, "payment not found")
	case isValidationError(err):
		api.BadRequest(w, err.Error())
	default:
		h.logger.Error("failed to apply settlement",
			"payment_id", payload.PaymentID,
			"error", err,
		)
		api.InternalError(w, "failed to process settlement")
	}
}
