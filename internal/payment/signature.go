package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// SignatureVerifier authenticates gateway callbacks. The canonical message
// is the payload's keys sorted lexicographically, rendered as key=value
// pairs joined with "&", with the shared secret appended, hashed with
// SHA-256 and hex-encoded.
type SignatureVerifier struct {
	secret string
}

func NewSignatureVerifier(secret string) *SignatureVerifier {
	return &SignatureVerifier{secret: secret}
}

// Sign computes the expected signature for a payload.
func (v *SignatureVerifier) Sign(payload map[string]any) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalValue(payload[k]))
	}
	b.WriteString(v.secret)

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Verify checks a provided signature against the payload in constant time.
func (v *SignatureVerifier) Verify(payload map[string]any, signature string) bool {
	if signature == "" {
		return false
	}
	expected := v.Sign(payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalValue renders a decoded JSON value the way the gateway does when
// it signs: plain scalars, no quoting. Decode payloads with UseNumber so
// numbers keep their wire representation.
func canonicalValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}
