// Package webhookauth authenticates inbound payment webhooks with a shared
// secret and/or an HMAC-SHA256 signature over the raw body.
package webhookauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	pkgerrors "github.com/ovenly/backend/pkg/errors"
)

const (
	HeaderSecret    = "X-Webhook-Secret"
	HeaderSignature = "X-Webhook-Signature"
	QuerySecret     = "secret"
)

// Config selects the credentials a delivery must present.
type Config struct {
	SharedSecret string
	HMACSecret   string
	// FailClosed rejects every delivery when no secret is configured.
	FailClosed bool
}

type Verifier struct {
	shared     []byte
	hmacKey    []byte
	failClosed bool
}

func New(cfg Config) *Verifier {
	v := &Verifier{failClosed: cfg.FailClosed}
	if s := strings.TrimSpace(cfg.SharedSecret); s != "" {
		v.shared = []byte(s)
	}
	if s := strings.TrimSpace(cfg.HMACSecret); s != "" {
		v.hmacKey = []byte(s)
	}
	return v
}

// Configured reports whether any secret is set.
func (v *Verifier) Configured() bool {
	return len(v.shared) > 0 || len(v.hmacKey) > 0
}

// Verify accepts the delivery when any configured credential checks out.
// The shared secret may arrive in the X-Webhook-Secret header or the
// ?secret= query parameter, since M-Pesa callbacks cannot set headers.
func (v *Verifier) Verify(r *http.Request, body []byte) error {
	if !v.Configured() {
		if v.failClosed {
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook secret not configured")
		}
		return nil
	}

	if len(v.hmacKey) > 0 && v.validSignature(r.Header.Get(HeaderSignature), body) {
		return nil
	}
	if len(v.shared) > 0 && v.validSecret(presentedSecret(r)) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook credentials")
}

func (v *Verifier) validSecret(presented string) bool {
	if presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(presented), v.shared) == 1
}

func (v *Verifier) validSignature(header string, body []byte) bool {
	header = strings.TrimSpace(header)
	header = strings.TrimPrefix(header, "sha256=")
	if header == "" {
		return false
	}
	expected := Sign(v.hmacKey, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(header)))
}

// Sign returns the lowercase hex HMAC-SHA256 of body.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func presentedSecret(r *http.Request) string {
	if s := strings.TrimSpace(r.Header.Get(HeaderSecret)); s != "" {
		return s
	}
	return strings.TrimSpace(r.URL.Query().Get(QuerySecret))
}
