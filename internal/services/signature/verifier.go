// Package signature authenticates payment gateway callbacks.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
)

// Verifier checks the HMAC-SHA256 signature the gateway attaches to callbacks.
// A Verifier without a secret rejects every callback.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier for the shared gateway secret
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Configured reports whether a secret is present
func (v *Verifier) Configured() bool {
	return len(v.secret) > 0
}

// Verify reports whether provided is the signature of params.
// The signature field itself is excluded from the signed payload.
func (v *Verifier) Verify(params map[string]string, provided string) bool {
	if !v.Configured() || provided == "" {
		return false
	}
	expected := v.digest(params)
	got, err := hex.DecodeString(strings.ToLower(provided))
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// Check is Verify with a typed error for callers that report the reason
func (v *Verifier) Check(params map[string]string, provided string) error {
	switch {
	case !v.Configured():
		return domain.NewDomainError(domain.ErrorCodeSecretNotConfigured, "callback signing secret is not configured")
	case provided == "":
		return domain.NewDomainError(domain.ErrorCodeSignatureMissing, "missing signature")
	case !v.Verify(params, provided):
		return domain.NewDomainError(domain.ErrorCodeSignatureInvalid, "invalid signature")
	}
	return nil
}

// Sign returns the hex signature for params
func (v *Verifier) Sign(params map[string]string) (string, error) {
	if !v.Configured() {
		return "", domain.NewDomainError(domain.ErrorCodeSecretNotConfigured, "callback signing secret is not configured")
	}
	return hex.EncodeToString(v.digest(params)), nil
}

func (v *Verifier) digest(params map[string]string) []byte {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(Canonicalize(params)))
	return mac.Sum(nil)
}

// Canonicalize joins params as key=value pairs sorted by key, skipping the signature
func Canonicalize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == domain.SignatureParam {
			continue
		}
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
		b.WriteString(params[k])
	}
	return b.String()
}
