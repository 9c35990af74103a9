package signature_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/services/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(secret, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestCanonicalize_SortsKeysAndDropsSignature(t *testing.T) {
	params := map[string]string{
		"transactionId": "T1",
		"orderId":       "O1",
		"paymentStatus": "SUCCESS",
		"signature":     "abc",
	}

	assert.Equal(t, "orderId=O1&paymentStatus=SUCCESS&transactionId=T1", signature.Canonicalize(params))
}

func TestVerifier_Verify_ValidSignature(t *testing.T) {
	params := map[string]string{"orderId": "O1", "paymentStatus": "SUCCESS", "transactionId": "T1"}
	sig := sign("s3cret", "orderId=O1&paymentStatus=SUCCESS&transactionId=T1")
	params["signature"] = sig

	v := signature.NewVerifier("s3cret")

	assert.True(t, v.Verify(params, sig))
	assert.True(t, v.Verify(params, strings.ToUpper(sig)))
}

// Test a tampered parameter with the original signature is rejected
func TestVerifier_Verify_TamperedParameter(t *testing.T) {
	v := signature.NewVerifier("s3cret")
	params := map[string]string{"orderId": "O1", "paymentStatus": "FAILED"}
	sig, err := v.Sign(params)
	require.NoError(t, err)

	params["paymentStatus"] = "SUCCESS"

	assert.False(t, v.Verify(params, sig))
	assert.True(t, domain.IsDomainError(v.Check(params, sig), domain.ErrorCodeSignatureInvalid))
}

func TestVerifier_Verify_FailsClosedWithoutSecret(t *testing.T) {
	v := signature.NewVerifier("")
	params := map[string]string{"orderId": "O1"}

	assert.False(t, v.Verify(params, sign("", "orderId=O1")))
	assert.True(t, domain.IsDomainError(v.Check(params, "deadbeef"), domain.ErrorCodeSecretNotConfigured))

	_, err := v.Sign(params)
	assert.True(t, domain.IsDomainError(err, domain.ErrorCodeSecretNotConfigured))
}

func TestVerifier_Check_MissingAndMalformed(t *testing.T) {
	v := signature.NewVerifier("s3cret")
	params := map[string]string{"orderId": "O1"}

	assert.True(t, domain.IsDomainError(v.Check(params, ""), domain.ErrorCodeSignatureMissing))
	assert.False(t, v.Verify(params, "not-hex"))
	assert.False(t, v.Verify(params, "abcd"))
}
