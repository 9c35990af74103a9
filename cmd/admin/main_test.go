package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/services/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepRequest(t *testing.T) {
	req, err := sweepRequest("", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SweepStale{}, req)

	req, err = sweepRequest("", []string{"o1", "o2"})
	require.NoError(t, err)
	assert.Equal(t, domain.SweepOrders{IDs: []string{"o1", "o2"}}, req)

	req, err = sweepRequest("2025-01-01T00:00:00Z", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.SweepCatchup{Since: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, req)

	_, err = sweepRequest("2025-01-01T00:00:00Z", []string{"o1"})
	assert.Error(t, err)

	_, err = sweepRequest("last tuesday", nil)
	assert.Error(t, err)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"orderId=o1", "paymentStatus=SUCCESS", "note=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"orderId": "o1", "paymentStatus": "SUCCESS", "note": "a=b"}, params)

	_, err = parseParams(nil)
	assert.Error(t, err)

	_, err = parseParams([]string{"=x"})
	assert.Error(t, err)

	_, err = parseParams([]string{"novalue"})
	assert.Error(t, err)
}

func TestRunSign_MatchesVerifier(t *testing.T) {
	t.Setenv("KASHIER_SECRET_KEY", "test-secret")
	var out bytes.Buffer

	require.NoError(t, runSign([]string{"orderId=o1", "paymentStatus=SUCCESS"}, &out))

	sig := strings.TrimSpace(out.String())
	assert.True(t, signature.NewVerifier("test-secret").Verify(
		map[string]string{"orderId": "o1", "paymentStatus": "SUCCESS"}, sig))
}

func TestConfirm(t *testing.T) {
	assert.True(t, confirm(strings.NewReader("y\n")))
	assert.True(t, confirm(strings.NewReader("YES\n")))
	assert.False(t, confirm(strings.NewReader("\n")))
	assert.False(t, confirm(strings.NewReader("nope\n")))
}
