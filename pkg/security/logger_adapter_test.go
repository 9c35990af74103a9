package security

import (
	"errors"
	"testing"

	"github.com/kevin07696/checkout-reconciler/internal/domain/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerAdapter_ConvertsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapLogger(zap.New(core)).Named("refund")

	logger.Error("refund applied at gateway but order already transitioned",
		ports.String("order_id", "order-1"),
		ports.Bool("requires_manual_reconciliation", true),
		ports.Err(errors.New("cas mismatch")))

	entries := logs.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	assert.Equal(t, "refund", entry.LoggerName)

	ctx := entry.ContextMap()
	assert.Equal(t, "order-1", ctx["order_id"])
	assert.Equal(t, true, ctx["requires_manual_reconciliation"])
	assert.Equal(t, "cas mismatch", ctx["error"])
}

func TestZapLoggerAdapter_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := NewZapLogger(zap.New(core))

	logger.Debug("hidden")
	logger.Info("info")
	logger.Warn("warn")

	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, 1, logs.FilterMessage("warn").Len())
}
