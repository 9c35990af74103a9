package expiry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/checkout-reconciler/internal/domain"
	"github.com/kevin07696/checkout-reconciler/internal/services/notification"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/fixtures"
	"github.com/kevin07696/checkout-reconciler/internal/testutil/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExpire_TransitionsPricedQuotes(t *testing.T) {
	expired := fixtures.NewCustomOrder(30 * time.Hour)
	taken := fixtures.NewCustomOrder(26 * time.Hour)
	failing := fixtures.NewCustomOrder(48 * time.Hour)

	repo := new(mocks.MockCustomOrderRepository)
	repo.On("FindExpiredQuotes", mock.Anything, mock.Anything, mock.AnythingOfType("time.Time"), DefaultBatchSize).
		Return([]*domain.CustomOrder{expired, taken, failing}, nil)
	repo.On("SwapStatus", mock.Anything, mock.Anything, expired.ID, domain.CustomOrderPriced, domain.CustomOrderExpired).Return(true, nil)
	repo.On("SwapStatus", mock.Anything, mock.Anything, taken.ID, domain.CustomOrderPriced, domain.CustomOrderExpired).Return(false, nil)
	repo.On("SwapStatus", mock.Anything, mock.Anything, failing.ID, domain.CustomOrderPriced, domain.CustomOrderExpired).
		Return(false, errors.New("serialization failure"))

	notifier := &mocks.RecordingNotifier{}
	logger := mocks.NewMockLogger()
	expirer := NewCustomOrderExpirer(&mocks.MockDBPort{}, repo,
		notification.NewDispatcher(notifier, nil, nil, logger), 0, 0, logger)

	report, err := expirer.Expire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Found)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], failing.ID)

	sent := notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.NotificationCustomOrderExpired, sent[0].Type)
	assert.Equal(t, expired.UserID, sent[0].UserID)
}

func TestExpire_UsesQuoteTTLCutoff(t *testing.T) {
	now := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	repo := new(mocks.MockCustomOrderRepository)
	repo.On("FindExpiredQuotes", mock.Anything, mock.Anything, now.Add(-12*time.Hour), 50).
		Return([]*domain.CustomOrder{}, nil)

	logger := mocks.NewMockLogger()
	expirer := NewCustomOrderExpirer(&mocks.MockDBPort{}, repo, nil, 12*time.Hour, 50, logger)
	expirer.now = func() time.Time { return now }

	report, err := expirer.Expire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	repo.AssertExpectations(t)
}
