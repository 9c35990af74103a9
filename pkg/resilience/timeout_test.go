package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeoutHierarchy(t *testing.T) {
	for name, config := range map[string]*TimeoutConfig{
		"default": DefaultTimeoutConfig(),
		"test":    TestTimeoutConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Greater(t, config.CronJob, config.HTTPHandler)
			assert.Greater(t, config.HTTPHandler, config.Service)
			assert.Greater(t, config.Service, config.ExternalAPI)
			assert.Greater(t, config.Service, config.Notification)
		})
	}
}

func TestContextDeadlines(t *testing.T) {
	config := DefaultTimeoutConfig()

	tests := []struct {
		name    string
		make    func(context.Context) (context.Context, context.CancelFunc)
		timeout time.Duration
	}{
		{"cron", config.CronContext, config.CronJob},
		{"handler", config.HandlerContext, config.HTTPHandler},
		{"commit", config.CommitContext, config.Service},
		{"external api", config.ExternalAPIContext, config.ExternalAPI},
		{"non critical", config.NonCriticalContext, config.Notification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := tt.make(context.Background())
			defer cancel()

			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(tt.timeout), deadline, 100*time.Millisecond)
		})
	}
}

func TestNonCriticalContext_SurvivesParentCancel(t *testing.T) {
	config := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := config.NonCriticalContext(parent)
	defer cancel()
	cancelParent()

	assert.NoError(t, ctx.Err())
}

func TestCommitContext_SurvivesParentCancel(t *testing.T) {
	config := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := config.CommitContext(parent)
	defer cancel()
	cancelParent()

	assert.NoError(t, ctx.Err())
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(config.Service), deadline, 100*time.Millisecond)
}

func TestExternalAPIContext_InheritsParentCancel(t *testing.T) {
	config := TestTimeoutConfig()
	parent, cancelParent := context.WithCancel(context.Background())

	ctx, cancel := config.ExternalAPIContext(parent)
	defer cancel()
	cancelParent()

	<-ctx.Done()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
