package lockout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfc-vpn/mfa-core/internal/config"
	"github.com/bfc-vpn/mfa-core/internal/domain"
	"github.com/bfc-vpn/mfa-core/internal/store"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestController(t *testing.T) (*Controller, *testClock) {
	t.Helper()
	clock := &testClock{t: time.Unix(1700000000, 0)}
	controller := NewControllerWithClock(
		config.LockoutConfig{
			Threshold:     3,
			Window:        15 * time.Minute,
			BlockDuration: 15 * time.Minute,
		},
		store.NewMemoryStore(),
		clock.Now,
	)
	return controller, clock
}

func TestCheckAccess_NoHistory(t *testing.T) {
	controller, _ := newTestController(t)

	decision, err := controller.CheckAccess(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, decision.Access)
	assert.Equal(t, 3, decision.RemainingAttempts)
	assert.False(t, decision.Cleared)
}

func TestRecordFailure_CountsWithinWindow(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	decision, err := controller.RecordFailure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, decision.Access)
	assert.Equal(t, 2, decision.RemainingAttempts)
	assert.False(t, decision.Triggered)

	decision, err = controller.RecordFailure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.RemainingAttempts)

	check, err := controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, check.Access)
	assert.Equal(t, 1, check.RemainingAttempts)
}

func TestRecordFailure_ThresholdTriggersBlock(t *testing.T) {
	controller, clock := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}

	decision, err := controller.RecordFailure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutBlocked, decision.Access)
	assert.True(t, decision.Triggered, "threshold crossing reports the transition")
	require.NotNil(t, decision.BlockedUntil)
	assert.Equal(t, clock.Now().Add(15*time.Minute).Unix(), decision.BlockedUntil.Unix())

	check, err := controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutBlocked, check.Access)
	assert.Equal(t, 0, check.RemainingAttempts)
}

func TestRecordFailure_WhileBlockedNotCounted(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}

	// Extra failures during the block never re-trigger
	decision, err := controller.RecordFailure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutBlocked, decision.Access)
	assert.False(t, decision.Triggered)
}

func TestRecordFailure_WindowExpiryResetsCount(t *testing.T) {
	controller, clock := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}

	clock.Advance(16 * time.Minute)

	// Old failures aged out: this one starts a fresh window
	decision, err := controller.RecordFailure(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, decision.Access)
	assert.Equal(t, 2, decision.RemainingAttempts)
}

func TestCheckAccess_BlockExpiresAndClears(t *testing.T) {
	controller, clock := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}

	clock.Advance(14 * time.Minute)
	decision, err := controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutBlocked, decision.Access)

	clock.Advance(2 * time.Minute)
	decision, err = controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, decision.Access)
	assert.True(t, decision.Cleared, "expiry transition reported once")
	assert.Equal(t, 3, decision.RemainingAttempts)

	// Subsequent checks see a plain open state
	decision, err = controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.LockoutOpen, decision.Access)
	assert.False(t, decision.Cleared)
}

func TestCheckAccess_ConcurrentExpiry_OneClears(t *testing.T) {
	controller, clock := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 3; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}
	clock.Advance(16 * time.Minute)

	const workers = 8
	var wg sync.WaitGroup
	cleared := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := controller.CheckAccess(ctx, userID)
			assert.NoError(t, err)
			assert.Equal(t, domain.LockoutOpen, decision.Access)
			cleared <- decision.Cleared
		}()
	}
	wg.Wait()
	close(cleared)

	clears := 0
	for c := range cleared {
		if c {
			clears++
		}
	}
	assert.Equal(t, 1, clears, "exactly one check observes the clear transition")
}

func TestRecordSuccess_ResetsCounter(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	for i := 0; i < 2; i++ {
		_, err := controller.RecordFailure(ctx, userID)
		require.NoError(t, err)
	}

	require.NoError(t, controller.RecordSuccess(ctx, userID))

	decision, err := controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, decision.RemainingAttempts)
}

func TestRecordFailure_ConcurrentNoLostIncrements(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	// Threshold 3: two concurrent failures must both count
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := controller.RecordFailure(ctx, userID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	decision, err := controller.CheckAccess(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 1, decision.RemainingAttempts)
}

func TestRecordFailure_ConcurrentThreshold_OneTrigger(t *testing.T) {
	controller, _ := newTestController(t)
	ctx := context.Background()
	userID := uuid.New()

	const workers = 6
	var wg sync.WaitGroup
	triggers := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := controller.RecordFailure(ctx, userID)
			assert.NoError(t, err)
			triggers <- decision.Triggered
		}()
	}
	wg.Wait()
	close(triggers)

	count := 0
	for tr := range triggers {
		if tr {
			count++
		}
	}
	assert.Equal(t, 1, count, "the block transition fires exactly once")
}
