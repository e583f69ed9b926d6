package totp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfc-vpn/mfa-core/internal/config"
	totpGen "github.com/bfc-vpn/mfa-core/internal/infrastructure/totp"
	"github.com/bfc-vpn/mfa-core/internal/pkg/apperror"
	"github.com/bfc-vpn/mfa-core/internal/pkg/crypto"
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

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	encryptor, err := crypto.NewAESEncryptor(make([]byte, 32))
	require.NoError(t, err)

	clock := &testClock{t: time.Unix(1700000000, 0)}
	engine := NewEngineWithClock(
		config.TOTPConfig{Issuer: "BFC-VPN"},
		store.NewMemoryStore(), encryptor, clock.Now,
	)
	return engine, clock
}

func enrollAndConfirm(t *testing.T, engine *Engine, clock *testClock, userID uuid.UUID) string {
	t.Helper()
	ctx := context.Background()

	setup, err := engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)

	code, err := totpGen.GenerateCodeAt(setup.Secret, clock.Now())
	require.NoError(t, err)

	ok, err := engine.ConfirmEnrollment(ctx, userID, code)
	require.NoError(t, err)
	require.True(t, ok)

	return setup.Secret
}

func TestBeginEnrollment(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()

	setup, err := engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURL, "otpauth://totp/")

	enrollment, err := engine.Enrollment(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, enrollment)
	assert.False(t, enrollment.Enabled)
	assert.Nil(t, enrollment.ConfirmedAt)
	assert.NotContains(t, enrollment.SecretEncrypted, setup.Secret,
		"stored secret must be encrypted")
}

func TestBeginEnrollment_ReplacesPendingSecret(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)
	second, err := engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.Secret, second.Secret)

	// Only the latest secret confirms
	now := time.Unix(1700000000, 0)
	staleCode, err := totpGen.GenerateCodeAt(first.Secret, now)
	require.NoError(t, err)
	ok, err := engine.ConfirmEnrollment(ctx, userID, staleCode)
	require.NoError(t, err)
	assert.False(t, ok)

	freshCode, err := totpGen.GenerateCodeAt(second.Secret, now)
	require.NoError(t, err)
	ok, err = engine.ConfirmEnrollment(ctx, userID, freshCode)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBeginEnrollment_ConflictWhenEnabled(t *testing.T) {
	engine, clock := newTestEngine(t)
	userID := uuid.New()
	enrollAndConfirm(t, engine, clock, userID)

	_, err := engine.BeginEnrollment(context.Background(), userID, "user@example.com")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Status)
}

func TestConfirmEnrollment(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollAndConfirm(t, engine, clock, userID)

	enrollment, err := engine.Enrollment(ctx, userID)
	require.NoError(t, err)
	assert.True(t, enrollment.Enabled)
	require.NotNil(t, enrollment.ConfirmedAt)
	assert.Equal(t, clock.Now().Unix(), enrollment.ConfirmedAt.Unix())
	assert.Equal(t, totpGen.StepAt(clock.Now()), enrollment.LastConsumedStep)
}

func TestConfirmEnrollment_WrongCode(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)

	ok, err := engine.ConfirmEnrollment(ctx, userID, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	enrollment, err := engine.Enrollment(ctx, userID)
	require.NoError(t, err)
	assert.False(t, enrollment.Enabled, "wrong code must not activate")
}

func TestConfirmEnrollment_NoEnrollment(t *testing.T) {
	engine, _ := newTestEngine(t)

	_, err := engine.ConfirmEnrollment(context.Background(), uuid.New(), "123456")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestConfirmEnrollment_AlreadyEnabled(t *testing.T) {
	engine, clock := newTestEngine(t)
	userID := uuid.New()
	secret := enrollAndConfirm(t, engine, clock, userID)

	code, err := totpGen.GenerateCodeAt(secret, clock.Now().Add(30*time.Second))
	require.NoError(t, err)
	_, err = engine.ConfirmEnrollment(context.Background(), userID, code)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 409, appErr.Status)
}

func TestVerifyCode(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollAndConfirm(t, engine, clock, userID)

	// Confirmation consumed the current step; move one step forward
	clock.Advance(30 * time.Second)

	code, err := totpGen.GenerateCodeAt(secret, clock.Now())
	require.NoError(t, err)

	ok, err := engine.VerifyCode(ctx, userID, code)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyCode_ReplayRejected(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollAndConfirm(t, engine, clock, userID)

	clock.Advance(30 * time.Second)

	code, err := totpGen.GenerateCodeAt(secret, clock.Now())
	require.NoError(t, err)

	ok, err := engine.VerifyCode(ctx, userID, code)
	require.NoError(t, err)
	require.True(t, ok)

	// Same code within the same validity window fails
	ok, err = engine.VerifyCode(ctx, userID, code)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCode_EarlierStepAfterLaterConsumed(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollAndConfirm(t, engine, clock, userID)

	clock.Advance(60 * time.Second)

	current, err := totpGen.GenerateCodeAt(secret, clock.Now())
	require.NoError(t, err)
	ok, err := engine.VerifyCode(ctx, userID, current)
	require.NoError(t, err)
	require.True(t, ok)

	// Previous step is inside the skew window but at or below the
	// consumed marker, so it must be rejected
	previous, err := totpGen.GenerateCodeAt(secret, clock.Now().Add(-30*time.Second))
	require.NoError(t, err)
	ok, err = engine.VerifyCode(ctx, userID, previous)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyCode_NoActiveEnrollment(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// No record at all
	_, err := engine.VerifyCode(ctx, uuid.New(), "123456")
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)

	// Pending but unconfirmed counts as no active enrollment
	userID := uuid.New()
	_, err = engine.BeginEnrollment(ctx, userID, "user@example.com")
	require.NoError(t, err)
	_, err = engine.VerifyCode(ctx, userID, "123456")
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, 404, appErr.Status)
}

func TestVerifyCode_ConcurrentSameCode_OneWinner(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	secret := enrollAndConfirm(t, engine, clock, userID)

	clock.Advance(30 * time.Second)

	code, err := totpGen.GenerateCodeAt(secret, clock.Now())
	require.NoError(t, err)

	const workers = 16
	var wg sync.WaitGroup
	results := make(chan bool, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := engine.VerifyCode(ctx, userID, code)
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	wins := 0
	for ok := range results {
		if ok {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "exactly one concurrent verification may consume the code")
}

func TestDisable(t *testing.T) {
	engine, clock := newTestEngine(t)
	ctx := context.Background()
	userID := uuid.New()
	enrollAndConfirm(t, engine, clock, userID)

	existed, err := engine.Disable(ctx, userID)
	require.NoError(t, err)
	assert.True(t, existed)

	enrollment, err := engine.Enrollment(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, enrollment)

	// Second disable is a no-op
	existed, err = engine.Disable(ctx, userID)
	require.NoError(t, err)
	assert.False(t, existed)
}
