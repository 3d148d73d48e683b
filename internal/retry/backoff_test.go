package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, time.Second, cfg.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.MaxDelay)
	require.Equal(t, 2.0, cfg.Multiplier)
}

func TestDelay_Doubles(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 1*time.Second, cfg.Delay(0))
	require.Equal(t, 2*time.Second, cfg.Delay(1))
	require.Equal(t, 4*time.Second, cfg.Delay(2))
	require.Equal(t, 8*time.Second, cfg.Delay(3))
}

func TestDelay_CappedAtMaxDelay(t *testing.T) {
	cfg := Config{BaseDelay: time.Second, MaxDelay: 5 * time.Second, Multiplier: 2}
	require.Equal(t, 4*time.Second, cfg.Delay(2))
	require.Equal(t, 5*time.Second, cfg.Delay(3))
	require.Equal(t, 5*time.Second, cfg.Delay(60))
}

func TestDelay_Unbounded(t *testing.T) {
	cfg := Config{BaseDelay: time.Millisecond, Multiplier: 2}
	require.Equal(t, 1024*time.Millisecond, cfg.Delay(10))
	require.Equal(t, time.Millisecond, cfg.Delay(-1))
}

func TestNormalize(t *testing.T) {
	cfg := Config{MaxDelay: -1, Multiplier: 0.5}.Normalize()
	require.Equal(t, 3, cfg.MaxAttempts)
	require.Equal(t, time.Second, cfg.BaseDelay)
	require.Zero(t, cfg.MaxDelay)
	require.Equal(t, 2.0, cfg.Multiplier)

	cfg = Config{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, Multiplier: 3}.Normalize()
	require.Equal(t, 5, cfg.MaxAttempts)
	require.Equal(t, 10*time.Millisecond, cfg.BaseDelay)
	require.Equal(t, 3.0, cfg.Multiplier)
}

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Sleep(ctx, time.Minute)
	require.True(t, errors.Is(err, context.Canceled))
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestSleep_ZeroDelayReportsContext(t *testing.T) {
	require.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
