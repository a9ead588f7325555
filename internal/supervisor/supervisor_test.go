package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordingPolicy(waits *[]time.Duration) Policy {
	p := DefaultPolicy
	p.Sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return p
}

func TestRunBacksOffExponentiallyAndGivesUp(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Run(context.Background(), "test", recordingPolicy(&waits), func(ctx context.Context, connected func()) error {
		calls++
		return errors.New("dial failed")
	})

	require.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, 11, calls)
	require.Len(t, waits, 10)
	assert.Equal(t, []time.Duration{
		5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second, 60 * time.Second,
	}, waits[:5])
	assert.Equal(t, 60*time.Second, waits[9])
}

func TestRunResetsAfterConnect(t *testing.T) {
	var waits []time.Duration
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	err := Run(ctx, "test", recordingPolicy(&waits), func(ctx context.Context, connected func()) error {
		calls++
		switch calls {
		case 1, 2:
			return errors.New("boom")
		case 3:
			connected()
			return errors.New("dropped")
		case 4:
			cancel()
			return ctx.Err()
		}
		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 5 * time.Second}, waits)
}
