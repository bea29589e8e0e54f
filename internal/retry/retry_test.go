package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	}, 2, 10*time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
}

func TestDo_PropagatesLastErrorAfterExhaustion(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("fail " + string(rune('0'+calls)))
	}, 1, 10*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, "fail 2", err.Error())
	assert.Equal(t, 2, calls)
}

func TestDo_ZeroRetriesIsSingleAttempt(t *testing.T) {
	calls := 0
	err := Run(context.Background(), func(context.Context) error {
		calls++
		return errors.New("boom")
	}, 0, time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_WaitsBetweenAttempts(t *testing.T) {
	start := time.Now()
	_ = Run(context.Background(), func(context.Context) error {
		return errors.New("boom")
	}, 2, 20*time.Millisecond)

	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestDo_StopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Run(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("boom")
	}, 5, 50*time.Millisecond)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}
