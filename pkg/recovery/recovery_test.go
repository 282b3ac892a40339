package recovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"ttharvest/pkg/errors"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		category errors.Category
		retries  int
		want     Decision
	}{
		{errors.AuthRequired, 0, RefreshAndRetryOnce},
		{errors.AuthRequired, 1, Fail},
		{errors.AuthRequired, 2, Fail},
		{errors.RateLimited, 0, BackoffAndContinue},
		{errors.RateLimited, 1, BackoffAndContinue},
		{errors.NotResolvable, 0, Skip},
		{errors.Unknown, 0, Fail},
	}

	for _, tt := range tests {
		t.Run(tt.category.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Decide(tt.category, tt.retries))
		})
	}
}

func TestDecideFromText(t *testing.T) {
	assert.Equal(t, BackoffAndContinue, Decide(errors.ClassifyText("HTTP Error 429: Too Many Requests"), 0))
	assert.Equal(t, Skip, Decide(errors.ClassifyText("Unable to extract secondary user ID"), 0))
	assert.Equal(t, RefreshAndRetryOnce, Decide(errors.ClassifyText("This account's videos are private"), 0))
}

func TestWindowBounds(t *testing.T) {
	w := NewSeededWindow(40*time.Second, 50*time.Second, 7)
	for i := 0; i < 500; i++ {
		d := w.NextDelay(i)
		assert.GreaterOrEqual(t, d, 40*time.Second)
		assert.LessOrEqual(t, d, 50*time.Second)
	}

	fixed := NewWindow(3*time.Second, 3*time.Second)
	assert.Equal(t, 3*time.Second, fixed.NextDelay(1))

	swapped := NewWindow(2*time.Second, time.Second)
	assert.Equal(t, time.Second, swapped.Min)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), time.Millisecond))
	assert.NoError(t, Wait(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	assert.ErrorIs(t, Wait(ctx, 0), context.Canceled)
}
