package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastRetrier(retries int) *Retrier {
	return NewRetrier(&Config{
		MaxRetries:    retries,
		BackoffFactor: 2,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
	})
}

func TestDo(t *testing.T) {
	errFlaky := errors.New("connection refused")

	tests := []struct {
		name      string
		failures  int
		permanent bool
		retries   int
		wantCalls int
		wantErr   error
	}{
		{name: "first try", failures: 0, retries: 3, wantCalls: 1},
		{name: "recovers", failures: 2, retries: 3, wantCalls: 3},
		{name: "exhausted", failures: 10, retries: 2, wantCalls: 3, wantErr: errFlaky},
		{name: "permanent", failures: 10, permanent: true, retries: 5, wantCalls: 1, wantErr: errFlaky},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := fastRetrier(tt.retries).Do(context.Background(), func() error {
				calls++
				if calls > tt.failures {
					return nil
				}
				if tt.permanent {
					return Permanent(errFlaky)
				}
				return errFlaky
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestDoStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewRetrier(&Config{
		MaxRetries:    5,
		BackoffFactor: 1,
		InitialDelay:  time.Hour,
		MaxDelay:      time.Hour,
	})

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- r.Do(ctx, func() error {
			calls++
			return errors.New("unavailable")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	case <-time.After(time.Second):
		t.Fatal("Do did not return after cancel")
	}
}

func TestPermanentNil(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}
