package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry_SucceedsAfterTransientErrors(t *testing.T) {
	// Arrange
	calls := 0
	fn := func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}

	// Act
	err := Retry(context.Background(), 3, time.Millisecond, fn)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetry_ReturnsLastError(t *testing.T) {
	calls := 0
	boom := errors.New("boom")

	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetry_PermanentStopsImmediately(t *testing.T) {
	calls := 0
	notFound := errors.New("not found")

	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(notFound)
	})

	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls, "un error permanente no se reintenta")
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, 3, time.Second, func() error { return errors.New("fail") })

	assert.ErrorIs(t, err, context.Canceled)
}
