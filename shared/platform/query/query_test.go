package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCursorPagination_NormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, CursorPagination{}.Normalize().Limit)
	assert.Equal(t, MaxLimit, CursorPagination{Limit: 1000}.Normalize().Limit)
	assert.Equal(t, 7, CursorPagination{Limit: 7}.Normalize().Limit)
}

func TestCursorPagination_NormalizeBeforeTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		before time.Time
		want   time.Time
	}{
		{"milisegundo exacto", base, base},
		{"fracción de milisegundo", base.Add(500 * time.Microsecond), base.Add(time.Millisecond)},
		{"un nanosegundo", base.Add(time.Nanosecond), base.Add(time.Millisecond)},
		{"otra zona horaria", base.Add(2 * time.Millisecond).In(time.FixedZone("CET", 3600)), base.Add(2 * time.Millisecond)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CursorPagination{BeforeTime: tt.before}.Normalize().BeforeTime
			assert.True(t, tt.want.Equal(got), "got %v want %v", got, tt.want)
		})
	}

	assert.True(t, CursorPagination{}.Normalize().BeforeTime.IsZero())
}
