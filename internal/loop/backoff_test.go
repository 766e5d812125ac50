package loop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsGeometricallyAndClamps(t *testing.T) {
	b := newBackoff(time.Second, 2.0, 10*time.Second)

	var got []time.Duration
	for i := 0; i < 6; i++ {
		got = append(got, b.Advance())
	}
	want := []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second,
		8 * time.Second, 10 * time.Second, 10 * time.Second,
	}
	assert.Equal(t, want, got)
}

func TestBackoff_Reset(t *testing.T) {
	b := newBackoff(time.Second, 2.0, 10*time.Second)
	b.Advance()
	b.Advance()
	assert.Equal(t, 4*time.Second, b.Current())

	b.Reset()
	assert.Equal(t, time.Second, b.Current())
	assert.Equal(t, time.Second, b.Advance())
}

func TestBackoff_ClampsBadParameters(t *testing.T) {
	b := newBackoff(time.Second, 0.5, time.Millisecond)
	assert.Equal(t, time.Second, b.Advance())
	assert.Equal(t, time.Second, b.Advance(), "multiplier below one must not shrink the interval")
}
