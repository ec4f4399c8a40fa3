package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type outcome struct {
	fail   bool
	useAlt bool // fallback for failures, !usePrimary for successes
	change StateChange
}

func TestBreaker_Sequences(t *testing.T) {
	opened := StateChange{Opened: true}
	closed := StateChange{Closed: true}

	tests := []struct {
		name  string
		opts  []Option
		steps []outcome
		final State
	}{
		{
			name: "opens on the threshold failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []outcome{
				{fail: true},
				{fail: true},
				{fail: true, useAlt: true, change: opened},
				{fail: true, useAlt: true},
			},
			final: StateOpen,
		},
		{
			name: "success clears the failure streak",
			opts: []Option{WithFailureThreshold(2)},
			steps: []outcome{
				{fail: true},
				{},
				{fail: true},
			},
			final: StateClosed,
		},
		{
			name: "closes after consecutive successes",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []outcome{
				{fail: true, useAlt: true, change: opened},
				{useAlt: true},
				{change: closed},
				{},
			},
			final: StateClosed,
		},
		{
			name: "a failure while open restarts the success streak",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []outcome{
				{fail: true, useAlt: true, change: opened},
				{useAlt: true},
				{fail: true, useAlt: true},
				{useAlt: true},
				{change: closed},
			},
			final: StateClosed,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New("realtime-relay", tt.opts...)
			for i, step := range tt.steps {
				var alt bool
				var change StateChange
				if step.fail {
					alt, change = b.RecordFailure()
				} else {
					var primary bool
					primary, change = b.RecordSuccess()
					alt = !primary
				}
				assert.Equal(t, step.useAlt, alt, "step %d", i)
				assert.Equal(t, step.change, change, "step %d", i)
			}
			assert.Equal(t, tt.final, b.State())
		})
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := New("realtime-relay", WithFailureThreshold(0))
	assert.Equal(t, "realtime-relay", b.Name())
	assert.False(t, b.IsOpen())
	for range 4 {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen(), "non-positive thresholds keep the default of five")
	b.RecordFailure()
	assert.True(t, b.IsOpen())
}

func TestBreaker_Reset(t *testing.T) {
	b := New("realtime-relay", WithFailureThreshold(1))
	b.RecordFailure()
	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "open", StateOpen.String())
}
