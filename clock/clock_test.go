package clock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/clock"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

func TestNew(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 10, Total: 20, Interval: 0.5})
	assert.Equal(t, 0.5, c.DT)
	assert.Equal(t, int32(10), c.START_STEP)
	assert.Equal(t, int32(30), c.END_STEP)
	assert.Equal(t, int32(10), c.InternalStep)
	assert.Equal(t, 5.0, c.T)
	assert.False(t, c.Done())
}

func TestDone(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 0, Total: 5, Interval: 1})
	for i := 0; i < 5; i++ {
		assert.False(t, c.Done())
		c.InternalStep++
		c.T = float64(c.InternalStep) * c.DT
	}
	assert.True(t, c.Done())
	assert.Equal(t, 5.0, c.T)
}

func TestGetHourMinuteSecond(t *testing.T) {
	c := clock.New(config.ControlStep{Start: 0, Total: 10, Interval: 1})
	c.T = 3661.5
	hour, minute, second := c.GetHourMinuteSecond()
	assert.Equal(t, 1, hour)
	assert.Equal(t, 1, minute)
	assert.InDelta(t, 1.5, second, 1e-9)
	assert.Equal(t, "01:01:01", c.String())
}
