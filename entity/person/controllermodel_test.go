package person

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFollowController() *controller {
	return &controller{
		usualBrakingA: -2,
		maxBrakingA:   -6,
		maxA:          2,
		maxV:          30,
		minGap:        2,
		headway:       1.5,
		dt:            0.1,
	}
}

func TestFollowKeepsClearOfStoppedLeader(t *testing.T) {
	c := testFollowController()
	v, gap := 15.0, 100.0
	minGap := gap
	for i := 0; i < 3000; i++ {
		a := c.follow(v, 15, 0, gap)
		v = math.Max(0, v+a*0.1)
		gap -= v * 0.1
		minGap = math.Min(minGap, gap)
	}
	// 全程不撞上停着的前车，最终停稳
	assert.Greater(t, minGap, 0.0)
	assert.Less(t, v, 0.1)
}

func TestFollowEmergencyBrakeOnContact(t *testing.T) {
	c := testFollowController()
	// 车距为0或负值时用最大制动
	assert.Equal(t, c.maxBrakingA, c.follow(10, 15, 0, 0))
	assert.Equal(t, c.maxBrakingA, c.follow(10, 15, 0, -1))
}

func TestFollowAtStandstillGap(t *testing.T) {
	c := testFollowController()
	// 停在最小车距处不再前移
	a := c.follow(0, 15, 0, c.minGap)
	assert.InDelta(t, 0.0, a, 1e-9)
}

func TestFollowFreeRoad(t *testing.T) {
	c := testFollowController()
	// 远离前车时从静止全力加速
	assert.InDelta(t, c.maxA, c.follow(0, 15, 15, 1e9), 1e-3)
	// 达到目标速度后不再加速
	assert.InDelta(t, 0.0, c.follow(15, 15, 15, 1e9), 1e-3)
	// 超过目标速度则减速
	assert.Less(t, c.follow(16, 15, 15, 1e9), 0.0)
}

func TestStopHaltsBeforeLine(t *testing.T) {
	c := testFollowController()
	c.v = 12
	dist := 60.0
	minDist := dist
	for i := 0; i < 3000; i++ {
		a := c.stop(dist, 20, c.minGap)
		c.v = math.Max(0, c.v+a*c.dt)
		dist -= c.v * c.dt
		minDist = math.Min(minDist, dist)
	}
	// 在停止线前刹停
	assert.Greater(t, minDist, 0.0)
	assert.Less(t, c.v, 0.1)
}
