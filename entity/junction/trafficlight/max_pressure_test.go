package trafficlight

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
)

func mpFixture(pressures ...float64) (*mpTrafficLight, []*fakeLane) {
	lanes := make([]*fakeLane, 0, len(pressures))
	for _, p := range pressures {
		lanes = append(lanes, &fakeLane{pressure: p})
	}
	phases := make([][]mapv2.LightState, len(pressures))
	// 每个相位放行一条车道
	for i := range phases {
		phase := make([]mapv2.LightState, len(pressures))
		for j := range phase {
			phase[j] = red
		}
		phase[i] = green
		phases[i] = phase
	}
	return NewMaxPressureTrafficLight(1, fakeLanes(lanes), phases), lanes
}

func TestMaxPressurePicksHighestPressurePhase(t *testing.T) {
	l, _ := mpFixture(1, 5, 2)
	l.Prepare()
	// 初始相位0计时结束，切换到压力最大的相位1
	l.Update(1)
	assert.Equal(t, 1, l.ps.nextIndex)
	assert.NotEmpty(t, l.ps.transitionPhases)
	assert.Equal(t, *phaseTime, l.ps.nextGreenTime)
}

func TestMaxPressureExtendsCurrentPhase(t *testing.T) {
	l, _ := mpFixture(5, 1)
	l.Prepare()
	// 当前相位压力最大，延长而不切换
	l.Update(1)
	assert.Equal(t, 0, l.ps.index)
	assert.Empty(t, l.ps.transitionPhases)
	assert.Equal(t, 1, l.repeatCount)
	assert.Greater(t, l.ps.remainingT, .0)
}

func TestMaxPressureRepeatCap(t *testing.T) {
	l, _ := mpFixture(5, 1)
	l.Prepare()
	for i := 0; i < *maxRepeatCount; i++ {
		l.Update(1)
		// 耗尽本次延长时间，触发下一次决策
		l.ps.remainingT = 0
		assert.Equal(t, 0, l.ps.index)
	}
	assert.Equal(t, *maxRepeatCount, l.repeatCount)
	// 达到重复上限后强制切换到第二大压力的相位
	l.Update(1)
	assert.Equal(t, 1, l.ps.nextIndex)
	assert.NotEmpty(t, l.ps.transitionPhases)
}

func TestMaxPressureDisabledIsAllGreen(t *testing.T) {
	l, lanes := mpFixture(1, 2)
	l.SetOk(false)
	l.Prepare()
	assert.False(t, l.Ok())
	for _, lane := range lanes {
		assert.Equal(t, green, lane.state)
	}
	// 关闭状态下不推进相位
	l.Update(1)
	assert.Empty(t, l.ps.transitionPhases)
}
