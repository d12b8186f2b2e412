package trafficlight

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
)

const (
	green  = mapv2.LightState_LIGHT_STATE_GREEN
	red    = mapv2.LightState_LIGHT_STATE_RED
	yellow = mapv2.LightState_LIGHT_STATE_YELLOW
)

// fakeLane 信控测试用的车道桩
type fakeLane struct {
	walk      bool
	rightTurn bool
	pressure  float64

	state     mapv2.LightState
	total     float64
	remaining float64
}

func (f *fakeLane) GetPressure() float64 { return f.pressure }
func (f *fakeLane) SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) {
	f.state = state
	f.total = totalTime
	f.remaining = remainingTime
}
func (f *fakeLane) IsWalkLane() bool             { return f.walk }
func (f *fakeLane) IsRightTurnDrivingLane() bool { return f.rightTurn }

func fakeLanes(lanes []*fakeLane) []entity.ILaneTrafficLightSetter {
	out := make([]entity.ILaneTrafficLightSetter, 0, len(lanes))
	for _, l := range lanes {
		out = append(out, l)
	}
	return out
}

func TestPhaseSwitchTickDecision(t *testing.T) {
	ps := phaseSwitch{
		phases: [][]mapv2.LightState{
			{green, red},
			{red, green},
		},
		remainingT: 2,
		totalTime:  2,
	}
	// 绿灯没走完时不请求决策
	assert.False(t, ps.tick(1))
	assert.Equal(t, 1.0, ps.greenElapsed)
	// 绿灯走完且没有过渡相位时请求决策
	assert.True(t, ps.tick(1))
	assert.Equal(t, 2.0, ps.greenElapsed)
}

func TestPhaseSwitchExtend(t *testing.T) {
	ps := phaseSwitch{
		phases: [][]mapv2.LightState{
			{green, red},
			{red, green},
		},
		remainingT: 2,
		totalTime:  2,
	}
	assert.False(t, ps.tick(1))
	assert.True(t, ps.tick(1))
	ps.extend(5)
	assert.Equal(t, 5.0, ps.remainingT)
	assert.Equal(t, 5.0, ps.totalTime)
	// 延长不清零绿灯已放行时长
	assert.Equal(t, 2.0, ps.greenElapsed)
	assert.Equal(t, 0, ps.index)
}

func TestPhaseSwitchTransitionChain(t *testing.T) {
	// 车道0：放行中的行车道；车道1：待放行的行车道；车道2：随车道0放行的人行道
	lanes := []*fakeLane{{}, {}, {walk: true}}
	ps := phaseSwitch{
		phases: [][]mapv2.LightState{
			{green, red, green},
			{red, green, red},
		},
		remainingT: 0,
		totalTime:  10,
	}
	ps.greenElapsed = 10

	ps.switchTo(1, fakeLanes(lanes), 15)
	// 行人清空 -> 黄灯 -> 全红
	assert.Len(t, ps.transitionPhases, 3)
	assert.Equal(t, []float64{*pedestrianClearTime, *yellowTime, *allRedTime}, ps.transitionTimes)
	assert.Equal(t, []mapv2.LightState{green, red, yellow}, ps.transitionPhases[0])
	assert.Equal(t, []mapv2.LightState{yellow, red, yellow}, ps.transitionPhases[1])
	assert.Equal(t, []mapv2.LightState{red, red, red}, ps.transitionPhases[2])
	assert.Equal(t, *pedestrianClearTime, ps.remainingT)

	// 行人清空阶段行车道0仍为绿灯
	ps.writeLights(fakeLanes(lanes))
	assert.Equal(t, green, lanes[0].state)
	assert.Equal(t, red, lanes[1].state)
	assert.Equal(t, yellow, lanes[2].state)

	// 走完整条过渡相位链后进入下一相位
	total := *pedestrianClearTime + *yellowTime + *allRedTime
	for i := 0; i < int(total); i++ {
		assert.False(t, ps.tick(1))
	}
	assert.Empty(t, ps.transitionPhases)
	assert.Equal(t, 1, ps.index)
	assert.Equal(t, 15.0, ps.remainingT)
	assert.Equal(t, 15.0, ps.totalTime)
	assert.Equal(t, 0.0, ps.greenElapsed)

	ps.writeLights(fakeLanes(lanes))
	assert.Equal(t, red, lanes[0].state)
	assert.Equal(t, green, lanes[1].state)
	assert.Equal(t, red, lanes[2].state)
}

func TestPhaseSwitchNoPedestrianClear(t *testing.T) {
	// 没有人行道时不插入行人清空相位
	lanes := []*fakeLane{{}, {}}
	ps := phaseSwitch{
		phases: [][]mapv2.LightState{
			{green, red},
			{red, green},
		},
		remainingT: 0,
		totalTime:  10,
	}
	ps.switchTo(1, fakeLanes(lanes), 10)
	assert.Len(t, ps.transitionPhases, 2)
	assert.Equal(t, []float64{*yellowTime, *allRedTime}, ps.transitionTimes)
	assert.Equal(t, []mapv2.LightState{yellow, red}, ps.transitionPhases[0])
	assert.Equal(t, []mapv2.LightState{red, red}, ps.transitionPhases[1])
}

func TestPhaseSwitchKeptGreenGetsExtendedTime(t *testing.T) {
	// 车道0在两个相位中都放行，过渡期显示时间需要加上下一相位时长
	lanes := []*fakeLane{{rightTurn: true}, {}, {}}
	ps := phaseSwitch{
		phases: [][]mapv2.LightState{
			{green, green, red},
			{green, red, green},
		},
		remainingT: 0,
		totalTime:  10,
	}
	ps.switchTo(1, fakeLanes(lanes), 20)
	ps.writeLights(fakeLanes(lanes))
	assert.Equal(t, green, lanes[0].state)
	assert.Greater(t, lanes[0].remaining, lanes[1].remaining)
}
