package trafficlight

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
)

func localFixture(junctionID int32) (*localTrafficLight, []*fakeLane, *mapv2.TrafficLight) {
	lanes := []*fakeLane{{}, {}}
	l := NewLocalTrafficLight(nil, junctionID, fakeLanes(lanes))
	tl := &mapv2.TrafficLight{
		JunctionId: junctionID,
		Phases: []*mapv2.Phase{
			{Duration: 10, States: []mapv2.LightState{green, red}},
			{Duration: 10, States: []mapv2.LightState{red, green}},
		},
	}
	return l, lanes, tl
}

func TestLocalFixedProgramCycles(t *testing.T) {
	l, lanes, tl := localFixture(2)
	assert.NoError(t, l.Set(tl))
	// 第一次Update应用buffer中的程序并推进1秒
	l.Update(1)
	l.Prepare()
	assert.Equal(t, int32(0), l.Step())
	assert.Equal(t, 9.0, l.RemainingTime())
	assert.Equal(t, green, lanes[0].state)
	assert.Equal(t, red, lanes[1].state)

	// 走完第一个相位后切换到第二个相位
	for i := 0; i < 9; i++ {
		l.Update(1)
	}
	l.Prepare()
	assert.Equal(t, int32(1), l.Step())
	assert.Equal(t, 10.0, l.RemainingTime())
	assert.Equal(t, red, lanes[0].state)
	assert.Equal(t, green, lanes[1].state)

	// 走完第二个相位后回到第一个相位
	for i := 0; i < 10; i++ {
		l.Update(1)
	}
	l.Prepare()
	assert.Equal(t, int32(0), l.Step())
}

func TestLocalSetPhaseRejectsOutOfRange(t *testing.T) {
	l, _, tl := localFixture(2)
	assert.NoError(t, l.Set(tl))
	l.Update(1)

	// 越界索引被拒绝，后续步进不受影响
	assert.Error(t, l.SetPhase(100, 10))
	assert.Error(t, l.SetPhase(-1, 10))
	assert.NotPanics(t, func() {
		l.Update(1)
		l.Prepare()
	})
	assert.Equal(t, int32(0), l.Step())
}

func TestLocalSetPhaseApplied(t *testing.T) {
	l, _, tl := localFixture(2)
	assert.NoError(t, l.Set(tl))
	l.Update(1)

	assert.NoError(t, l.SetPhase(1, 5))
	l.Update(1)
	l.Prepare()
	assert.Equal(t, int32(1), l.Step())
	assert.Equal(t, 4.0, l.RemainingTime())
}

func TestLocalSetPhaseValidatesBufferedProgram(t *testing.T) {
	l, _, tl := localFixture(2)
	assert.NoError(t, l.Set(tl))
	// 程序尚未生效时按buffer中的程序校验
	assert.Error(t, l.SetPhase(2, 5))
	assert.NoError(t, l.SetPhase(1, 5))
	l.Update(1)
	l.Prepare()
	assert.Equal(t, int32(1), l.Step())
}

func TestLocalSetPhaseWithoutProgram(t *testing.T) {
	l, _, _ := localFixture(2)
	assert.Error(t, l.SetPhase(0, 5))
}
