package trafficlight

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

// fakeCtx 信控测试用的上下文桩
type fakeCtx struct {
	entity.ITaskContext
	rc   *config.RuntimeConfig
	pool entity.IAgentPool
}

func (c *fakeCtx) RuntimeConfig() *config.RuntimeConfig { return c.rc }
func (c *fakeCtx) AgentPool() entity.IAgentPool         { return c.pool }

// fakeApproach 进口道桩，提供信控算法读取的路况统计
type fakeApproach struct {
	entity.ILane
	id    int32
	queue int32
	count int32
	wait  float64
	speed float64
	maxV  float64
}

func (l *fakeApproach) ID() int32               { return l.id }
func (l *fakeApproach) QueueCount() int32       { return l.queue }
func (l *fakeApproach) VehicleCount() int32     { return l.count }
func (l *fakeApproach) WaitingTimeSum() float64 { return l.wait }
func (l *fakeApproach) SmoothSpeed() float64    { return l.speed }
func (l *fakeApproach) MaxV() float64           { return l.maxV }

// fakeMovement 路口内车道桩，每条行车道对应一条进口道
type fakeMovement struct {
	entity.ILane
	id   int32
	pred *fakeApproach

	state mapv2.LightState
}

func (l *fakeMovement) ID() int32             { return l.id }
func (l *fakeMovement) Type() mapv2.LaneType  { return mapv2.LaneType_LANE_TYPE_DRIVING }
func (l *fakeMovement) GetPressure() float64  { return 0 }
func (l *fakeMovement) IsWalkLane() bool      { return false }
func (l *fakeMovement) IsRightTurnDrivingLane() bool {
	return false
}
func (l *fakeMovement) UniquePredecessor() (entity.ILane, error) { return l.pred, nil }
func (l *fakeMovement) SetLight(state mapv2.LightState, totalTime float64, remainingTime float64) {
	l.state = state
}

func controlConfig(minGreen, maxGreen, interval float64) *config.RuntimeConfig {
	return config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			TrafficLight: config.ControlTrafficLight{
				Policy:           config.PolicyRule,
				MinGreen:         minGreen,
				MaxGreen:         maxGreen,
				DecisionInterval: interval,
			},
		},
	})
}

// ruleFixture 构造n相位规则信控器，第i个相位放行第i条车道
func ruleFixture(n int, rc *config.RuntimeConfig) (*ruleTrafficLight, []*fakeApproach) {
	approaches := make([]*fakeApproach, n)
	movements := make([]entity.ILane, n)
	phases := make([][]mapv2.LightState, n)
	for i := 0; i < n; i++ {
		approaches[i] = &fakeApproach{id: int32(100 + i)}
		movements[i] = &fakeMovement{id: int32(i), pred: approaches[i]}
		phase := make([]mapv2.LightState, n)
		for j := range phase {
			phase[j] = red
		}
		phase[i] = green
		phases[i] = phase
	}
	l := NewRuleTrafficLight(&fakeCtx{rc: rc}, 1, movements, phases)
	return l, approaches
}

func TestRuleExtendsWhileQueueRemains(t *testing.T) {
	l, approaches := ruleFixture(2, controlConfig(5, 20, 5))
	approaches[0].queue = 4
	approaches[1].queue = 1

	// 最小绿灯时间内不做决策
	for i := 0; i < 5; i++ {
		assert.Empty(t, l.ps.transitionPhases)
		assert.Equal(t, 0, l.ps.index)
		l.Update(1)
	}
	// 放行方向仍有排队，延长一个决策间隔
	assert.Empty(t, l.ps.transitionPhases)
	assert.Equal(t, 0, l.ps.index)
	assert.Equal(t, 5.0, l.ps.remainingT)
}

func TestRuleGapOutSwitchesToLongestQueue(t *testing.T) {
	l, approaches := ruleFixture(3, controlConfig(5, 20, 5))
	// 放行方向断流，其余相位中2号排队最长
	approaches[0].queue = 0
	approaches[1].queue = 1
	approaches[2].queue = 7

	for i := 0; i < 5; i++ {
		l.Update(1)
	}
	assert.NotEmpty(t, l.ps.transitionPhases)
	assert.Equal(t, 2, l.ps.nextIndex)
	assert.Equal(t, 5.0, l.ps.nextGreenTime)
}

func TestRuleMaxGreenForcesSwitch(t *testing.T) {
	l, approaches := ruleFixture(2, controlConfig(5, 20, 5))
	// 排队始终未清空，绿灯只能延长到最大绿灯时间
	approaches[0].queue = 5
	approaches[1].queue = 1

	for i := 0; i < 20; i++ {
		assert.Empty(t, l.ps.transitionPhases)
		l.Update(1)
	}
	assert.Equal(t, 20.0, l.ps.greenElapsed)
	assert.NotEmpty(t, l.ps.transitionPhases)
	assert.Equal(t, 1, l.ps.nextIndex)
}

func TestRuleRoundRobinWhenNoQueue(t *testing.T) {
	l, _ := ruleFixture(3, controlConfig(5, 20, 5))
	// 全部无排队时退化为轮转
	for i := 0; i < 5; i++ {
		l.Update(1)
	}
	assert.NotEmpty(t, l.ps.transitionPhases)
	assert.Equal(t, 1, l.ps.nextIndex)
}
