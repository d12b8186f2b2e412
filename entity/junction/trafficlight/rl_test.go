package trafficlight

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

// fakeTLAgent 强化学习信控测试用的智能体桩
// 说明：默认延长当前相位，当前相位被屏蔽时切换到相位1
type fakeTLAgent struct {
	nActions   int
	forbiddens []int
	observed   int
}

func (a *fakeTLAgent) Act(obs []float32, forbidden int) int {
	a.forbiddens = append(a.forbiddens, forbidden)
	if forbidden == 0 {
		return 1
	}
	return 0
}

func (a *fakeTLAgent) Observe(state []float32, action int, reward float64, next []float32) {
	a.observed++
}

func (a *fakeTLAgent) NActions() int { return a.nActions }

// fakeAgentPool 智能体池桩，记录控制器申请的智能体规格
type fakeAgentPool struct {
	agent    *fakeTLAgent
	obsDim   int
	nActions int
}

func (p *fakeAgentPool) GetOrCreate(junctionID int32, obsDim int, nActions int) entity.ITrafficLightAgent {
	p.obsDim = obsDim
	p.nActions = nActions
	p.agent.nActions = nActions
	return p.agent
}

// rlFixture 构造n相位强化学习信控器，第i个相位放行第i条车道
func rlFixture(n int, rc *config.RuntimeConfig) (*rlTrafficLight, *fakeAgentPool, []*fakeApproach) {
	approaches := make([]*fakeApproach, n)
	movements := make([]entity.ILane, n)
	phases := make([][]mapv2.LightState, n)
	for i := 0; i < n; i++ {
		approaches[i] = &fakeApproach{id: int32(100 + i), speed: 10, maxV: 20}
		movements[i] = &fakeMovement{id: int32(i), pred: approaches[i]}
		phase := make([]mapv2.LightState, n)
		for j := range phase {
			phase[j] = red
		}
		phase[i] = green
		phases[i] = phase
	}
	pool := &fakeAgentPool{agent: &fakeTLAgent{}}
	l := NewRLTrafficLight(&fakeCtx{rc: rc, pool: pool}, 1, movements, phases)
	return l, pool, approaches
}

func TestRLAgentSpecFromLayout(t *testing.T) {
	_, pool, _ := rlFixture(2, controlConfig(5, 20, 5))
	// 观测维度 = 每条进口道3项 + 相位one-hot + 绿灯已放行时长
	assert.Equal(t, 3*2+2+1, pool.obsDim)
	assert.Equal(t, 2, pool.nActions)
}

func TestRLMinGreenDelaysFirstDecision(t *testing.T) {
	l, pool, _ := rlFixture(2, controlConfig(5, 20, 5))
	// 最小绿灯时间内不请求决策
	for i := 0; i < 4; i++ {
		l.Update(1)
	}
	assert.Empty(t, pool.agent.forbiddens)

	l.Update(1)
	assert.Equal(t, []int{-1}, pool.agent.forbiddens)
	// 智能体选择当前相位，延长一个决策间隔
	assert.Empty(t, l.ps.transitionPhases)
	assert.Equal(t, 0, l.ps.index)
	assert.Equal(t, 5.0, l.ps.remainingT)
}

func TestRLMaxGreenMasksCurrentPhase(t *testing.T) {
	l, pool, _ := rlFixture(2, controlConfig(5, 20, 5))
	for i := 0; i < 20; i++ {
		l.Update(1)
	}
	// 达到最大绿灯时间时屏蔽当前相位，强制切换
	assert.Equal(t, []int{-1, -1, -1, 0}, pool.agent.forbiddens)
	assert.NotEmpty(t, l.ps.transitionPhases)
	assert.Equal(t, 1, l.ps.nextIndex)
	assert.Equal(t, 5.0, l.ps.nextGreenTime)
	// 第一次决策没有上一观测，之后每次决策提交一个转移样本
	assert.Equal(t, 3, pool.agent.observed)
}

func TestRLEvalModeSkipsLearning(t *testing.T) {
	learn := false
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			TrafficLight: config.ControlTrafficLight{
				Policy:           config.PolicyRL,
				MinGreen:         5,
				MaxGreen:         20,
				DecisionInterval: 5,
			},
		},
		Training: config.Training{Learn: &learn},
	})
	l, pool, _ := rlFixture(2, rc)
	for i := 0; i < 10; i++ {
		l.Update(1)
	}
	// 评估模式下仍正常决策，但不提交转移样本
	assert.Len(t, pool.agent.forbiddens, 2)
	assert.Zero(t, pool.agent.observed)
	assert.Empty(t, l.ps.transitionPhases)
}
