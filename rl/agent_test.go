package rl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

func testTraining() config.Training {
	return config.NewRuntimeConfig(config.Config{
		Training: config.Training{
			BufferSize:  64,
			BatchSize:   8,
			UpdateEvery: 4,
			TargetEvery: 2,
			Hidden:      16,
		},
	}).T
}

func TestAgentGreedyDeterministic(t *testing.T) {
	a, err := newAgent(1, 4, 3, testTraining(), 0)
	assert.NoError(t, err)
	obs := []float32{0.2, 0.4, 0.1, 0.8}
	action := a.Act(obs, -1)
	assert.GreaterOrEqual(t, action, 0)
	assert.Less(t, action, 3)
	// 探索率为0且网络不变时动作确定
	for i := 0; i < 10; i++ {
		assert.Equal(t, action, a.Act(obs, -1))
	}
}

func TestAgentActMasking(t *testing.T) {
	a, err := newAgent(2, 4, 3, testTraining(), 1)
	assert.NoError(t, err)
	obs := []float32{0.1, 0.1, 0.1, 0.1}
	// 纯探索下动作仍在合法范围内且避开被屏蔽相位
	for i := 0; i < 50; i++ {
		action := a.Act(obs, 1)
		assert.GreaterOrEqual(t, action, 0)
		assert.Less(t, action, 3)
		assert.NotEqual(t, 1, action)
	}
	// 贪心下同样避开被屏蔽相位
	a.SetEpsilon(0)
	for forbidden := 0; forbidden < 3; forbidden++ {
		assert.NotEqual(t, forbidden, a.Act(obs, forbidden))
	}
}

func TestAgentSingleActionShortCircuit(t *testing.T) {
	a, err := newAgent(3, 2, 1, testTraining(), 1)
	assert.NoError(t, err)
	assert.Equal(t, 0, a.Act([]float32{0, 0}, -1))
}

func TestAgentObserveTriggersLearning(t *testing.T) {
	tr := testTraining()
	a, err := newAgent(4, 2, 2, tr, 0.5)
	assert.NoError(t, err)
	// 样本量不足时不学习
	for i := 0; i < int(tr.BatchSize)-1; i++ {
		a.Observe([]float32{0, 0}, 0, -1, []float32{0, 0})
	}
	assert.Equal(t, 0, a.learnCount)
	// 样本量与观测计数到位后按update_every学习、按target_every同步目标网络
	for i := 0; i < 4*int(tr.UpdateEvery); i++ {
		a.Observe([]float32{float32(i), 0.5}, i%2, -0.5, []float32{float32(i + 1), 0.5})
	}
	assert.GreaterOrEqual(t, a.learnCount, 2)
	obs := []float32{0.5, 0.5}
	assert.InDeltaSlice(t, a.online.Forward(obs), a.target.Forward(obs), 1e-6)
}

func TestAgentEpisodeReward(t *testing.T) {
	a, err := newAgent(5, 2, 2, testTraining(), 0.5)
	assert.NoError(t, err)
	a.Observe([]float32{0, 0}, 0, -1.5, []float32{0, 0})
	a.Observe([]float32{0, 0}, 1, 0.5, []float32{0, 0})
	assert.InDelta(t, -1.0, a.TakeEpisodeReward(), 1e-9)
	// 取出后清零
	assert.Equal(t, 0.0, a.TakeEpisodeReward())
}

func TestPoolEpsilonDecay(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			TrafficLight: config.ControlTrafficLight{Policy: config.PolicyRL},
		},
		Training: config.Training{
			Hidden:  16,
			Epsilon: config.TrainingEpsilon{Start: 1, End: 0.1, Decay: 0.5},
		},
	})
	p := NewPool(rc)
	a := p.GetOrCreate(100, 4, 2)
	assert.Equal(t, 1, p.Count())
	// 同一路口复用同一智能体
	assert.Same(t, a, p.GetOrCreate(100, 4, 2))

	assert.Equal(t, 1.0, p.Epsilon())
	p.DecayEpsilon()
	assert.Equal(t, 0.5, p.Epsilon())
	for i := 0; i < 10; i++ {
		p.DecayEpsilon()
	}
	// 衰减不低于最小探索率
	assert.Equal(t, 0.1, p.Epsilon())
}

func TestPoolEvaluationMode(t *testing.T) {
	learn := false
	rc := config.NewRuntimeConfig(config.Config{
		Training: config.Training{
			Hidden:  16,
			Epsilon: config.TrainingEpsilon{Start: 1, End: 0.05, Decay: 0.9},
			Learn:   &learn,
		},
	})
	p := NewPool(rc)
	// 评估模式下探索率固定为最小值
	assert.Equal(t, 0.05, p.Epsilon())
}

func TestPoolObsDimMismatchPanics(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{Training: config.Training{Hidden: 16}})
	p := NewPool(rc)
	p.GetOrCreate(200, 4, 2)
	assert.Panics(t, func() { p.GetOrCreate(200, 6, 2) })
}
