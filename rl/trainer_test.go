package rl_test

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/rl"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

func smokeConfig() config.Config {
	return config.Config{
		Generator: &config.Generator{
			Grid: config.GeneratorGrid{Rows: 1, Cols: 1, LanesPerRoad: 2},
			Demand: config.GeneratorDemand{
				Flows: []config.GeneratorFlow{{Rate: 0.3, EndTime: 200}},
				Seed:  11,
			},
		},
		Control: config.Control{
			Step: config.ControlStep{Start: 0, Total: 300, Interval: 1},
			TrafficLight: config.ControlTrafficLight{
				Policy:           config.PolicyRL,
				MinGreen:         5,
				MaxGreen:         30,
				DecisionInterval: 5,
			},
		},
		Training: config.Training{
			Episodes:    2,
			Epsilon:     config.TrainingEpsilon{Start: 0.5, End: 0.05, Decay: 0.9},
			BufferSize:  500,
			BatchSize:   8,
			UpdateEvery: 4,
			TargetEvery: 10,
			Hidden:      16,
		},
	}
}

func TestTrainerSmoke(t *testing.T) {
	c := smokeConfig()
	c.Output.MetricsPath = filepath.Join(t.TempDir(), "metrics.csv")

	trainer := rl.NewTrainer("smoke", "", c)
	assert.NoError(t, trainer.Run())

	history := trainer.History()
	assert.Len(t, history, 2)
	for _, m := range history {
		assert.False(t, math.IsNaN(m.Reward))
		assert.False(t, math.IsInf(m.Reward, 0))
		assert.GreaterOrEqual(t, m.QueueAvg, .0)
		assert.GreaterOrEqual(t, m.WaitingTime, .0)
	}
	// 1x1网格只有一个RL信控路口
	assert.Equal(t, 1, trainer.Pool().Count())
	// 探索率按episode衰减
	assert.InDelta(t, 0.5, history[0].Epsilon, 1e-9)
	assert.InDelta(t, 0.45, history[1].Epsilon, 1e-9)
	assert.InDelta(t, 0.5*0.9*0.9, trainer.Pool().Epsilon(), 1e-9)

	// 指标文件：表头+每episode一行
	data, err := os.ReadFile(c.Output.MetricsPath)
	assert.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "episode,"))
	assert.True(t, strings.HasPrefix(lines[1], "1,"))
	assert.True(t, strings.HasPrefix(lines[2], "2,"))
}

func TestTrainerCheckpointAndEvaluate(t *testing.T) {
	dir := t.TempDir()
	c := smokeConfig()
	c.Training.Episodes = 1
	c.Training.CheckpointDir = dir
	c.Training.SaveEvery = 1

	trainer := rl.NewTrainer("ckpt", "", c)
	assert.NoError(t, trainer.Run())
	entries, err := os.ReadDir(dir)
	assert.NoError(t, err)
	assert.Len(t, entries, 1)

	// 评估模式：从checkpoint恢复并以最小探索率做纯推理
	learn := false
	c.Training.Learn = &learn
	eval := rl.NewTrainer("eval", "", c)
	assert.NoError(t, eval.Run())
	assert.Equal(t, 0.05, eval.Pool().Epsilon())
	assert.Len(t, eval.History(), 1)
	// 评估模式不写经验回放，奖励指标为0
	assert.Equal(t, 0.0, eval.History()[0].Reward)
}
