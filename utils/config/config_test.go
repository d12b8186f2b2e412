package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"gopkg.in/yaml.v2"
)

func TestRuntimeConfigDefaults(t *testing.T) {
	rc := config.NewRuntimeConfig(config.Config{})

	assert.Equal(t, config.PolicyMaxPressure, rc.C.TrafficLight.Policy)
	assert.Equal(t, 10.0, rc.C.TrafficLight.MinGreen)
	assert.Equal(t, 60.0, rc.C.TrafficLight.MaxGreen)
	assert.Equal(t, 5.0, rc.C.TrafficLight.DecisionInterval)

	assert.Equal(t, int32(1), rc.T.Episodes)
	assert.Equal(t, 0.99, rc.T.Gamma)
	assert.Equal(t, 1e-3, rc.T.LR)
	assert.Equal(t, 1.0, rc.T.Epsilon.Start)
	assert.Equal(t, 0.05, rc.T.Epsilon.End)
	assert.Equal(t, 0.995, rc.T.Epsilon.Decay)
	assert.Equal(t, int32(10000), rc.T.BufferSize)
	assert.Equal(t, int32(32), rc.T.BatchSize)
	assert.Equal(t, int32(64), rc.T.Hidden)
	// 两个奖励权重都未配置时等待时间权重兜底为1
	assert.Equal(t, 1.0, rc.T.RewardWaitWeight)
	assert.Equal(t, 0.0, rc.T.RewardQueueWeight)
	assert.True(t, rc.Learn())
}

func TestRuntimeConfigKeepsExplicitValues(t *testing.T) {
	learn := false
	rc := config.NewRuntimeConfig(config.Config{
		Control: config.Control{
			TrafficLight: config.ControlTrafficLight{
				Policy:   config.PolicyRL,
				MinGreen: 8,
				MaxGreen: 45,
			},
		},
		Training: config.Training{
			Episodes:          50,
			Gamma:             0.9,
			RewardQueueWeight: 0.5,
			Learn:             &learn,
		},
	})
	assert.Equal(t, config.PolicyRL, rc.C.TrafficLight.Policy)
	assert.Equal(t, 8.0, rc.C.TrafficLight.MinGreen)
	assert.Equal(t, 45.0, rc.C.TrafficLight.MaxGreen)
	assert.Equal(t, int32(50), rc.T.Episodes)
	assert.Equal(t, 0.9, rc.T.Gamma)
	assert.Equal(t, 0.5, rc.T.RewardQueueWeight)
	// 配置了排队权重时不再兜底等待时间权重
	assert.Equal(t, 0.0, rc.T.RewardWaitWeight)
	assert.False(t, rc.Learn())
}

func TestConfigStrictYAML(t *testing.T) {
	data := `
generator:
  grid:
    rows: 2
    cols: 3
    phases: 4
  demand:
    flows:
      - rate: 0.2
        end_time: 600
control:
  step:
    start: 0
    total: 1000
    interval: 1
  traffic_light:
    policy: rl
training:
  episodes: 20
  checkpoint_dir: ckpt/
output:
  metrics_path: metrics.csv
`
	var c config.Config
	assert.NoError(t, yaml.UnmarshalStrict([]byte(data), &c))
	assert.NotNil(t, c.Generator)
	assert.Equal(t, int32(2), c.Generator.Grid.Rows)
	assert.Equal(t, int32(3), c.Generator.Grid.Cols)
	assert.Len(t, c.Generator.Demand.Flows, 1)
	assert.Equal(t, "rl", c.Control.TrafficLight.Policy)
	assert.Equal(t, "ckpt/", c.Training.CheckpointDir)
	assert.Equal(t, "metrics.csv", c.Output.MetricsPath)

	// 未知字段报错
	var bad config.Config
	assert.Error(t, yaml.UnmarshalStrict([]byte("unknown_field: 1"), &bad))
}
