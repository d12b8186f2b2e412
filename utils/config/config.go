package config

// 信控策略名
const (
	PolicyFixed       = "fixed"        // 固定配时
	PolicyMaxPressure = "max_pressure" // 最大压力
	PolicyRule        = "rule"         // 规则（最长排队优先+断流切换）
	PolicyRL          = "rl"           // 强化学习
)

// RuntimeConfig 运行时配置
// 功能：存储仿真运行时的配置信息，补全各配置项的默认值
// 说明：将YAML配置转换为运行时可用的配置对象
type RuntimeConfig struct {
	All Config   // 全部配置
	C   Control  // 全局控制配置
	T   Training // 训练配置
}

// NewRuntimeConfig 根据配置初始化全局变量
// 功能：创建运行时配置对象，进行配置验证并补全默认值
// 参数：config-原始配置对象
// 返回：初始化的运行时配置指针
// 算法说明：
// 1. 创建运行时配置对象
// 2. 信控策略默认max_pressure，最小/最大绿灯与决策间隔给出常用默认值
// 3. 训练超参数按DQN惯例补全默认值
// 说明：确保配置的正确性和一致性，为仿真运行提供有效配置
func NewRuntimeConfig(config Config) *RuntimeConfig {
	rc := &RuntimeConfig{}

	rc.All = config
	rc.C = config.Control
	if rc.C.TrafficLight.Policy == "" {
		rc.C.TrafficLight.Policy = PolicyMaxPressure
	}
	if rc.C.TrafficLight.MinGreen <= 0 {
		rc.C.TrafficLight.MinGreen = 10
	}
	if rc.C.TrafficLight.MaxGreen <= 0 {
		rc.C.TrafficLight.MaxGreen = 60
	}
	if rc.C.TrafficLight.DecisionInterval <= 0 {
		rc.C.TrafficLight.DecisionInterval = 5
	}

	rc.T = config.Training
	if rc.T.Episodes <= 0 {
		rc.T.Episodes = 1
	}
	if rc.T.Gamma <= 0 {
		rc.T.Gamma = 0.99
	}
	if rc.T.LR <= 0 {
		rc.T.LR = 1e-3
	}
	if rc.T.Epsilon.Start <= 0 {
		rc.T.Epsilon.Start = 1
	}
	if rc.T.Epsilon.End <= 0 {
		rc.T.Epsilon.End = 0.05
	}
	if rc.T.Epsilon.Decay <= 0 {
		rc.T.Epsilon.Decay = 0.995
	}
	if rc.T.BufferSize <= 0 {
		rc.T.BufferSize = 10000
	}
	if rc.T.BatchSize <= 0 {
		rc.T.BatchSize = 32
	}
	if rc.T.UpdateEvery <= 0 {
		rc.T.UpdateEvery = 4
	}
	if rc.T.TargetEvery <= 0 {
		rc.T.TargetEvery = 200
	}
	if rc.T.Hidden <= 0 {
		rc.T.Hidden = 64
	}
	if rc.T.RewardWaitWeight == 0 && rc.T.RewardQueueWeight == 0 {
		rc.T.RewardWaitWeight = 1
	}
	if rc.T.SaveEvery <= 0 {
		rc.T.SaveEvery = 10
	}

	return rc
}

// Learn 是否执行学习
// 功能：返回训练配置的learn开关，默认true
func (rc *RuntimeConfig) Learn() bool {
	if rc.T.Learn == nil {
		return true
	}
	return *rc.T.Learn
}
