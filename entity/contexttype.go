package entity

import (
	routingv2 "git.fiblab.net/sim/protos/v2/go/city/routing/v2"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/clock"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

// 导航模块接口
type IRouter interface {
	// 路径规划（回调版本）
	GetRoute(in *routingv2.GetRouteRequest, process func(res *routingv2.GetRouteResponse)) chan struct{}
	// 路径规划（同步版本）
	GetRouteSync(in *routingv2.GetRouteRequest) *routingv2.GetRouteResponse
}

// rl模块智能体的依赖倒置，RL信控器通过该接口驱动决策与学习
type ITrafficLightAgent interface {
	// 选择动作（相位索引），forbidden为禁止选择的相位（-1表示不限制）
	Act(obs []float32, forbidden int) int
	// 提交转移样本(state, action, reward, next)，按配置触发学习
	Observe(state []float32, action int, reward float64, next []float32)
	NActions() int // 动作空间大小
}

// rl模块智能体池的依赖倒置，按junction ID提供跨episode持久化的智能体
type IAgentPool interface {
	GetOrCreate(junctionID int32, obsDim int, nActions int) ITrafficLightAgent
}

type ITaskContext interface {
	Clock() *clock.Clock
	LaneManager() ILaneManager
	AoiManager() IAoiManager
	RoadManager() IRoadManager
	JunctionManager() IJunctionManager
	PersonManager() IPersonManager
	RuntimeConfig() *config.RuntimeConfig
	Router() IRouter
	AgentPool() IAgentPool // RL信控智能体池（未启用RL时为nil）
}
