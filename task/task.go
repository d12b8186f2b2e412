package task

import (
	"sync/atomic"

	"git.fiblab.net/sim/syncer/v3"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/clock"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/aoi"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/junction"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/lane"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/person"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/person/route"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity/road"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/mapgen"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/input"
)

// Context 仿真任务上下文
// 功能：包含一次仿真任务的所有变量和状态，替代原来的全局变量
// 说明：管理仿真系统的所有组件，包括时钟、管理器、配置、输出等
type Context struct {

	// 任务名
	job string
	// 关闭指令
	closed atomic.Bool

	// 时钟
	clock *clock.Clock

	// 辅助程序，处理分布式模式下相关调用，包括与syncer、其他服务的交互；
	// 本地训练模式下为nil
	sidecar *syncer.Sidecar
	// sidecar close channel
	sidecarCloseCh chan struct{}
	// 缓存文件夹
	cacheDir string

	// Lane管理器
	laneManager entity.ILaneManager
	// Aoi管理器
	aoiManager entity.IAoiManager
	// Road管理器
	roadManager entity.IRoadManager
	// Junction管理器
	junctionManager entity.IJunctionManager
	// Person管理器
	personManager entity.IPersonManager

	// 运行时配置文件
	runtimeConfig *config.RuntimeConfig
	// 导航服务
	router entity.IRouter
	// RL信控智能体池，rl策略之外为nil
	agentPool entity.IAgentPool

	// 用于初始化的输入
	initRes *input.Input
}

// NewContext 创建新的仿真任务上下文
// 功能：初始化仿真系统的所有组件和配置
// 参数：
//   - job: 任务名称
//   - cacheDir: 缓存目录
//   - c: 配置对象
//   - in: 输入数据，nil时按配置加载（generator优先于input）
//   - agentPool: RL信控智能体池，跨episode共享，非rl策略可为nil
//   - sidecar: 外部sidecar实例，本地训练模式下为nil
//   - startSidecarServe: 是否启动sidecar服务
//
// 返回：初始化完成的Context实例
// 算法说明：
// 1. 创建Context实例并设置基本属性
// 2. 按优先级准备输入数据：显式传入 > 场景生成器 > 文件/数据库
// 3. 创建各类管理器（车道、AOI、道路、路口、人员）
// 4. 注册RPC服务到sidecar并启动服务（分布式模式）
func NewContext(
	job string,
	cacheDir string,
	c config.Config,
	in *input.Input,
	agentPool entity.IAgentPool,
	sidecar *syncer.Sidecar,
	startSidecarServe bool,
) *Context {
	ctx := &Context{
		job:            job,
		cacheDir:       cacheDir,
		sidecar:        sidecar,
		sidecarCloseCh: make(chan struct{}),
		agentPool:      agentPool,
	}
	ctx.clock = clock.New(c.Control.Step)

	// 准备所有模拟器启动所需的数据
	switch {
	case in != nil:
		ctx.initRes = in
	case c.Generator != nil:
		ctx.initRes = mapgen.Build(c.Generator, c.Control.Step)
	default:
		ctx.initRes = input.Init(c, ctx.cacheDir)
	}

	ctx.runtimeConfig = config.NewRuntimeConfig(c)

	// 新建各类模拟对象
	ctx.laneManager = lane.NewManager(ctx)
	ctx.aoiManager = aoi.NewManager(ctx)
	ctx.roadManager = road.NewManager(ctx)
	ctx.junctionManager = junction.NewManager(ctx)
	ctx.personManager = person.NewManager(ctx)

	if ctx.sidecar != nil {
		ctx.clock.Register(ctx.sidecar)
		ctx.junctionManager.Register(ctx.sidecar)
		ctx.personManager.Register(ctx.sidecar)

		// sidecar协程，用于提供gRPC服务
		if startSidecarServe {
			go func() {
				err := ctx.sidecar.Serve()
				if err != nil {
					log.Panicf("failed to serve: %v", err)
				}
				ctx.sidecarCloseCh <- struct{}{}
			}()
		}
	}

	return ctx
}

func (ctx *Context) GetInput() *input.Input {
	return ctx.initRes
}

func (ctx *Context) Clock() *clock.Clock {
	return ctx.clock
}

func (ctx *Context) LaneManager() entity.ILaneManager {
	return ctx.laneManager
}

func (ctx *Context) AoiManager() entity.IAoiManager {
	return ctx.aoiManager
}

func (ctx *Context) RoadManager() entity.IRoadManager {
	return ctx.roadManager
}

func (ctx *Context) JunctionManager() entity.IJunctionManager {
	return ctx.junctionManager
}

func (ctx *Context) PersonManager() entity.IPersonManager {
	return ctx.personManager
}

func (ctx *Context) RuntimeConfig() *config.RuntimeConfig {
	return ctx.runtimeConfig
}

func (ctx *Context) Router() entity.IRouter {
	return ctx.router
}

func (ctx *Context) AgentPool() entity.IAgentPool {
	return ctx.agentPool
}

func (ctx *Context) Init() {
	ctx.clock.Init()

	initRes := ctx.initRes
	// 数据加载
	mapData := initRes.Map
	persons := initRes.Persons.Persons

	log.Infof("Lane: %v", len(mapData.Lanes))
	log.Infof("Road: %v", len(mapData.Roads))
	log.Infof("Junction: %v", len(mapData.Junctions))
	log.Infof("AOI: %v", len(mapData.Aois))
	log.Infof("Person: %v", len(persons))

	ctx.laneManager.Init(mapData.Lanes) // 先完成lane的所有初始化
	// 在建立好lanes的基础上
	// AOI初始化
	ctx.aoiManager.Init(mapData.Aois, ctx.laneManager)
	// road初始化
	ctx.roadManager.Init(mapData.Roads, ctx.laneManager)
	// junction初始化
	ctx.junctionManager.Init(mapData.Junctions, ctx.laneManager, ctx.roadManager)
	// road初始化其中的前驱后继路口
	ctx.roadManager.InitAfterJunction(ctx.junctionManager)

	// 完成地图构建后，开始构建person
	ctx.personManager.Init(
		persons,
		mapData.Header,
		ctx.aoiManager, ctx.laneManager,
	)
	// router
	ctx.router = route.New(initRes)
}

func (ctx *Context) Close() {
	if ctx.closed.Load() {
		return
	}
	if ctx.sidecar != nil {
		ctx.sidecar.Close()
		// wait for graceful stop
		<-ctx.sidecarCloseCh
	}
	ctx.closed.Store(true)
}
