// 提供基于强化学习的信号灯控制算法
// 在每个决策节点构造观测、向智能体提交上一决策的转移样本并由智能体选出
// 下一个绿灯相位，控制器负责最小/最大绿灯约束与过渡相位链
package trafficlight

import (
	"errors"
	"flag"
	"math"
	"sort"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
)

var (
	rlObsScale    = flag.Float64("tl.rl_obs_scale", 20, "强化学习观测中排队数与车辆数的归一化尺度")
	rlRewardScale = flag.Float64("tl.rl_reward_scale", 0.01, "强化学习奖励的整体缩放系数")
)

var (
	ErrRL = errors.New("rl: cannot set traffic light with traffic light algorithm")
)

// approachLanesOf 计算路口的全部进口道
// 功能：取所有行车道movement的上游道路车道，按ID去重并升序排序
// 参数：movements-路口内车道列表
// 返回：ID升序的进口道列表
// 说明：固定的车道顺序保证观测向量布局在不同episode间保持一致
func approachLanesOf(movements []entity.ILane) []entity.ILane {
	seen := make(map[int32]bool)
	lanes := make([]entity.ILane, 0, 8)
	for _, m := range movements {
		if m.Type() != mapv2.LaneType_LANE_TYPE_DRIVING {
			continue
		}
		pred, err := m.UniquePredecessor()
		if err != nil || seen[pred.ID()] {
			continue
		}
		seen[pred.ID()] = true
		lanes = append(lanes, pred)
	}
	sort.Slice(lanes, func(i, j int) bool { return lanes[i].ID() < lanes[j].ID() })
	return lanes
}

// rlTrafficLight 强化学习信号灯控制器
// 功能：把路口状态映射为观测与奖励，由智能体决定相位延长或切换
type rlTrafficLight struct {
	ctx entity.ITaskContext

	junctionID         int32                            // 所属junction ID
	lanes              []entity.ILaneTrafficLightSetter // 车道数据
	approaches         []entity.ILane                   // ID升序的进口道，决定观测向量布局
	agent              entity.ITrafficLightAgent        // 负责决策与学习的智能体
	snapshotRemainingT float64                          // 上一次的剩余时间
	ps                 phaseSwitch                      // 相位与过渡相位状态机
	ok                 bool                             // 信号灯状态，true为开启，false为关闭
	okBuffer           bool                             // 信号灯状态buffer，用于交互式接口写入

	// 上一决策节点的状态，用于构造转移样本

	prevObs    []float32 // 上一决策的观测
	prevAction int       // 上一决策选择的动作
	prevWait   float64   // 上一决策时进口道的累计等待时长之和
}

// NewRLTrafficLight 创建强化学习信号灯控制器
// 功能：初始化强化学习信号灯控制器，从智能体池按junction ID取得持久化智能体
// 参数：ctx-任务上下文，junctionID-路口ID，movements-路口内车道列表，phases-可用相位列表
// 返回：初始化完成的强化学习信号灯控制器实例
func NewRLTrafficLight(ctx entity.ITaskContext, junctionID int32, movements []entity.ILane, phases [][]mapv2.LightState) *rlTrafficLight {
	l := &rlTrafficLight{
		ctx:        ctx,
		junctionID: junctionID,
		lanes: lo.Map(movements, func(l entity.ILane, _ int) entity.ILaneTrafficLightSetter {
			return l
		}),
		approaches: approachLanesOf(movements),
		ps:         phaseSwitch{phases: phases},
		ok:         true,
		okBuffer:   true,
	}
	if len(phases) >= 2 {
		pool := ctx.AgentPool()
		if pool == nil {
			log.Panicf("junction %d: rl traffic light requires an agent pool", junctionID)
		}
		obsDim := 3*len(l.approaches) + len(phases) + 1
		l.agent = pool.GetOrCreate(junctionID, obsDim, len(phases))
		// 初始相位按最小绿灯时间放行
		minGreen := ctx.RuntimeConfig().C.TrafficLight.MinGreen
		l.ps.remainingT = minGreen
		l.ps.totalTime = minGreen
	}
	return l
}

// Prepare 准备阶段，处理信号灯的准备工作
// 功能：更新信号灯状态，将当前相位信息写入车道
// 说明：至少需要两个相位才有信控，否则保持全绿灯状态
func (l *rlTrafficLight) Prepare() {
	// 更新信号灯状态
	l.ok = l.okBuffer
	l.snapshotRemainingT = l.ps.remainingT
	// 至少两个相位才有信控
	if len(l.ps.phases) < 2 || !l.ok {
		// 无信控，全绿
		for _, lane := range l.lanes {
			lane.SetLight(mapv2.LightState_LIGHT_STATE_GREEN, mathutil.INF, mathutil.INF)
		}
	} else {
		l.ps.writeLights(l.lanes)
	}
}

// Update 更新阶段，驱动强化学习信控
// 功能：推进相位时间，在决策节点调用智能体决定延长或切换
// 参数：dt-时间步长
func (l *rlTrafficLight) Update(dt float64) {
	if len(l.ps.phases) < 2 || !l.ok {
		return
	}

	if l.ps.tick(dt) {
		l.decide()
	}
	if l.ps.remainingT <= 0 {
		log.Warnf("traffic light %d remaining time %f <= 0", l.junctionID, l.ps.remainingT)
	}
}

// observation 构造观测向量
// 功能：按ID升序进口道依次写入归一化的排队数、车辆数与平滑车速，
// 再附加当前绿灯相位的one-hot与归一化的绿灯已放行时长
// 返回：观测向量
func (l *rlTrafficLight) observation() []float32 {
	cfg := l.ctx.RuntimeConfig().C.TrafficLight
	obs := make([]float32, 0, 3*len(l.approaches)+len(l.ps.phases)+1)
	for _, lane := range l.approaches {
		obs = append(obs,
			float32(float64(lane.QueueCount())/(*rlObsScale)),
			float32(float64(lane.VehicleCount())/(*rlObsScale)),
			float32(lane.SmoothSpeed()/math.Max(lane.MaxV(), 1e-6)),
		)
	}
	for i := range l.ps.phases {
		if i == l.ps.index {
			obs = append(obs, 1)
		} else {
			obs = append(obs, 0)
		}
	}
	obs = append(obs, float32(lo.Clamp(l.ps.greenElapsed/cfg.MaxGreen, 0, 1)))
	return obs
}

// approachStats 统计进口道的排队车辆总数与累计等待时长之和
func (l *rlTrafficLight) approachStats() (queue int32, wait float64) {
	for _, lane := range l.approaches {
		queue += lane.QueueCount()
		wait += lane.WaitingTimeSum()
	}
	return
}

// decide 在决策节点向智能体提交转移样本并执行其选择的动作
// 算法说明：
// 1. 构造当前观测，统计进口道排队车辆数与累计等待时长
// 2. 奖励 = 缩放系数 * (等待权重 * 等待时长下降量 - 排队权重 * 排队数)，
//    提交转移样本(prevObs, prevAction, reward, obs)
// 3. 达到最大绿灯时间时屏蔽当前相位，向智能体请求下一动作
// 4. 动作为当前相位则延长绿灯（不超过最大绿灯时间），否则生成过渡相位链切换，
//    切换后的新相位按最小绿灯时间放行
func (l *rlTrafficLight) decide() {
	rc := l.ctx.RuntimeConfig()
	cfg := rc.C.TrafficLight
	obs := l.observation()
	queue, wait := l.approachStats()
	if l.prevObs != nil && rc.Learn() {
		reward := *rlRewardScale * (rc.T.RewardWaitWeight*(l.prevWait-wait) -
			rc.T.RewardQueueWeight*float64(queue))
		l.agent.Observe(l.prevObs, l.prevAction, reward, obs)
	}
	forbidden := -1
	if l.ps.greenElapsed >= cfg.MaxGreen-1e-9 {
		// 达到最大绿灯时间，禁止继续选择当前相位
		forbidden = l.ps.index
	}
	action := l.agent.Act(obs, forbidden)
	l.prevObs = obs
	l.prevAction = action
	l.prevWait = wait
	if action == l.ps.index {
		l.ps.extend(math.Min(cfg.DecisionInterval, cfg.MaxGreen-l.ps.greenElapsed))
	} else {
		l.ps.switchTo(action, l.lanes, cfg.MinGreen)
	}
}

// Get 获取当前信号灯程序
// 功能：返回当前信号灯程序，强化学习算法不支持外部程序设置
// 返回：始终返回nil
func (l *rlTrafficLight) Get() *mapv2.TrafficLight {
	return nil
}

// Set 设置信号灯程序
// 功能：设置信号灯程序，强化学习算法不支持外部程序设置
// 参数：tl-信号灯程序
// 返回：错误信息，强化学习算法不支持此操作
func (l *rlTrafficLight) Set(tl *mapv2.TrafficLight) error {
	return ErrRL
}

// Unset 取消信号灯程序
// 功能：取消当前信号灯程序，强化学习算法不支持此操作
func (l *rlTrafficLight) Unset() {}

// SetPhase 设置信号灯相位
// 功能：设置信号灯相位，强化学习算法不支持外部相位设置
// 参数：offset-相位偏移，remainingTime-剩余时间
// 返回：错误信息，强化学习算法不支持此操作
func (l *rlTrafficLight) SetPhase(offset int32, remainingTime float64) error {
	return ErrRL
}

// SetOk 设置信号灯状态
// 功能：设置信号灯的开关状态
// 参数：ok-信号灯状态，true表示正常工作，false表示失效（全绿灯）
func (l *rlTrafficLight) SetOk(ok bool) {
	l.okBuffer = ok
}

// Step 获取当前相位索引
// 功能：返回当前相位索引，强化学习算法返回-1表示动态相位
// 返回：当前相位索引，强化学习算法返回-1
func (l *rlTrafficLight) Step() int32 {
	return -1
}

// RemainingTime 获取当前相位剩余时间
// 功能：返回当前相位的剩余时间
// 返回：当前相位的剩余时间
func (l *rlTrafficLight) RemainingTime() float64 {
	return l.snapshotRemainingT
}

// Ok 获取信号灯状态
// 功能：返回信号灯是否正常工作
// 返回：true表示正常工作，false表示失效
func (l *rlTrafficLight) Ok() bool {
	return l.ok
}
