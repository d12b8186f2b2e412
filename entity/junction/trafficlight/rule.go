// 提供基于规则的感应式信号灯控制算法
// 绿灯相位先放行最小绿灯时间，此后每个决策间隔检查放行方向的排队；
// 排队未清空且未达最大绿灯时间则延长绿灯，否则切换到排队最长的相位
package trafficlight

import (
	"errors"
	"math"

	"git.fiblab.net/general/common/v2/mathutil"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
)

var (
	ErrRule = errors.New("rule: cannot set traffic light with traffic light algorithm")
)

// phaseApproachLanes 计算每个相位放行的进口道集合
// 功能：对每个相位，取绿灯的非右转行车道的上游道路车道并去重
// 参数：movements-路口内车道列表，phases-相位列表
// 返回：每个相位对应的进口道列表
// 说明：右转车道通常常绿，计入会让断流判断失真
func phaseApproachLanes(movements []entity.ILane, phases [][]mapv2.LightState) [][]entity.ILane {
	approaches := make([][]entity.ILane, 0, len(phases))
	for _, phase := range phases {
		seen := make(map[int32]bool)
		lanes := make([]entity.ILane, 0, 4)
		for i, state := range phase {
			m := movements[i]
			if state != mapv2.LightState_LIGHT_STATE_GREEN ||
				m.Type() != mapv2.LaneType_LANE_TYPE_DRIVING ||
				m.IsRightTurnDrivingLane() {
				continue
			}
			pred, err := m.UniquePredecessor()
			if err != nil || seen[pred.ID()] {
				continue
			}
			seen[pred.ID()] = true
			lanes = append(lanes, pred)
		}
		approaches = append(approaches, lanes)
	}
	return approaches
}

// phaseQueue 统计相位进口道的排队车辆总数
func phaseQueue(lanes []entity.ILane) int32 {
	queue := int32(0)
	for _, l := range lanes {
		queue += l.QueueCount()
	}
	return queue
}

// ruleTrafficLight 规则信号灯控制器
// 功能：实现感应式信控，按进口道排队情况延长或切换绿灯相位
type ruleTrafficLight struct {
	ctx entity.ITaskContext

	junctionID         int32                            // 所属junction ID
	lanes              []entity.ILaneTrafficLightSetter // 车道数据
	phaseApproaches    [][]entity.ILane                 // 每个相位放行的进口道
	snapshotRemainingT float64                          // 上一次的剩余时间
	ps                 phaseSwitch                      // 相位与过渡相位状态机
	ok                 bool                             // 信号灯状态，true为开启，false为关闭
	okBuffer           bool                             // 信号灯状态buffer，用于交互式接口写入
}

// NewRuleTrafficLight 创建规则信号灯控制器
// 功能：初始化规则信号灯控制器，计算每个相位的进口道集合
// 参数：ctx-任务上下文，junctionID-路口ID，movements-路口内车道列表，phases-可用相位列表
// 返回：初始化完成的规则信号灯控制器实例
func NewRuleTrafficLight(ctx entity.ITaskContext, junctionID int32, movements []entity.ILane, phases [][]mapv2.LightState) *ruleTrafficLight {
	l := &ruleTrafficLight{
		ctx:        ctx,
		junctionID: junctionID,
		lanes: lo.Map(movements, func(l entity.ILane, _ int) entity.ILaneTrafficLightSetter {
			return l
		}),
		phaseApproaches: phaseApproachLanes(movements, phases),
		ps:              phaseSwitch{phases: phases},
		ok:              true,
		okBuffer:        true,
	}
	if len(phases) >= 2 {
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
func (l *ruleTrafficLight) Prepare() {
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

// Update 更新阶段，执行规则信控的核心逻辑
// 功能：按排队情况延长或切换绿灯相位，处理相位切换和过渡状态
// 参数：dt-时间步长
// 算法说明：
// 1. 当前绿灯相位至少放行最小绿灯时间
// 2. 此后每个决策间隔检查放行进口道的排队车辆数
// 3. 排队未清空且未达最大绿灯时间则延长绿灯（不超过最大绿灯时间）
// 4. 排队清空（断流）或达到最大绿灯时间则切换到排队最长的其他相位
func (l *ruleTrafficLight) Update(dt float64) {
	if len(l.ps.phases) < 2 || !l.ok {
		return
	}

	if l.ps.tick(dt) {
		cfg := l.ctx.RuntimeConfig().C.TrafficLight
		queue := phaseQueue(l.phaseApproaches[l.ps.index])
		if queue > 0 && l.ps.greenElapsed < cfg.MaxGreen {
			// 排队未清空且未达最大绿灯时间，延长绿灯
			l.ps.extend(math.Min(cfg.DecisionInterval, cfg.MaxGreen-l.ps.greenElapsed))
		} else {
			// 断流或达到最大绿灯时间，切换到排队最长的相位
			l.ps.switchTo(l.nextPhase(), l.lanes, cfg.MinGreen)
		}
	}
	if l.ps.remainingT <= 0 {
		log.Warnf("traffic light %d remaining time %f <= 0", l.junctionID, l.ps.remainingT)
	}
}

// nextPhase 选择下一个相位
// 功能：在除当前相位外的相位中选择进口道排队最长的相位
// 返回：下一个相位索引
// 说明：从当前相位的下一个开始轮询，排队相同时取先遇到者，全部无排队时退化为轮转
func (l *ruleTrafficLight) nextPhase() int {
	n := len(l.ps.phases)
	best := (l.ps.index + 1) % n
	bestQueue := int32(-1)
	for i := 1; i < n; i++ {
		index := (l.ps.index + i) % n
		if q := phaseQueue(l.phaseApproaches[index]); q > bestQueue {
			best = index
			bestQueue = q
		}
	}
	return best
}

// Get 获取当前信号灯程序
// 功能：返回当前信号灯程序，规则算法不支持外部程序设置
// 返回：始终返回nil
func (l *ruleTrafficLight) Get() *mapv2.TrafficLight {
	return nil
}

// Set 设置信号灯程序
// 功能：设置信号灯程序，规则算法不支持外部程序设置
// 参数：tl-信号灯程序
// 返回：错误信息，规则算法不支持此操作
func (l *ruleTrafficLight) Set(tl *mapv2.TrafficLight) error {
	return ErrRule
}

// Unset 取消信号灯程序
// 功能：取消当前信号灯程序，规则算法不支持此操作
func (l *ruleTrafficLight) Unset() {}

// SetPhase 设置信号灯相位
// 功能：设置信号灯相位，规则算法不支持外部相位设置
// 参数：offset-相位偏移，remainingTime-剩余时间
// 返回：错误信息，规则算法不支持此操作
func (l *ruleTrafficLight) SetPhase(offset int32, remainingTime float64) error {
	return ErrRule
}

// SetOk 设置信号灯状态
// 功能：设置信号灯的开关状态
// 参数：ok-信号灯状态，true表示正常工作，false表示失效（全绿灯）
func (l *ruleTrafficLight) SetOk(ok bool) {
	l.okBuffer = ok
}

// Step 获取当前相位索引
// 功能：返回当前相位索引，规则算法返回-1表示动态相位
// 返回：当前相位索引，规则算法返回-1
func (l *ruleTrafficLight) Step() int32 {
	return -1
}

// RemainingTime 获取当前相位剩余时间
// 功能：返回当前相位的剩余时间
// 返回：当前相位的剩余时间
func (l *ruleTrafficLight) RemainingTime() float64 {
	return l.snapshotRemainingT
}

// Ok 获取信号灯状态
// 功能：返回信号灯是否正常工作
// 返回：true表示正常工作，false表示失效
func (l *ruleTrafficLight) Ok() bool {
	return l.ok
}
