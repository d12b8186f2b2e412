package trafficlight

import (
	"flag"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
)

var (
	yellowTime          = flag.Float64("tl.yellow_time", 3, "相位切换的黄灯时间")
	pedestrianClearTime = flag.Float64("tl.pedestrian_clear_time", 5, "相位切换的行人清空时间")
	allRedTime          = flag.Float64("tl.all_red_time", 3, "相位切换的全红时间")
)

// phaseSwitch 绿灯相位切换状态机
// 功能：维护当前相位、剩余时间与相位切换时的过渡相位链（行人清空、黄灯、全红），
// 供按决策节奏驱动的信控算法（最大压力、规则、强化学习）复用
type phaseSwitch struct {
	phases           [][]mapv2.LightState // 可供选择的相位列表（如果nil，则没有信控）
	index            int                  // 当前相位
	totalTime        float64              // 当前相位总时长
	remainingT       float64              // 当前相位剩余时间
	transitionPhases [][]mapv2.LightState // 过渡相位 包含行人清空、黄灯和全红等相位
	transitionTimes  []float64            // 过渡相位持续时长
	nextIndex        int                  // 过渡相位后的下一个相位
	nextGreenTime    float64              // 过渡相位后的下一个相位的持续时长
	greenElapsed     float64              // 当前绿灯相位已显示时长（含延长）
}

// writeLights 将当前相位的灯态与时间写入车道
// 说明：过渡相位中与下一相位同为绿灯的车道，显示时间需要加上下一相位的时长
func (ps *phaseSwitch) writeLights(lanes []entity.ILaneTrafficLightSetter) {
	if len(ps.transitionPhases) > 0 {
		phase := ps.transitionPhases[0]
		nextPhase := ps.phases[ps.nextIndex]
		// 过渡相位
		if len(ps.transitionPhases) > 1 {
			nextPhase = ps.transitionPhases[1]
		}
		for i, lane := range lanes {
			// 如果下个相位还是绿灯，则把下个相位的时间也加上
			if phase[i] == mapv2.LightState_LIGHT_STATE_GREEN && nextPhase[i] == mapv2.LightState_LIGHT_STATE_GREEN {
				lane.SetLight(phase[i], ps.totalTime+ps.nextGreenTime, ps.remainingT+ps.nextGreenTime)
			} else {
				lane.SetLight(phase[i], ps.totalTime, ps.remainingT)
			}
		}
	} else {
		phase := ps.phases[ps.index]
		for i, lane := range lanes {
			lane.SetLight(phase[i], ps.totalTime, ps.remainingT)
		}
	}
}

// tick 推进相位时间
// 功能：推进dt并处理过渡相位链的前进；当前绿灯相位计时结束且没有过渡相位时
// 返回true，表示需要上层算法做出相位决策
func (ps *phaseSwitch) tick(dt float64) (decide bool) {
	if len(ps.transitionPhases) == 0 {
		ps.greenElapsed += dt
	}
	ps.remainingT -= dt
	if ps.remainingT > 0 {
		// 当前相位没走完，啥事都不干
		return false
	}
	if len(ps.transitionPhases) == 1 {
		// 切换相位（过渡相位->下一相位）进入下一相位
		ps.index = ps.nextIndex
		ps.remainingT += ps.nextGreenTime
		ps.totalTime = ps.remainingT
		ps.transitionPhases = nil
		ps.greenElapsed = 0
		return false
	} else if len(ps.transitionPhases) > 1 {
		// 切换相位（过渡相位->下一个过渡相位）
		ps.transitionTimes = ps.transitionTimes[1:]
		ps.transitionPhases = ps.transitionPhases[1:]
		ps.remainingT += ps.transitionTimes[0]
		ps.totalTime = ps.remainingT
		return false
	}
	// 正常灯走完，由上层算法决定延长还是切换
	return true
}

// extend 延长当前绿灯相位
func (ps *phaseSwitch) extend(t float64) {
	ps.remainingT += t
	ps.totalTime = ps.remainingT
}

// switchTo 生成当前相位到next相位的过渡相位链并开始执行
// 参数：next-下一相位索引，lanes-车道列表（判定人行道用），greenTime-下一相位的持续时长
// 算法说明：
// 1. 把当前为绿灯、下一时刻为红灯的车道变为黄灯，其中的人行道先行清空
// 2. 当前为红灯、下一时刻为绿灯的行车道插入全红相位
// 3. 顺序 当前相位--行人清空相位--黄灯相位--车道全红相位--下一相位
func (ps *phaseSwitch) switchTo(next int, lanes []entity.ILaneTrafficLightSetter, greenTime float64) {
	ps.nextIndex = next
	ps.nextGreenTime = greenTime
	// 行人清空相位
	clearPhase := make([]mapv2.LightState, len(lanes))
	// 黄灯相位
	yellowPhase := make([]mapv2.LightState, len(lanes))
	hasClearPhase := false
	// 全红相位
	allRedPhase := make([]mapv2.LightState, len(lanes))
	hasAllRedPhase := false
	nextPhase := ps.phases[next]
	copy(yellowPhase, ps.phases[ps.index])
	copy(clearPhase, ps.phases[ps.index])
	copy(allRedPhase, nextPhase)
	for i, state := range yellowPhase {
		if state == mapv2.LightState_LIGHT_STATE_GREEN && nextPhase[i] == mapv2.LightState_LIGHT_STATE_RED {
			yellowPhase[i] = mapv2.LightState_LIGHT_STATE_YELLOW
			if lanes[i].IsWalkLane() {
				hasClearPhase = true
				clearPhase[i] = mapv2.LightState_LIGHT_STATE_YELLOW
			}
		}
		if state == mapv2.LightState_LIGHT_STATE_RED && nextPhase[i] == mapv2.LightState_LIGHT_STATE_GREEN && !lanes[i].IsWalkLane() {
			allRedPhase[i] = mapv2.LightState_LIGHT_STATE_RED
			hasAllRedPhase = true
		}
	}
	ps.transitionPhases = make([][]mapv2.LightState, 0)
	ps.transitionTimes = make([]float64, 0)
	if hasClearPhase {
		ps.transitionPhases = append(ps.transitionPhases, clearPhase)
		ps.transitionTimes = append(ps.transitionTimes, *pedestrianClearTime)
	}
	ps.transitionPhases = append(ps.transitionPhases, yellowPhase)
	ps.transitionTimes = append(ps.transitionTimes, *yellowTime)
	if hasAllRedPhase {
		ps.transitionPhases = append(ps.transitionPhases, allRedPhase)
		ps.transitionTimes = append(ps.transitionTimes, *allRedTime)
	}
	ps.remainingT += ps.transitionTimes[0]
	ps.totalTime = ps.remainingT
}
