// 提供信号灯控制的DQN智能体
// 每个RL信控路口对应一个智能体，经验回放+目标网络的标准DQN；
// 智能体在episode之间保持，由智能体池统一管理探索率与模型保存
package rl

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openfluke/loom/nn"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/randengine"
)

// Agent 单路口DQN智能体
// 功能：epsilon-greedy选择相位动作，经验回放学习Q网络，定期硬同步目标网络
type Agent struct {
	junctionID int32
	obsDim     int
	nActions   int

	online    *qNetwork          // 在线Q网络
	target    *qNetwork          // 目标Q网络
	buffer    *replayBuffer      // 经验回放
	generator *randengine.Engine // 随机数引擎

	t       config.Training // 训练超参数
	epsilon float64         // 当前探索率

	observeCount int // 观测计数，按update_every触发学习
	learnCount   int // 学习计数，按target_every同步目标网络

	episodeReward float64 // 当前episode的累计奖励
}

// newAgent 创建DQN智能体
// 功能：构建在线网络与目标网络（初始权重一致）、经验回放与随机数引擎
// 参数：junctionID-路口ID，obsDim-观测维度，nActions-动作数，t-训练超参数，epsilon-初始探索率
// 返回：智能体与可能的构建错误
func newAgent(junctionID int32, obsDim, nActions int, t config.Training, epsilon float64) (*Agent, error) {
	online, err := newQNetwork(obsDim, int(t.Hidden), nActions)
	if err != nil {
		return nil, err
	}
	target, err := newQNetwork(obsDim, int(t.Hidden), nActions)
	if err != nil {
		return nil, err
	}
	target.SyncFrom(online)
	return &Agent{
		junctionID: junctionID,
		obsDim:     obsDim,
		nActions:   nActions,
		online:     online,
		target:     target,
		buffer:     newReplayBuffer(int(t.BufferSize)),
		generator:  randengine.New(uint64(junctionID)),
		t:          t,
		epsilon:    epsilon,
	}, nil
}

// Act 选择动作
// 功能：以epsilon概率随机探索，否则取Q值最大的动作
// 参数：obs-观测向量，forbidden-禁止选择的动作（-1表示不限制）
// 返回：动作（相位索引）
// 说明：屏蔽仅在动作数不少于2时生效，保证可选动作集合非空；
// 贪心分支在Q值并列时取下标最小者，探索率为0且网络不变时动作确定
func (a *Agent) Act(obs []float32, forbidden int) int {
	if a.nActions < 2 {
		return 0
	}
	if forbidden < 0 || forbidden >= a.nActions {
		forbidden = -1
	}
	if a.generator.PTrue(a.epsilon) {
		// 随机探索
		if forbidden < 0 {
			return a.generator.Intn(a.nActions)
		}
		action := a.generator.Intn(a.nActions - 1)
		if action >= forbidden {
			action++
		}
		return action
	}
	q := a.online.Forward(obs)
	best := -1
	for i := 0; i < a.nActions; i++ {
		if i == forbidden {
			continue
		}
		if best < 0 || q[i] > q[best] {
			best = i
		}
	}
	return best
}

// Observe 提交一条转移样本
// 功能：样本写入经验回放，每update_every次观测且样本量达到batch_size后执行一次学习
// 参数：state-决策时观测，action-动作，reward-奖励，next-下一决策时观测
func (a *Agent) Observe(state []float32, action int, reward float64, next []float32) {
	a.buffer.Push(transition{state: state, action: action, reward: reward, next: next})
	a.episodeReward += reward
	a.observeCount++
	if a.observeCount%int(a.t.UpdateEvery) != 0 || a.buffer.Len() < int(a.t.BatchSize) {
		return
	}
	a.learnStep()
}

// learnStep 执行一次DQN学习
// 算法说明：
// 1. 从经验回放均匀采样一个批次
// 2. 目标Q值 = 奖励 + gamma * 目标网络对下一观测的最大Q值（任务无终止状态，始终自举）
// 3. 以在线网络的当前输出为基础，仅替换所选动作的目标值，做MSE回归
// 4. 每target_every次学习后把在线网络权重硬同步到目标网络
func (a *Agent) learnStep() {
	batch := a.buffer.Sample(int(a.t.BatchSize), a.generator)
	data := make([]nn.TrainingBatch, 0, len(batch))
	for _, t := range batch {
		qValues := a.online.Forward(t.state)
		qNext := a.target.Forward(t.next)
		maxNext := qNext[0]
		for _, v := range qNext[1:a.nActions] {
			if v > maxNext {
				maxNext = v
			}
		}
		target := make([]float32, a.nActions)
		copy(target, qValues[:a.nActions])
		target[t.action] = float32(t.reward + a.t.Gamma*float64(maxNext))
		data = append(data, nn.TrainingBatch{Input: t.state, Target: target})
	}
	a.online.Train(data, a.t.LR)
	a.learnCount++
	if a.learnCount%int(a.t.TargetEvery) == 0 {
		a.target.SyncFrom(a.online)
	}
}

// SetEpsilon 设置探索率
func (a *Agent) SetEpsilon(eps float64) {
	a.epsilon = eps
}

// TakeEpisodeReward 取出并清零当前episode的累计奖励
func (a *Agent) TakeEpisodeReward() float64 {
	r := a.episodeReward
	a.episodeReward = 0
	return r
}

// NActions 动作空间大小
func (a *Agent) NActions() int {
	return a.nActions
}

// checkpointName 模型在checkpoint文件中的名称
func (a *Agent) checkpointName() string {
	return fmt.Sprintf("junction_%d", a.junctionID)
}

// checkpointFile checkpoint文件路径
func checkpointFile(dir string, junctionID int32) string {
	return filepath.Join(dir, fmt.Sprintf("junction_%d.json", junctionID))
}

// Save 保存在线网络到checkpoint目录
func (a *Agent) Save(dir string) error {
	return a.online.Save(checkpointFile(dir, a.junctionID), a.checkpointName())
}

// loadCheckpoint 尝试从checkpoint目录恢复在线网络并同步目标网络
// 返回：是否成功恢复
func (a *Agent) loadCheckpoint(dir string) bool {
	path := checkpointFile(dir, a.junctionID)
	if _, err := os.Stat(path); err != nil {
		return false
	}
	online, err := loadQNetwork(path, a.checkpointName(), a.obsDim, int(a.t.Hidden), a.nActions)
	if err != nil {
		log.Warnf("agent %d: load checkpoint %s failed: %v", a.junctionID, path, err)
		return false
	}
	a.online = online
	a.target.SyncFrom(a.online)
	return true
}
