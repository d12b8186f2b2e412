package rl

import (
	"math"
	"os"
	"sort"
	"sync"

	"github.com/samber/lo"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

// Pool 智能体池
// 功能：按junction ID维护跨episode持久化的DQN智能体，统一管理探索率与模型保存
// 说明：路口初始化并行执行，GetOrCreate需要加锁
type Pool struct {
	mtx     sync.Mutex
	agents  map[int32]*Agent
	t       config.Training // 训练超参数
	learn   bool            // 是否学习，false为纯推理评估
	epsilon float64         // 池内所有智能体共享的探索率
}

// NewPool 创建智能体池
// 功能：初始化智能体池，评估模式下探索率固定为最小值
// 参数：rc-运行时配置
// 返回：智能体池
func NewPool(rc *config.RuntimeConfig) *Pool {
	p := &Pool{
		agents:  make(map[int32]*Agent),
		t:       rc.T,
		learn:   rc.Learn(),
		epsilon: rc.T.Epsilon.Start,
	}
	if !p.learn {
		// 评估模式，贪心推理
		p.epsilon = rc.T.Epsilon.End
	}
	return p
}

// GetOrCreate 获取或创建junction对应的智能体
// 功能：已存在的智能体校验观测维度与动作数后复用；新建时尝试从checkpoint目录恢复
// 参数：junctionID-路口ID，obsDim-观测维度，nActions-动作数
// 返回：该路口的智能体
func (p *Pool) GetOrCreate(junctionID int32, obsDim int, nActions int) entity.ITrafficLightAgent {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if a, ok := p.agents[junctionID]; ok {
		if a.obsDim != obsDim || a.nActions != nActions {
			log.Panicf("agent %d: observation/action space changed: (%d,%d) -> (%d,%d)",
				junctionID, a.obsDim, a.nActions, obsDim, nActions)
		}
		return a
	}
	a, err := newAgent(junctionID, obsDim, nActions, p.t, p.epsilon)
	if err != nil {
		log.Panicf("agent %d: build q-network error: %v", junctionID, err)
	}
	if p.t.CheckpointDir != "" && a.loadCheckpoint(p.t.CheckpointDir) {
		log.Infof("agent %d: restored from checkpoint dir %s", junctionID, p.t.CheckpointDir)
	}
	p.agents[junctionID] = a
	return a
}

// Count 智能体数量
func (p *Pool) Count() int {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return len(p.agents)
}

// Epsilon 当前探索率
func (p *Pool) Epsilon() float64 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.epsilon
}

// DecayEpsilon episode结束后衰减探索率
// 功能：epsilon <- max(最小探索率, epsilon*衰减系数)，并同步到所有智能体
func (p *Pool) DecayEpsilon() {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.epsilon = math.Max(p.t.Epsilon.End, p.epsilon*p.t.Epsilon.Decay)
	for _, a := range p.agents {
		a.SetEpsilon(p.epsilon)
	}
}

// TakeEpisodeReward 取出并清零所有智能体当前episode的累计奖励之和
func (p *Pool) TakeEpisodeReward() float64 {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	sum := .0
	for _, a := range p.agents {
		sum += a.TakeEpisodeReward()
	}
	return sum
}

// Save 保存所有智能体的模型到checkpoint目录
// 功能：目录不存在时自动创建，按junction ID升序保存
// 返回：保存过程中的第一个错误
func (p *Pool) Save() error {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.t.CheckpointDir == "" {
		return nil
	}
	if err := os.MkdirAll(p.t.CheckpointDir, 0o755); err != nil {
		return err
	}
	ids := lo.Keys(p.agents)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := p.agents[id].Save(p.t.CheckpointDir); err != nil {
			return err
		}
	}
	return nil
}
