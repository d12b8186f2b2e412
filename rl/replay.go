package rl

import (
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/randengine"
)

// transition 一条转移样本
// 说明：信控是持续性任务，样本不含终止标志，学习时始终自举
type transition struct {
	state  []float32 // 决策时的观测
	action int       // 选择的动作
	reward float64   // 两次决策之间的奖励
	next   []float32 // 下一决策时的观测
}

// replayBuffer 经验回放缓冲区
// 功能：固定容量环形缓冲，写满后覆盖最旧样本
type replayBuffer struct {
	data []transition
	pos  int  // 下一个写入位置
	full bool // 是否已写满
}

// newReplayBuffer 创建经验回放缓冲区
// 参数：capacity-缓冲区容量
func newReplayBuffer(capacity int) *replayBuffer {
	return &replayBuffer{data: make([]transition, capacity)}
}

// Push 写入一条转移样本
func (b *replayBuffer) Push(t transition) {
	b.data[b.pos] = t
	b.pos++
	if b.pos == len(b.data) {
		b.pos = 0
		b.full = true
	}
}

// Len 当前样本数
func (b *replayBuffer) Len() int {
	if b.full {
		return len(b.data)
	}
	return b.pos
}

// Sample 均匀无放回采样n条样本
// 参数：n-采样数，generator-随机数引擎
// 说明：调用方保证Len() >= n
func (b *replayBuffer) Sample(n int, generator *randengine.Engine) []transition {
	out := make([]transition, 0, n)
	for _, i := range generator.Perm(b.Len())[:n] {
		out = append(out, b.data[i])
	}
	return out
}
