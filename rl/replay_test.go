package rl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/randengine"
)

func makeTransition(i int) transition {
	return transition{
		state:  []float32{float32(i)},
		action: i % 2,
		reward: float64(i),
		next:   []float32{float32(i + 1)},
	}
}

func TestReplayBufferLen(t *testing.T) {
	b := newReplayBuffer(4)
	assert.Equal(t, 0, b.Len())
	for i := 0; i < 3; i++ {
		b.Push(makeTransition(i))
	}
	assert.Equal(t, 3, b.Len())
	// 写满后容量封顶
	for i := 3; i < 10; i++ {
		b.Push(makeTransition(i))
	}
	assert.Equal(t, 4, b.Len())
}

func TestReplayBufferOverwritesOldest(t *testing.T) {
	b := newReplayBuffer(3)
	for i := 0; i < 5; i++ {
		b.Push(makeTransition(i))
	}
	// 容量3写入5条后只保留2、3、4
	kept := make(map[float64]bool)
	for _, tr := range b.data {
		kept[tr.reward] = true
	}
	assert.Equal(t, map[float64]bool{2: true, 3: true, 4: true}, kept)
}

func TestReplayBufferSample(t *testing.T) {
	b := newReplayBuffer(8)
	for i := 0; i < 8; i++ {
		b.Push(makeTransition(i))
	}
	e := randengine.New(1)
	batch := b.Sample(4, e)
	assert.Len(t, batch, 4)
	// 无放回采样不出现重复样本
	seen := make(map[float64]bool)
	for _, tr := range batch {
		assert.False(t, seen[tr.reward])
		seen[tr.reward] = true
	}
}
