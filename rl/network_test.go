package rl

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQNetworkForward(t *testing.T) {
	q, err := newQNetwork(4, 8, 3)
	assert.NoError(t, err)
	obs := []float32{0.1, 0.5, 0.2, 0.9}
	out := q.Forward(obs)
	assert.GreaterOrEqual(t, len(out), 3)
	// 相同输入前向结果确定
	assert.Equal(t, out, q.Forward(obs))
}

func TestQNetworkSyncFrom(t *testing.T) {
	a, err := newQNetwork(4, 8, 3)
	assert.NoError(t, err)
	b, err := newQNetwork(4, 8, 3)
	assert.NoError(t, err)

	obs := []float32{0.3, -0.2, 0.7, 0.1}
	b.SyncFrom(a)
	assert.Equal(t, a.Forward(obs), b.Forward(obs))
}

func TestQNetworkSaveLoad(t *testing.T) {
	q, err := newQNetwork(4, 8, 3)
	assert.NoError(t, err)
	path := filepath.Join(t.TempDir(), "net.json")
	assert.NoError(t, q.Save(path, "net"))

	loaded, err := loadQNetwork(path, "net", 4, 8, 3)
	assert.NoError(t, err)
	obs := []float32{0.4, 0.1, -0.5, 0.8}
	assert.InDeltaSlice(t, q.Forward(obs), loaded.Forward(obs), 1e-6)
}
