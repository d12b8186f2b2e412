package rl

import (
	"fmt"

	"github.com/openfluke/loom/nn"
)

// qNetworkJSON Q网络的loom结构描述
// 输出层激活为linear，保证Q值不被压缩到有界区间
const qNetworkJSON = `{
	"batch_size": 1,
	"grid_rows": 1,
	"grid_cols": 3,
	"layers_per_cell": 1,
	"layers": [
		{"type": "dense", "input_size": %d, "output_size": %d, "activation": "leaky_relu"},
		{"type": "dense", "input_size": %d, "output_size": %d, "activation": "leaky_relu"},
		{"type": "dense", "input_size": %d, "output_size": %d, "activation": "linear"}
	]
}`

// qNetwork DQN的Q值网络
// 功能：包装loom全连接网络，提供前向计算、小批量训练与权重同步
type qNetwork struct {
	net      *nn.Network
	obsDim   int
	hidden   int
	nActions int
}

// newQNetwork 创建Q值网络
// 功能：按观测维度、隐层宽度与动作数构建三层全连接网络并随机初始化权重
// 参数：obsDim-观测维度，hidden-隐层宽度，nActions-动作数
// 返回：Q值网络与可能的构建错误
func newQNetwork(obsDim, hidden, nActions int) (*qNetwork, error) {
	net, err := nn.BuildNetworkFromJSON(fmt.Sprintf(qNetworkJSON,
		obsDim, hidden, hidden, hidden, hidden, nActions))
	if err != nil {
		return nil, err
	}
	net.InitializeWeights()
	return &qNetwork{net: net, obsDim: obsDim, hidden: hidden, nActions: nActions}, nil
}

// Forward 前向计算Q值
// 参数：obs-观测向量
// 返回：每个动作的Q值
func (q *qNetwork) Forward(obs []float32) []float32 {
	out, _ := q.net.ForwardCPU(obs) // 第二个返回值为耗时
	return out
}

// Train 以MSE损失对一个小批量执行一次训练
// 参数：batch-训练样本，lr-学习率
func (q *qNetwork) Train(batch []nn.TrainingBatch, lr float64) {
	q.net.Train(batch, &nn.TrainingConfig{
		Epochs:       1,
		LearningRate: float32(lr),
		LossType:     "mse",
	})
}

// SyncFrom 从另一网络复制全部权重，用于目标网络的硬同步
func (q *qNetwork) SyncFrom(src *qNetwork) {
	for col := 0; col < q.net.GridCols; col++ {
		dst := q.net.GetLayer(0, col, 0)
		from := src.net.GetLayer(0, col, 0)
		copy(dst.Kernel, from.Kernel)
		copy(dst.Bias, from.Bias)
	}
}

// Save 保存模型到文件
// 参数：path-文件路径，name-模型名
func (q *qNetwork) Save(path, name string) error {
	return q.net.SaveModel(path, name)
}

// loadQNetwork 从文件加载模型
// 参数：path-文件路径，name-模型名，obsDim/hidden/nActions-期望的网络规格
// 返回：Q值网络与可能的加载错误
func loadQNetwork(path, name string, obsDim, hidden, nActions int) (*qNetwork, error) {
	net, err := nn.LoadModel(path, name)
	if err != nil {
		return nil, err
	}
	return &qNetwork{net: net, obsDim: obsDim, hidden: hidden, nActions: nActions}, nil
}
