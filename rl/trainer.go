// 训练器，在同一场景上按episode反复运行仿真并驱动DQN智能体学习
// 每个episode重建一次任务上下文，智能体通过池在episode之间保持
package rl

import (
	"fmt"
	"os"

	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/mapgen"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/task"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/input"
	"gonum.org/v1/gonum/stat"
)

// 最后若干episode的平均指标作为训练结果摘要
const summaryWindow = 10

// EpisodeMetrics 单个episode的训练指标
type EpisodeMetrics struct {
	Episode        int32   // episode序号，从1开始
	Epsilon        float64 // 本episode使用的探索率
	Reward         float64 // 所有RL路口的累计奖励之和
	QueueAvg       float64 // 道路行车道排队车辆总数的每步平均
	CompletedTrips int32   // 已完成的行程数
	AvgTravelTime  float64 // 已完成行程的平均耗时
	WaitingTime    float64 // 在途车辆累计等待时长
}

// Trainer 训练器
// 功能：按配置的episode数在同一场景上反复运行仿真，
// RL信控路口的智能体跨episode学习，按周期保存模型与输出训练指标
type Trainer struct {
	job      string
	cacheDir string
	c        config.Config
	rc       *config.RuntimeConfig

	pool *Pool        // RL信控智能体池，非rl策略为nil
	in   *input.Input // 所有episode共享的场景输入

	history []EpisodeMetrics
}

// NewTrainer 创建训练器
// 功能：加载或生成场景输入（只做一次，保证所有episode场景一致），
// rl策略下创建跨episode共享的智能体池
// 参数：job-任务名，cacheDir-输入缓存目录，c-配置
// 返回：训练器
func NewTrainer(job string, cacheDir string, c config.Config) *Trainer {
	t := &Trainer{
		job:      job,
		cacheDir: cacheDir,
		c:        c,
		rc:       config.NewRuntimeConfig(c),
	}
	if t.rc.C.TrafficLight.Policy == config.PolicyRL {
		t.pool = NewPool(t.rc)
	}
	if c.Generator != nil {
		t.in = mapgen.Build(c.Generator, c.Control.Step)
	} else {
		t.in = input.Init(c, cacheDir)
	}
	return t
}

// Pool 智能体池（非rl策略为nil）
func (t *Trainer) Pool() *Pool {
	return t.pool
}

// History 已完成episode的训练指标
func (t *Trainer) History() []EpisodeMetrics {
	return t.history
}

// Run 执行训练
// 功能：按配置运行全部episode，每个episode输出一行指标日志；
// 学习模式下按save_every周期与训练结束时保存模型
// 返回：指标文件或模型保存的错误
// 算法说明：
// 1. 打开指标输出文件（配置了metrics_path时）
// 2. 逐episode运行仿真并采集指标
// 3. episode结束后衰减探索率、按周期保存模型
// 4. 全部结束后输出最后summaryWindow个episode的平均指标
func (t *Trainer) Run() error {
	var metricsFile *os.File
	if path := t.c.Output.MetricsPath; path != "" {
		var err error
		metricsFile, err = os.Create(path)
		if err != nil {
			return fmt.Errorf("trainer: create metrics file: %w", err)
		}
		defer metricsFile.Close()
		fmt.Fprintln(metricsFile, "episode,epsilon,reward,queue_avg,completed_trips,avg_travel_time,waiting_time")
	}

	learn := t.pool != nil && t.rc.Learn()
	for ep := int32(1); ep <= t.rc.T.Episodes; ep++ {
		m := t.runEpisode(ep)
		t.history = append(t.history, m)
		log.Infof(
			"episode %d/%d: eps=%.3f reward=%.3f queue_avg=%.2f trips=%d avg_travel_time=%.1f waiting=%.1f",
			m.Episode, t.rc.T.Episodes, m.Epsilon, m.Reward, m.QueueAvg,
			m.CompletedTrips, m.AvgTravelTime, m.WaitingTime,
		)
		if metricsFile != nil {
			fmt.Fprintf(metricsFile, "%d,%.4f,%.4f,%.2f,%d,%.2f,%.2f\n",
				m.Episode, m.Epsilon, m.Reward, m.QueueAvg,
				m.CompletedTrips, m.AvgTravelTime, m.WaitingTime)
		}
		if learn {
			t.pool.DecayEpsilon()
			if ep%t.rc.T.SaveEvery == 0 {
				if err := t.pool.Save(); err != nil {
					return fmt.Errorf("trainer: save checkpoint: %w", err)
				}
			}
		}
	}
	if learn {
		if err := t.pool.Save(); err != nil {
			return fmt.Errorf("trainer: save checkpoint: %w", err)
		}
	}
	t.logSummary()
	return nil
}

// runEpisode 运行一个episode
// 功能：在共享场景输入上重建任务上下文并跑完整个仿真区间，采集指标
// 参数：ep-episode序号
// 返回：本episode的训练指标
func (t *Trainer) runEpisode(ep int32) EpisodeMetrics {
	// 传nil接口而不是nil指针，路口侧以pool==nil判断是否启用RL
	var pool entity.IAgentPool
	epsilon := .0
	if t.pool != nil {
		pool = t.pool
		epsilon = t.pool.Epsilon()
	}
	ctx := task.NewContext(
		fmt.Sprintf("%s-ep%d", t.job, ep),
		t.cacheDir, t.c, t.in, pool,
		nil, false,
	)
	ctx.Init()

	clock := ctx.Clock()
	queues := make([]float64, 0, clock.END_STEP-clock.START_STEP)
	for !clock.Done() {
		ctx.Step()
		queues = append(queues, float64(ctx.LaneManager().QueueSum()))
	}
	stats := ctx.PersonManager().GlobalStats()
	ctx.Close()

	m := EpisodeMetrics{
		Episode:        ep,
		Epsilon:        epsilon,
		CompletedTrips: stats.NumCompletedTrips,
		WaitingTime:    stats.WaitingTime,
	}
	if t.pool != nil {
		m.Reward = t.pool.TakeEpisodeReward()
	}
	if len(queues) > 0 {
		m.QueueAvg = stat.Mean(queues, nil)
	}
	if stats.NumCompletedTrips > 0 {
		m.AvgTravelTime = stats.CompletedTravelTime / float64(stats.NumCompletedTrips)
	}
	return m
}

// logSummary 输出最后summaryWindow个episode的平均指标
func (t *Trainer) logSummary() {
	n := len(t.history)
	if n == 0 {
		return
	}
	window := summaryWindow
	if n < window {
		window = n
	}
	rewards := make([]float64, 0, window)
	queueAvgs := make([]float64, 0, window)
	for _, m := range t.history[n-window:] {
		rewards = append(rewards, m.Reward)
		queueAvgs = append(queueAvgs, m.QueueAvg)
	}
	log.Infof(
		"training complete: %d episodes, last %d: avg reward=%.3f avg queue=%.2f",
		n, window, stat.Mean(rewards, nil), stat.Mean(queueAvgs, nil),
	)
}
