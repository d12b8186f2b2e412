package config

// InputPath 指定输入数据来源的配置（MongoDB、文件系统）
// 功能：定义数据输入路径的配置结构，支持多种数据源
// 说明：支持MongoDB数据库和文件系统两种数据源，支持缓存机制
type InputPath struct {
	DB        string   `yaml:"db"`                   // 数据库名
	Col       string   `yaml:"col"`                  // 集合名
	Cache     string   `yaml:"cache,omitempty"`      // 缓存文件名，为空则采用默认路径{db}.{col}.pb
	OnlyCache bool     `yaml:"only_cache,omitempty"` // 只从缓存中获取
	File      string   `yaml:"file,omitempty"`       // 文件路径（优先级高于MongoDB）
	Files     []string `yaml:"files,omitempty"`      // 文件路径列表（优先级高于MongoDB）
}

// GetDb 获取数据库名
// 功能：返回配置的数据库名称
// 返回：数据库名称字符串
func (p InputPath) GetDb() string {
	return p.DB
}

// GetColl 获取集合名
// 功能：返回配置的集合名称
// 返回：集合名称字符串
func (p InputPath) GetColl() string {
	return p.Col
}

// GetCachePath 获取缓存文件路径
// 功能：返回缓存文件的完整路径
// 返回：缓存文件路径字符串
// 算法说明：
// 1. 如果指定了缓存路径，直接返回
// 2. 否则使用默认命名规则：{数据库名}.{集合名}.pb
// 说明：提供统一的缓存路径获取接口
func (p InputPath) GetCachePath() string {
	if p.Cache != "" {
		return p.Cache
	}
	return p.DB + "." + p.Col + ".pb"
}

// Input 指定模拟器所有输入数据的配置项
// 功能：定义仿真系统的所有输入数据配置
// 说明：包含地图、人员等各类输入数据的配置，当配置了generator时可省略
type Input struct {
	URI    string     `yaml:"uri"`              // MongoDB连接字符串
	Map    InputPath  `yaml:"map"`              // 地图
	Person *InputPath `yaml:"person,omitempty"` // 人员
}

// GeneratorGrid 网格路网生成配置
// 功能：定义内置场景生成器的网格路网参数
type GeneratorGrid struct {
	Rows         int32   `yaml:"rows"`                      // 路口行数
	Cols         int32   `yaml:"cols"`                      // 路口列数
	RoadLength   float64 `yaml:"road_length,omitempty"`     // 相邻路口间道路长度（米）
	LanesPerRoad int32   `yaml:"lanes_per_road,omitempty"`  // 每条道路的行车道数
	MaxSpeed     float64 `yaml:"max_speed,omitempty"`       // 道路限速（米/秒）
	Phases       int32   `yaml:"phases,omitempty"`          // 信控相位数（2或4）
	FixedProgram bool    `yaml:"fixed_program,omitempty"`   // 是否生成固定配时方案
	PhaseTime    float64 `yaml:"phase_time,omitempty"`      // 固定配时方案的相位时长（秒）
}

// GeneratorFlow 单条OD流量配置
// 功能：定义一条OD对的泊松到达流量
// 说明：from_road/to_road为空时在可达OD集合中随机抽取
type GeneratorFlow struct {
	FromRoad  int32   `yaml:"from_road,omitempty"`  // 起点道路ID（0表示随机）
	ToRoad    int32   `yaml:"to_road,omitempty"`    // 终点道路ID（0表示随机）
	Rate      float64 `yaml:"rate"`                 // 到达率（辆/秒）
	StartTime float64 `yaml:"start_time,omitempty"` // 发车开始时间（秒）
	EndTime   float64 `yaml:"end_time,omitempty"`   // 发车结束时间（秒）
}

// GeneratorDemand 车辆需求生成配置
type GeneratorDemand struct {
	Flows []GeneratorFlow `yaml:"flows"`          // OD流量列表
	Seed  uint64          `yaml:"seed,omitempty"` // 需求生成随机种子
}

// Generator 内置场景生成器配置
// 功能：代替input从配置直接生成地图与车辆需求
// 说明：设置后优先于input生效
type Generator struct {
	Grid   GeneratorGrid   `yaml:"grid"`   // 网格路网
	Demand GeneratorDemand `yaml:"demand"` // 车辆需求
}

// ControlStep 指定模拟器模拟时间范围和间隔的配置项
// 功能：定义仿真时间控制参数
// 说明：控制仿真的时间范围、步长和精度
type ControlStep struct {
	Start    int32   `yaml:"start"`    // 开始步数
	Total    int32   `yaml:"total"`    // 总步数
	Interval float64 `yaml:"interval"` // 每步的时间间隔
}

// ControlTrafficLight 信控策略配置
// 功能：定义路口信控策略及其时间参数
type ControlTrafficLight struct {
	Policy           string  `yaml:"policy,omitempty"`            // 信控策略（fixed/max_pressure/rule/rl）
	MinGreen         float64 `yaml:"min_green,omitempty"`         // 最小绿灯时长（秒）
	MaxGreen         float64 `yaml:"max_green,omitempty"`         // 最大绿灯时长（秒）
	DecisionInterval float64 `yaml:"decision_interval,omitempty"` // 决策间隔（秒）
}

// Control 模拟器控制配置
// 功能：定义仿真系统的核心控制参数
// 说明：包含时间控制、信控策略、功能开关等核心配置
type Control struct {
	Step             ControlStep         `yaml:"step"`
	PreferFixedLight bool                `yaml:"prefer_fixed_light,omitempty"` // 优先使用固定相位信控，如果不存在则使用策略信控
	TrafficLight     ControlTrafficLight `yaml:"traffic_light,omitempty"`      // 信控策略
}

// TrainingEpsilon epsilon-greedy探索参数
type TrainingEpsilon struct {
	Start float64 `yaml:"start,omitempty"` // 初始探索率
	End   float64 `yaml:"end,omitempty"`   // 最小探索率
	Decay float64 `yaml:"decay,omitempty"` // 每个episode的衰减系数
}

// Training 强化学习训练配置
// 功能：定义DQN训练过程的全部超参数
type Training struct {
	Episodes          int32           `yaml:"episodes,omitempty"`            // 训练轮数
	Gamma             float64         `yaml:"gamma,omitempty"`               // 折扣系数
	LR                float64         `yaml:"lr,omitempty"`                  // 学习率
	Epsilon           TrainingEpsilon `yaml:"epsilon,omitempty"`             // 探索参数
	BufferSize        int32           `yaml:"buffer_size,omitempty"`         // 经验回放容量
	BatchSize         int32           `yaml:"batch_size,omitempty"`          // 采样批大小
	UpdateEvery       int32           `yaml:"update_every,omitempty"`        // 每多少次观测做一次学习
	TargetEvery       int32           `yaml:"target_every,omitempty"`        // 每多少次学习同步一次目标网络
	Hidden            int32           `yaml:"hidden,omitempty"`              // Q网络隐层宽度
	RewardWaitWeight  float64         `yaml:"reward_wait_weight,omitempty"`  // 等待时间变化量的奖励权重
	RewardQueueWeight float64         `yaml:"reward_queue_weight,omitempty"` // 排队长度的奖励权重
	CheckpointDir     string          `yaml:"checkpoint_dir,omitempty"`      // 模型保存目录
	SaveEvery         int32           `yaml:"save_every,omitempty"`          // 每多少个episode保存一次模型
	Learn             *bool           `yaml:"learn,omitempty"`               // 是否学习（false为纯推理评估）
}

// Output 输出配置
type Output struct {
	MetricsPath string `yaml:"metrics_path,omitempty"` // 训练指标输出文件路径
}

// Config YAML配置文件的根结构
// 功能：定义整个仿真系统的配置结构
// 说明：包含输入、生成器、控制、训练、输出等所有配置项
type Config struct {
	Input     Input      `yaml:"input"`               // 输入
	Generator *Generator `yaml:"generator,omitempty"` // 内置场景生成器（设置后代替input）
	Control   Control    `yaml:"control"`             // 模拟过程控制
	Training  Training   `yaml:"training,omitempty"`  // 强化学习训练
	Output    Output     `yaml:"output,omitempty"`    // 输出
}
