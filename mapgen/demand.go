package mapgen

import (
	"math"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	personv2 "git.fiblab.net/sim/protos/v2/go/city/person/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/randengine"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
)

// defaultVehicleAttribute 车辆动力学默认属性，对应常见小汽车
// 说明：人员构造时会在此基础上叠加随机扰动
func defaultVehicleAttribute() *personv2.VehicleAttribute {
	return &personv2.VehicleAttribute{
		Length:                           5,
		Width:                            2,
		MaxSpeed:                         41.67,
		MaxAcceleration:                  3,
		MaxBrakingAcceleration:           -10,
		UsualAcceleration:                2,
		UsualBrakingAcceleration:         -4.5,
		MinGap:                           1,
		Headway:                          1.5,
		LaneChangeLength:                 10,
		LaneMaxSpeedRecognitionDeviation: 1,
	}
}

// demandBuilder 车辆需求生成器
// 说明：道路可达性建立在道路有向图上，图的边为路口内的(inRoad,outRoad)车道组
type demandBuilder struct {
	net    *Network
	step   config.ControlStep
	engine *randengine.Engine

	graph *simple.WeightedDirectedGraph

	sp             map[int32]path.Shortest // 出发道路的最短路结果缓存
	reachableDests map[int32][]int32       // 出发道路到可达到达道路集合
	originsToDest  map[int32][]int32       // 到达道路到可抵达它的出发道路集合
	usableOrigins  []int32                 // 至少有一个可达到达道路的出发道路

	nextPersonID int32
	persons      []*personv2.Person
}

// buildDemand 按配置的OD流量生成车辆
// 功能：将每条流量展开为泊松到达的driving行程人员
// 参数：net-路网，demand-需求配置，step-模拟时间配置
// 返回：人员数据
func buildDemand(net *Network, demand config.GeneratorDemand, step config.ControlStep) *personv2.Persons {
	d := &demandBuilder{
		net:            net,
		step:           step,
		engine:         randengine.New(demand.Seed),
		graph:          buildRoadGraph(net),
		sp:             make(map[int32]path.Shortest),
		reachableDests: make(map[int32][]int32),
		originsToDest:  make(map[int32][]int32),
		nextPersonID:   1,
		persons:        make([]*personv2.Person, 0),
	}
	for i, flow := range demand.Flows {
		d.spawnFlow(i, flow)
	}
	return &personv2.Persons{Persons: d.persons}
}

// buildRoadGraph 构造道路有向图，边权为出边道路长度
func buildRoadGraph(net *Network) *simple.WeightedDirectedGraph {
	g := simple.NewWeightedDirectedGraph(0, math.Inf(1))
	for _, road := range net.roadGens {
		g.AddNode(simple.Node(road.pb.Id))
	}
	for _, j := range net.Map.Junctions {
		for _, group := range j.DrivingLaneGroups {
			g.SetWeightedEdge(simple.WeightedEdge{
				F: simple.Node(group.InRoadId),
				T: simple.Node(group.OutRoadId),
				W: net.roads[group.OutRoadId].length,
			})
		}
	}
	return g
}

func (d *demandBuilder) shortestFrom(road int32) path.Shortest {
	if sp, ok := d.sp[road]; ok {
		return sp
	}
	sp := path.DijkstraFrom(d.graph.Node(int64(road)), d.graph)
	d.sp[road] = sp
	return sp
}

// reachable 判断两条道路间是否存在行车路径
func (d *demandBuilder) reachable(from, to int32) bool {
	_, w := d.shortestFrom(from).To(int64(to))
	return !math.IsInf(w, 1)
}

// destsOf 出发道路的可达到达道路集合
func (d *demandBuilder) destsOf(from int32) []int32 {
	if dests, ok := d.reachableDests[from]; ok {
		return dests
	}
	dests := make([]int32, 0)
	for _, to := range d.net.dests {
		if to != from && d.reachable(from, to) {
			dests = append(dests, to)
		}
	}
	d.reachableDests[from] = dests
	return dests
}

// originsOf 可抵达指定到达道路的出发道路集合
func (d *demandBuilder) originsOf(to int32) []int32 {
	if origins, ok := d.originsToDest[to]; ok {
		return origins
	}
	origins := make([]int32, 0)
	for _, from := range d.net.origins {
		if from != to && d.reachable(from, to) {
			origins = append(origins, from)
		}
	}
	d.originsToDest[to] = origins
	return origins
}

// anyOrigins 至少有一个可达到达道路的出发道路集合
func (d *demandBuilder) anyOrigins() []int32 {
	if d.usableOrigins == nil {
		d.usableOrigins = make([]int32, 0, len(d.net.origins))
		for _, from := range d.net.origins {
			if len(d.destsOf(from)) > 0 {
				d.usableOrigins = append(d.usableOrigins, from)
			}
		}
	}
	return d.usableOrigins
}

// checkFlow 校验流量配置中显式指定的道路
func (d *demandBuilder) checkFlow(index int, flow config.GeneratorFlow) {
	if flow.Rate <= 0 {
		log.Panicf("generator flow %d: rate must be positive, got %v", index, flow.Rate)
	}
	if flow.FromRoad != 0 {
		from, ok := d.net.roads[flow.FromRoad]
		if !ok {
			log.Panicf("generator flow %d: unknown from_road %d", index, flow.FromRoad)
		}
		if !from.hasSucc {
			log.Panicf("generator flow %d: from_road %d leaves the network without passing a junction", index, flow.FromRoad)
		}
	}
	if flow.ToRoad != 0 {
		to, ok := d.net.roads[flow.ToRoad]
		if !ok {
			log.Panicf("generator flow %d: unknown to_road %d", index, flow.ToRoad)
		}
		if !to.hasPre {
			log.Panicf("generator flow %d: to_road %d cannot be reached from any junction", index, flow.ToRoad)
		}
	}
	if flow.FromRoad != 0 && flow.ToRoad != 0 {
		if flow.FromRoad == flow.ToRoad {
			log.Panicf("generator flow %d: from_road equals to_road %d", index, flow.FromRoad)
		}
		if !d.reachable(flow.FromRoad, flow.ToRoad) {
			log.Panicf("generator flow %d: no driving route from road %d to road %d", index, flow.FromRoad, flow.ToRoad)
		}
	}
	if flow.FromRoad == 0 && flow.ToRoad != 0 && len(d.originsOf(flow.ToRoad)) == 0 {
		log.Panicf("generator flow %d: no origin road reaches to_road %d", index, flow.ToRoad)
	}
	if flow.FromRoad != 0 && flow.ToRoad == 0 && len(d.destsOf(flow.FromRoad)) == 0 {
		log.Panicf("generator flow %d: from_road %d reaches no destination road", index, flow.FromRoad)
	}
	if flow.FromRoad == 0 && flow.ToRoad == 0 && len(d.anyOrigins()) == 0 {
		log.Panicf("generator flow %d: network has no connected od pair", index)
	}
}

// resolveOD 补全一次发车的OD对，未指定的一端从可达集合中随机抽取
func (d *demandBuilder) resolveOD(flow config.GeneratorFlow) (from, to int32) {
	from, to = flow.FromRoad, flow.ToRoad
	if from == 0 {
		var candidates []int32
		if to != 0 {
			candidates = d.originsOf(to)
		} else {
			candidates = d.anyOrigins()
		}
		from = candidates[d.engine.Intn(len(candidates))]
	}
	if to == 0 {
		candidates := d.destsOf(from)
		to = candidates[d.engine.Intn(len(candidates))]
	}
	return from, to
}

// spawnFlow 将一条OD流量展开为泊松到达的车辆
// 算法说明：发车间隔服从参数为rate的指数分布，发车时刻超出时间窗后停止；
// 时间窗缺省为整个模拟时段
func (d *demandBuilder) spawnFlow(index int, flow config.GeneratorFlow) {
	d.checkFlow(index, flow)
	simStart := float64(d.step.Start) * d.step.Interval
	simEnd := float64(d.step.Start+d.step.Total) * d.step.Interval
	start := math.Max(flow.StartTime, simStart)
	end := flow.EndTime
	if end <= start {
		end = simEnd
	}
	count := 0
	t := start
	for {
		t += d.engine.ExpFloat64() / flow.Rate
		if t >= end {
			break
		}
		from, to := d.resolveOD(flow)
		d.persons = append(d.persons, d.newDriver(from, to, t))
		count++
	}
	log.Debugf("generator flow %d: %d vehicles in [%v, %v)", index, count, start, end)
}

// newDriver 构造一个在指定时刻出发、驾车从fromRoad驶往toRoad的人员
func (d *demandBuilder) newDriver(fromRoad, toRoad int32, departure float64) *personv2.Person {
	p := &personv2.Person{
		Id:               d.nextPersonID,
		Attribute:        &personv2.PersonAttribute{},
		VehicleAttribute: defaultVehicleAttribute(),
		Home: &geov2.Position{
			AoiPosition: &geov2.AoiPosition{AoiId: d.net.aoiByRoad[fromRoad]},
		},
		Schedules: []*tripv2.Schedule{{
			Trips: []*tripv2.Trip{{
				Mode: tripv2.TripMode_TRIP_MODE_DRIVE_ONLY,
				End: &geov2.Position{
					AoiPosition: &geov2.AoiPosition{AoiId: d.net.aoiByRoad[toRoad]},
				},
			}},
			LoopCount:     1,
			DepartureTime: &departure,
		}},
	}
	d.nextPersonID++
	return p
}
