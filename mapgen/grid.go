// Package mapgen 内置场景生成器
// 功能：根据配置直接构造网格路网地图与车辆需求，与文件/数据库输入的数据同构
// 说明：路网为rows x cols个十字路口组成的网格，相邻路口间为双向道路，
// 网格边缘向外延伸一段道路作为车辆的出入口；每条道路配有一个AOI作为行程端点
package mapgen

import (
	"fmt"
	"math"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

const (
	drivingLaneWidth = 3.5  // 行车道宽度（米）
	crosswalkWidth   = 3.0  // 人行横道宽度（米）
	crosswalkSpeed   = 1.4  // 人行横道限速（米/秒）
	junctionMargin   = 8.0  // 最外侧车道到路口边界的富余（米）
	turnMaxSpeed     = 8.33 // 路口转向车道限速（米/秒）

	aoiSide    = 16.0 // AOI方形边长（米）
	aoiSetback = 10.0 // AOI中心到所在车道中线的距离（米）

	fixedYellowTime = 3.0 // 固定配时方案中的黄灯时长（秒）

	roadIDStart     = 2_0000_0000
	junctionIDStart = 3_0000_0000
	aoiIDStart      = 5_0000_0000
)

// 路口臂方向，从北起顺时针编号
const (
	armN = iota
	armE
	armS
	armW
	armCount
)

// 各方向的行车方向单位向量
var armVectors = [armCount][2]float64{{0, 1}, {1, 0}, {0, -1}, {-1, 0}}

// outArm 给定驶入臂与转向，返回驶出臂
// 说明：臂方向指车流来向，如armN表示从北侧驶入（车头朝南）
func outArm(in int, turn mapv2.LaneTurn) int {
	switch turn {
	case mapv2.LaneTurn_LANE_TURN_STRAIGHT:
		return (in + 2) % armCount
	case mapv2.LaneTurn_LANE_TURN_LEFT:
		return (in + 1) % armCount
	case mapv2.LaneTurn_LANE_TURN_RIGHT:
		return (in + 3) % armCount
	}
	log.Panicf("unsupported junction turn %v", turn)
	return -1
}

// genRoad 生成过程中的道路，附带派生的方向与连接信息
type genRoad struct {
	pb     *mapv2.Road
	lanes  []*mapv2.Lane // 行车道，从左到右
	dir    int           // 行车方向
	length float64

	hasPre  bool // 上游是否连接路口
	hasSucc bool // 下游是否连接路口
}

// rightest 最右侧行车道，AOI的接入车道
func (g *genRoad) rightest() *mapv2.Lane {
	return g.lanes[len(g.lanes)-1]
}

// armRoads 路口单个臂上的一对有向道路
type armRoads struct {
	in  *genRoad // 驶入路口的道路
	out *genRoad // 驶出路口的道路
}

// Network 生成的路网与需求生成所需的派生索引
type Network struct {
	Map *mapv2.Map

	roadGens  []*genRoad          // 全部道路，按生成顺序
	roads     map[int32]*genRoad  // 道路ID索引
	aoiByRoad map[int32]int32     // 道路ID到该道路AOI的映射
	origins   []int32             // 可作为出发道路的道路ID（有下游路口）
	dests     []int32             // 可作为到达道路的道路ID（有上游路口）
}

type gridBuilder struct {
	grid config.GeneratorGrid

	halfBox float64 // 路口中心到路口边界的距离
	spacing float64 // 相邻路口中心距

	nextLaneID     int32
	nextRoadID     int32
	nextJunctionID int32
	nextAoiID      int32

	lanes     []*mapv2.Lane
	junctions []*mapv2.Junction
	aois      []*mapv2.Aoi

	arms [][armCount]armRoads // 各路口的臂，按r*cols+c索引

	net *Network
}

func newGridBuilder(grid config.GeneratorGrid) *gridBuilder {
	halfBox := float64(grid.LanesPerRoad)*drivingLaneWidth + junctionMargin
	return &gridBuilder{
		grid:           grid,
		halfBox:        halfBox,
		spacing:        grid.RoadLength + 2*halfBox,
		nextRoadID:     roadIDStart,
		nextJunctionID: junctionIDStart,
		nextAoiID:      aoiIDStart,
		arms:           make([][armCount]armRoads, grid.Rows*grid.Cols),
		net: &Network{
			roads:     make(map[int32]*genRoad),
			aoiByRoad: make(map[int32]int32),
		},
	}
}

// build 构造完整路网
// 算法说明：
// 1. 生成全部街道（含边界延伸段），登记到两端路口的臂
// 2. 逐个路口生成转向车道、车道组、人行横道与信控相位
// 3. 沿每条道路生成一个AOI作为行程端点
// 4. 汇总为地图并计算边界
func (b *gridBuilder) build() *Network {
	b.buildStreets()
	for r := int32(0); r < b.grid.Rows; r++ {
		for c := int32(0); c < b.grid.Cols; c++ {
			b.buildJunction(r, c)
		}
	}
	b.buildAois()
	return b.finalize()
}

// 路口(r,c)的中心坐标，西南角的边界延伸段起点为原点
func (b *gridBuilder) centerX(c int32) float64 {
	return b.grid.RoadLength + b.halfBox + float64(c)*b.spacing
}

func (b *gridBuilder) centerY(r int32) float64 {
	return b.grid.RoadLength + b.halfBox + float64(r)*b.spacing
}

func (b *gridBuilder) armAt(r, c int32) *[armCount]armRoads {
	return &b.arms[r*b.grid.Cols+c]
}

// newLane 创建一条车道并登记
func (b *gridBuilder) newLane(
	typ mapv2.LaneType, turn mapv2.LaneTurn,
	maxSpeed, width float64,
	nodes ...*geov2.XYPosition,
) *mapv2.Lane {
	length := .0
	for i := 1; i < len(nodes); i++ {
		length += math.Hypot(nodes[i].X-nodes[i-1].X, nodes[i].Y-nodes[i-1].Y)
	}
	l := &mapv2.Lane{
		Id:         b.nextLaneID,
		Type:       typ,
		Turn:       turn,
		MaxSpeed:   maxSpeed,
		Length:     length,
		Width:      width,
		CenterLine: &mapv2.Polyline{Nodes: nodes},
	}
	b.nextLaneID++
	b.lanes = append(b.lanes, l)
	return l
}

// newRoad 沿街道中心线从(ax,ay)到(bx,by)创建一条有向道路
// 说明：右侧通行，车道中线依次排在行车方向右侧，LaneIds自左向右
func (b *gridBuilder) newRoad(ax, ay, bx, by float64, dir int, name string) *genRoad {
	n := int(b.grid.LanesPerRoad)
	length := math.Hypot(bx-ax, by-ay)
	ux, uy := (bx-ax)/length, (by-ay)/length
	// 行车方向右侧的单位法向
	rx, ry := uy, -ux
	lanes := make([]*mapv2.Lane, n)
	laneIDs := make([]int32, n)
	for i := 0; i < n; i++ {
		off := (float64(i) + 0.5) * drivingLaneWidth
		lanes[i] = b.newLane(
			mapv2.LaneType_LANE_TYPE_DRIVING,
			mapv2.LaneTurn_LANE_TURN_STRAIGHT,
			b.grid.MaxSpeed, drivingLaneWidth,
			&geov2.XYPosition{X: ax + rx*off, Y: ay + ry*off},
			&geov2.XYPosition{X: bx + rx*off, Y: by + ry*off},
		)
		laneIDs[i] = lanes[i].Id
	}
	for i, l := range lanes {
		if i > 0 {
			l.LeftLaneIds = []int32{lanes[i-1].Id}
		}
		if i < n-1 {
			l.RightLaneIds = []int32{lanes[i+1].Id}
		}
	}
	road := &mapv2.Road{Id: b.nextRoadID, LaneIds: laneIDs, Name: name}
	b.nextRoadID++
	for _, l := range lanes {
		l.ParentId = road.Id
	}
	g := &genRoad{pb: road, lanes: lanes, dir: dir, length: length}
	b.net.roadGens = append(b.net.roadGens, g)
	b.net.roads[road.Id] = g
	return g
}

// buildStreets 生成全部街道
// 说明：横向街道每行cols+1条（含两端边界延伸段），纵向街道每列rows+1条；
// 每条街道由两条方向相反的有向道路构成
func (b *gridBuilder) buildStreets() {
	rows, cols := b.grid.Rows, b.grid.Cols
	for r := int32(0); r < rows; r++ {
		cy := b.centerY(r)
		for c := int32(0); c <= cols; c++ {
			var wx, ex float64
			if c > 0 {
				wx = b.centerX(c-1) + b.halfBox
			} else {
				wx = b.centerX(0) - b.halfBox - b.grid.RoadLength
			}
			if c < cols {
				ex = b.centerX(c) - b.halfBox
			} else {
				ex = b.centerX(cols-1) + b.halfBox + b.grid.RoadLength
			}
			eb := b.newRoad(wx, cy, ex, cy, armE, fmt.Sprintf("street r%d s%d eastbound", r, c))
			wb := b.newRoad(ex, cy, wx, cy, armW, fmt.Sprintf("street r%d s%d westbound", r, c))
			if c > 0 {
				arm := b.armAt(r, c-1)
				arm[armE].out = eb
				arm[armE].in = wb
				eb.hasPre = true
				wb.hasSucc = true
			}
			if c < cols {
				arm := b.armAt(r, c)
				arm[armW].in = eb
				arm[armW].out = wb
				eb.hasSucc = true
				wb.hasPre = true
			}
		}
	}
	for c := int32(0); c < cols; c++ {
		cx := b.centerX(c)
		for r := int32(0); r <= rows; r++ {
			var sy, ny float64
			if r > 0 {
				sy = b.centerY(r-1) + b.halfBox
			} else {
				sy = b.centerY(0) - b.halfBox - b.grid.RoadLength
			}
			if r < rows {
				ny = b.centerY(r) - b.halfBox
			} else {
				ny = b.centerY(rows-1) + b.halfBox + b.grid.RoadLength
			}
			nb := b.newRoad(cx, sy, cx, ny, armN, fmt.Sprintf("street c%d s%d northbound", c, r))
			sb := b.newRoad(cx, ny, cx, sy, armS, fmt.Sprintf("street c%d s%d southbound", c, r))
			if r > 0 {
				arm := b.armAt(r-1, c)
				arm[armN].out = nb
				arm[armN].in = sb
				nb.hasPre = true
				sb.hasSucc = true
			}
			if r < rows {
				arm := b.armAt(r, c)
				arm[armS].in = nb
				arm[armS].out = sb
				nb.hasSucc = true
				sb.hasPre = true
			}
		}
	}
}

// movementKey 路口内单条转向车道的放行归类
type movementKey struct {
	crosswalk bool
	arm       int // 转向车道为驶入臂，人行横道为所跨越的臂
	turn      mapv2.LaneTurn
}

// connectMovement 建立转向车道与前后道路车道的连接关系
func connectMovement(jl, pre, succ *mapv2.Lane) {
	jl.Predecessors = []*mapv2.LaneConnection{{
		Id: pre.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_TAIL,
	}}
	jl.Successors = []*mapv2.LaneConnection{{
		Id: succ.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_HEAD,
	}}
	pre.Successors = append(pre.Successors, &mapv2.LaneConnection{
		Id: jl.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_HEAD,
	})
	succ.Predecessors = append(succ.Predecessors, &mapv2.LaneConnection{
		Id: jl.Id, Type: mapv2.LaneConnectionType_LANE_CONNECTION_TYPE_TAIL,
	})
}

func laneEnd(l *mapv2.Lane) *geov2.XYPosition {
	n := l.CenterLine.Nodes[len(l.CenterLine.Nodes)-1]
	return &geov2.XYPosition{X: n.X, Y: n.Y}
}

func laneStart(l *mapv2.Lane) *geov2.XYPosition {
	n := l.CenterLine.Nodes[0]
	return &geov2.XYPosition{X: n.X, Y: n.Y}
}

// buildJunction 生成路口(r,c)的转向车道、车道组、人行横道与相位
// 算法说明：
// 1. 每个驶入臂生成直行、左转、右转三组转向车道：
//    直行按车道序号一一对接，左转用最左车道，右转用最右车道
// 2. 每组转向车道构成一个(inRoad,outRoad)车道组
// 3. 每个臂生成一条横跨整条街道的人行横道
// 4. 相位状态向量与路口LaneIds对齐
func (b *gridBuilder) buildJunction(r, c int32) {
	cx, cy := b.centerX(c), b.centerY(r)
	arms := b.armAt(r, c)
	j := &mapv2.Junction{Id: b.nextJunctionID}
	b.nextJunctionID++

	keys := make([]movementKey, 0)
	turns := []mapv2.LaneTurn{
		mapv2.LaneTurn_LANE_TURN_STRAIGHT,
		mapv2.LaneTurn_LANE_TURN_LEFT,
		mapv2.LaneTurn_LANE_TURN_RIGHT,
	}
	for in := 0; in < armCount; in++ {
		inRoad := arms[in].in
		inVec := armVectors[inRoad.dir]
		for _, turn := range turns {
			out := outArm(in, turn)
			outRoad := arms[out].out
			outVec := armVectors[outRoad.dir]
			var pairs [][2]*mapv2.Lane
			switch turn {
			case mapv2.LaneTurn_LANE_TURN_STRAIGHT:
				for i := range inRoad.lanes {
					pairs = append(pairs, [2]*mapv2.Lane{inRoad.lanes[i], outRoad.lanes[i]})
				}
			case mapv2.LaneTurn_LANE_TURN_LEFT:
				pairs = append(pairs, [2]*mapv2.Lane{inRoad.lanes[0], outRoad.lanes[0]})
			case mapv2.LaneTurn_LANE_TURN_RIGHT:
				pairs = append(pairs, [2]*mapv2.Lane{inRoad.rightest(), outRoad.rightest()})
			}
			speed := b.grid.MaxSpeed
			if turn != mapv2.LaneTurn_LANE_TURN_STRAIGHT {
				speed = math.Min(speed, turnMaxSpeed)
			}
			groupLaneIDs := make([]int32, 0, len(pairs))
			for _, pair := range pairs {
				jl := b.newLane(
					mapv2.LaneType_LANE_TYPE_DRIVING, turn,
					speed, drivingLaneWidth,
					laneEnd(pair[0]), laneStart(pair[1]),
				)
				jl.ParentId = j.Id
				connectMovement(jl, pair[0], pair[1])
				j.LaneIds = append(j.LaneIds, jl.Id)
				groupLaneIDs = append(groupLaneIDs, jl.Id)
				keys = append(keys, movementKey{arm: in, turn: turn})
			}
			j.DrivingLaneGroups = append(j.DrivingLaneGroups, &mapv2.JunctionLaneGroup{
				InRoadId:  inRoad.pb.Id,
				InAngle:   math.Atan2(inVec[1], inVec[0]),
				OutRoadId: outRoad.pb.Id,
				OutAngle:  math.Atan2(outVec[1], outVec[0]),
				LaneIds:   groupLaneIDs,
				Turn:      turn,
			})
		}
	}

	// 人行横道：每臂一条，横跨街道全宽，位于路口边界处
	streetHalf := float64(b.grid.LanesPerRoad)*drivingLaneWidth + 1
	crosswalkEnds := [armCount][2][2]float64{
		armN: {{cx - streetHalf, cy + b.halfBox}, {cx + streetHalf, cy + b.halfBox}},
		armE: {{cx + b.halfBox, cy - streetHalf}, {cx + b.halfBox, cy + streetHalf}},
		armS: {{cx - streetHalf, cy - b.halfBox}, {cx + streetHalf, cy - b.halfBox}},
		armW: {{cx - b.halfBox, cy - streetHalf}, {cx - b.halfBox, cy + streetHalf}},
	}
	for arm, ends := range crosswalkEnds {
		wl := b.newLane(
			mapv2.LaneType_LANE_TYPE_WALKING,
			mapv2.LaneTurn_LANE_TURN_STRAIGHT,
			crosswalkSpeed, crosswalkWidth,
			&geov2.XYPosition{X: ends[0][0], Y: ends[0][1]},
			&geov2.XYPosition{X: ends[1][0], Y: ends[1][1]},
		)
		wl.ParentId = j.Id
		j.LaneIds = append(j.LaneIds, wl.Id)
		keys = append(keys, movementKey{crosswalk: true, arm: arm})
	}

	j.Phases = b.buildPhases(keys)
	if b.grid.FixedProgram {
		j.FixedProgram = buildFixedProgram(j.Id, j.Phases, b.grid.PhaseTime)
	}
	b.junctions = append(b.junctions, j)
}

// movementGreen 判断转向车道在指定相位是否放行
// 说明：2相位为南北全放行/东西全放行；
// 4相位为南北直右/南北左/东西直右/东西左
func movementGreen(phase int, phaseCount int32, inArm int, turn mapv2.LaneTurn) bool {
	ns := inArm == armN || inArm == armS
	if phaseCount == 2 {
		return (phase == 0) == ns
	}
	left := turn == mapv2.LaneTurn_LANE_TURN_LEFT
	switch phase {
	case 0:
		return ns && !left
	case 1:
		return ns && left
	case 2:
		return !ns && !left
	case 3:
		return !ns && left
	}
	return false
}

// crosswalkGreen 判断人行横道在指定相位是否放行
// 说明：与所跨越街道平行的直行相位放行，穿越它的转向车流让行
func crosswalkGreen(phase int, phaseCount int32, arm int) bool {
	ns := arm == armN || arm == armS
	if phaseCount == 2 {
		return (phase == 1) == ns
	}
	if ns {
		return phase == 2
	}
	return phase == 0
}

// buildPhases 生成路口可用相位，状态向量与LaneIds对齐
func (b *gridBuilder) buildPhases(keys []movementKey) []*mapv2.AvailablePhase {
	phases := make([]*mapv2.AvailablePhase, b.grid.Phases)
	for p := range phases {
		states := make([]mapv2.LightState, len(keys))
		for i, k := range keys {
			green := false
			if k.crosswalk {
				green = crosswalkGreen(p, b.grid.Phases, k.arm)
			} else {
				green = movementGreen(p, b.grid.Phases, k.arm, k.turn)
			}
			if green {
				states[i] = mapv2.LightState_LIGHT_STATE_GREEN
			} else {
				states[i] = mapv2.LightState_LIGHT_STATE_RED
			}
		}
		phases[p] = &mapv2.AvailablePhase{States: states}
	}
	return phases
}

// buildFixedProgram 由可用相位生成固定配时方案
// 说明：每个绿灯相位后插入黄灯过渡相位，绿灯保持的车道在过渡相位仍为绿
func buildFixedProgram(junctionID int32, phases []*mapv2.AvailablePhase, phaseTime float64) *mapv2.TrafficLight {
	tl := &mapv2.TrafficLight{JunctionId: junctionID}
	for i, phase := range phases {
		next := phases[(i+1)%len(phases)].States
		tl.Phases = append(tl.Phases, &mapv2.Phase{
			Duration: phaseTime,
			States:   phase.States,
		})
		yellow := make([]mapv2.LightState, len(phase.States))
		for li, s := range phase.States {
			switch {
			case s == mapv2.LightState_LIGHT_STATE_GREEN && next[li] == mapv2.LightState_LIGHT_STATE_GREEN:
				yellow[li] = mapv2.LightState_LIGHT_STATE_GREEN
			case s == mapv2.LightState_LIGHT_STATE_GREEN:
				yellow[li] = mapv2.LightState_LIGHT_STATE_YELLOW
			default:
				yellow[li] = mapv2.LightState_LIGHT_STATE_RED
			}
		}
		tl.Phases = append(tl.Phases, &mapv2.Phase{
			Duration: fixedYellowTime,
			States:   yellow,
		})
	}
	return tl
}

// buildAois 沿每条道路生成一个AOI
// 说明：AOI通过最右侧行车道中点接入路网，方形边界位于道路右侧
func (b *gridBuilder) buildAois() {
	for _, g := range b.net.roadGens {
		gate := g.rightest()
		nodes := gate.CenterLine.Nodes
		n0, n1 := nodes[0], nodes[len(nodes)-1]
		ux, uy := (n1.X-n0.X)/g.length, (n1.Y-n0.Y)/g.length
		rx, ry := uy, -ux
		mx, my := (n0.X+n1.X)/2, (n0.Y+n1.Y)/2
		ax, ay := mx+rx*aoiSetback, my+ry*aoiSetback
		half := aoiSide / 2
		area := aoiSide * aoiSide
		aoi := &mapv2.Aoi{
			Id:   b.nextAoiID,
			Area: &area,
			Positions: []*geov2.XYPosition{
				{X: ax - half, Y: ay - half},
				{X: ax + half, Y: ay - half},
				{X: ax + half, Y: ay + half},
				{X: ax - half, Y: ay + half},
				{X: ax - half, Y: ay - half},
			},
			DrivingPositions: []*geov2.LanePosition{
				{LaneId: gate.Id, S: g.length / 2},
			},
		}
		b.nextAoiID++
		b.aois = append(b.aois, aoi)
		b.net.aoiByRoad[g.pb.Id] = aoi.Id
	}
}

// finalize 汇总地图并计算可达性端点集合
func (b *gridBuilder) finalize() *Network {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, l := range b.lanes {
		for _, n := range l.CenterLine.Nodes {
			minX = math.Min(minX, n.X)
			maxX = math.Max(maxX, n.X)
			minY = math.Min(minY, n.Y)
			maxY = math.Max(maxY, n.Y)
		}
	}
	roads := make([]*mapv2.Road, 0, len(b.net.roadGens))
	for _, g := range b.net.roadGens {
		roads = append(roads, g.pb)
		if g.hasSucc {
			b.net.origins = append(b.net.origins, g.pb.Id)
		}
		if g.hasPre {
			b.net.dests = append(b.net.dests, g.pb.Id)
		}
	}
	b.net.Map = &mapv2.Map{
		Header: &mapv2.Header{
			Name:       fmt.Sprintf("grid %dx%d", b.grid.Rows, b.grid.Cols),
			Projection: "+proj=tmerc +lat_0=0 +lon_0=0",
			North:      maxY + aoiSetback + aoiSide,
			South:      minY - aoiSetback - aoiSide,
			East:       maxX + aoiSetback + aoiSide,
			West:       minX - aoiSetback - aoiSide,
		},
		Lanes:     b.lanes,
		Roads:     roads,
		Junctions: b.junctions,
		Aois:      b.aois,
	}
	return b.net
}
