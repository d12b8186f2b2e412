package lane

import (
	"testing"

	geov2 "git.fiblab.net/sim/protos/v2/go/city/geo/v2"
	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/clock"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/entity"
)

// fakeContext 车道测试用的上下文桩，只提供时钟
type fakeContext struct {
	entity.ITaskContext
	clk *clock.Clock
}

func (c *fakeContext) Clock() *clock.Clock { return c.clk }

// fakeRoad 车道测试用的道路桩
type fakeRoad struct {
	entity.IRoad
}

// fakeVehicle 车道统计测试用的车辆桩
type fakeVehicle struct {
	entity.IPerson
	id     int32
	v      float64
	wait   float64
	shadow entity.ILane
}

func (p *fakeVehicle) ID() int32                { return p.id }
func (p *fakeVehicle) V() float64               { return p.v }
func (p *fakeVehicle) Length() float64          { return 5 }
func (p *fakeVehicle) WaitingTime() float64     { return p.wait }
func (p *fakeVehicle) ShadowLane() entity.ILane { return p.shadow }

func newTestLane(id int32, typ mapv2.LaneType, turn mapv2.LaneTurn, length float64) *Lane {
	ctx := &fakeContext{clk: &clock.Clock{DT: 1}}
	return newLane(ctx, &mapv2.Lane{
		Id:       id,
		Type:     typ,
		Turn:     turn,
		MaxSpeed: 20,
		Width:    3.5,
		CenterLine: &mapv2.Polyline{Nodes: []*geov2.XYPosition{
			{X: 0, Y: 0}, {X: length, Y: 0},
		}},
	})
}

func TestLaneTrafficStats(t *testing.T) {
	l := newTestLane(1, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 100)
	queued := &fakeVehicle{id: 1, v: 0.05, wait: 12}
	moving := &fakeVehicle{id: 2, v: 8, wait: 3}
	// 影子车辆不计入统计
	shadow := &fakeVehicle{id: 3, v: 0, wait: 99, shadow: l}
	l.vehicles.add(&entity.VehicleNode{S: 10, Value: queued})
	l.vehicles.add(&entity.VehicleNode{S: 40, Value: moving})
	l.vehicles.add(&entity.VehicleNode{S: 70, Value: shadow})

	l.prepare()
	l.update()
	l.prepare()

	assert.Equal(t, int32(1), l.QueueCount())
	assert.Equal(t, 15.0, l.WaitingTimeSum())
	// 平滑车速从限速向实际均速靠拢
	assert.Less(t, l.SmoothSpeed(), 20.0)
	assert.Greater(t, l.SmoothSpeed(), 4.025)
}

func TestLaneSmoothSpeedFreeFlow(t *testing.T) {
	l := newTestLane(1, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 100)
	// 无车时按自由流处理，平滑车速保持在限速
	l.prepare()
	l.update()
	l.prepare()
	assert.InDelta(t, 20.0, l.SmoothSpeed(), 1e-9)
}

func TestLanePressure(t *testing.T) {
	pre := newTestLane(1, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 100)
	self := newTestLane(2, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 30)
	suc := newTestLane(3, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 100)
	self.uniquePredecessor = pre
	self.uniqueSuccessor = suc
	pre.successors[self.id] = entity.Connection{Lane: self}
	suc.predecessors[self.id] = entity.Connection{Lane: self}

	for i := int32(0); i < 4; i++ {
		pre.vehicles.add(&entity.VehicleNode{S: float64(10 + 20*i), Value: &fakeVehicle{id: 10 + i, v: 1}})
	}
	suc.vehicles.add(&entity.VehicleNode{S: 50, Value: &fakeVehicle{id: 20, v: 1}})
	pre.prepare()
	suc.prepare()

	// 压力 = 前驱密度 - 后继密度 = 4/100 - 1/100
	assert.InDelta(t, 0.03, self.GetPressure(), 1e-9)
}

func TestLanePressureExcludedLanes(t *testing.T) {
	walk := newTestLane(1, mapv2.LaneType_LANE_TYPE_WALKING, mapv2.LaneTurn_LANE_TURN_UNSPECIFIED, 30)
	assert.Equal(t, 0.0, walk.GetPressure())

	right := newTestLane(2, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_RIGHT, 30)
	assert.Equal(t, 0.0, right.GetPressure())
	assert.True(t, right.IsRightTurnDrivingLane())
}

func TestQueueSumCountsRoadDrivingLanes(t *testing.T) {
	m := NewManager(&fakeContext{clk: &clock.Clock{DT: 1}})
	roadLane := newTestLane(1, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 100)
	roadLane.parentRoad = &fakeRoad{}
	junctionLane := newTestLane(2, mapv2.LaneType_LANE_TYPE_DRIVING, mapv2.LaneTurn_LANE_TURN_STRAIGHT, 30)
	walkLane := newTestLane(3, mapv2.LaneType_LANE_TYPE_WALKING, mapv2.LaneTurn_LANE_TURN_UNSPECIFIED, 30)
	walkLane.parentRoad = &fakeRoad{}
	m.lanes = []*Lane{roadLane, junctionLane, walkLane}

	roadLane.queueCount = 3
	junctionLane.queueCount = 2
	// 只统计道路上的行车道
	assert.Equal(t, int32(3), m.QueueSum())
}
