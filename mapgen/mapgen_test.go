package mapgen_test

import (
	"testing"

	mapv2 "git.fiblab.net/sim/protos/v2/go/city/map/v2"
	tripv2 "git.fiblab.net/sim/protos/v2/go/city/trip/v2"
	"github.com/stretchr/testify/assert"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/mapgen"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
)

var testStep = config.ControlStep{Start: 0, Total: 600, Interval: 1}

func lanesByID(m *mapv2.Map) map[int32]*mapv2.Lane {
	lanes := make(map[int32]*mapv2.Lane)
	for _, l := range m.Lanes {
		lanes[l.Id] = l
	}
	return lanes
}

func roadByName(m *mapv2.Map, name string) *mapv2.Road {
	for _, r := range m.Roads {
		if r.Name == name {
			return r
		}
	}
	return nil
}

func TestGridStructure(t *testing.T) {
	in := mapgen.Build(&config.Generator{
		Grid: config.GeneratorGrid{Rows: 2, Cols: 2, LanesPerRoad: 2},
	}, testStep)
	m := in.Map

	// 2x2路口，横向街道2*3条，纵向3*2条，每条街道双向两条道路
	assert.Len(t, m.Junctions, 4)
	assert.Len(t, m.Roads, 24)
	// 每条道路一个AOI
	assert.Len(t, m.Aois, 24)

	lanes := lanesByID(m)
	seen := make(map[int32]bool)
	for _, l := range m.Lanes {
		assert.False(t, seen[l.Id], "duplicated lane id %d", l.Id)
		seen[l.Id] = true
		assert.Greater(t, l.Length, .0)
		assert.Len(t, l.CenterLine.Nodes, 2)
	}

	for _, j := range m.Junctions {
		for _, id := range j.LaneIds {
			l := lanes[id]
			assert.NotNil(t, l)
			switch l.Type {
			case mapv2.LaneType_LANE_TYPE_DRIVING:
				// 每条转向车道正好连接一条上游车道和一条下游车道
				assert.Len(t, l.Predecessors, 1)
				assert.Len(t, l.Successors, 1)
				pre := lanes[l.Predecessors[0].Id]
				succ := lanes[l.Successors[0].Id]
				assert.Equal(t, mapv2.LaneType_LANE_TYPE_DRIVING, pre.Type)
				assert.Equal(t, mapv2.LaneType_LANE_TYPE_DRIVING, succ.Type)
			case mapv2.LaneType_LANE_TYPE_WALKING:
				assert.Empty(t, l.Predecessors)
				assert.Empty(t, l.Successors)
			default:
				t.Fatalf("unexpected lane type %v in junction %d", l.Type, j.Id)
			}
		}
		// 车道组引用的车道都在路口内
		inJunction := make(map[int32]bool)
		for _, id := range j.LaneIds {
			inJunction[id] = true
		}
		for _, g := range j.DrivingLaneGroups {
			assert.NotEmpty(t, g.LaneIds)
			for _, id := range g.LaneIds {
				assert.True(t, inJunction[id])
			}
		}
	}

	// AOI通过所在道路的最右车道接入
	aoiGates := make(map[int32]bool)
	for _, a := range m.Aois {
		assert.Len(t, a.DrivingPositions, 1)
		gate := a.DrivingPositions[0]
		l := lanes[gate.LaneId]
		assert.NotNil(t, l)
		assert.Greater(t, gate.S, .0)
		assert.Less(t, gate.S, l.Length)
		aoiGates[gate.LaneId] = true
		// 边界首尾闭合
		first := a.Positions[0]
		last := a.Positions[len(a.Positions)-1]
		assert.Equal(t, first.X, last.X)
		assert.Equal(t, first.Y, last.Y)
	}
	for _, r := range m.Roads {
		assert.True(t, aoiGates[r.LaneIds[len(r.LaneIds)-1]], "road %d has no aoi gate", r.Id)
	}
}

func TestGridPhases(t *testing.T) {
	for _, phaseCount := range []int32{2, 4} {
		in := mapgen.Build(&config.Generator{
			Grid: config.GeneratorGrid{Rows: 1, Cols: 1, Phases: phaseCount},
		}, testStep)
		m := in.Map
		lanes := lanesByID(m)
		for _, j := range m.Junctions {
			assert.Len(t, j.Phases, int(phaseCount))
			greenCount := make([]int, len(j.LaneIds))
			for _, p := range j.Phases {
				assert.Len(t, p.States, len(j.LaneIds))
				for i, s := range p.States {
					if s == mapv2.LightState_LIGHT_STATE_GREEN {
						greenCount[i]++
					}
				}
			}
			// 每条车道在相位循环中正好放行一次
			for i, id := range j.LaneIds {
				assert.Equalf(t, 1, greenCount[i], "lane %d (%v) green count", id, lanes[id].Turn)
			}
		}
	}
}

func TestGridFixedProgram(t *testing.T) {
	in := mapgen.Build(&config.Generator{
		Grid: config.GeneratorGrid{Rows: 1, Cols: 1, Phases: 2, FixedProgram: true, PhaseTime: 20},
	}, testStep)
	j := in.Map.Junctions[0]
	tl := j.FixedProgram
	assert.NotNil(t, tl)
	assert.Equal(t, j.Id, tl.JunctionId)
	// 2个绿灯相位，各带一个黄灯过渡相位
	assert.Len(t, tl.Phases, 4)
	assert.Equal(t, 20.0, tl.Phases[0].Duration)
	assert.Equal(t, 3.0, tl.Phases[1].Duration)
	for i, p := range tl.Phases {
		assert.Len(t, p.States, len(j.LaneIds))
		if i%2 == 0 {
			continue
		}
		// 黄灯相位：上一相位的绿灯在下一相位不保持时变为黄灯
		prev := tl.Phases[i-1].States
		next := tl.Phases[(i+1)%len(tl.Phases)].States
		for li, s := range p.States {
			switch {
			case prev[li] == mapv2.LightState_LIGHT_STATE_GREEN && next[li] == mapv2.LightState_LIGHT_STATE_GREEN:
				assert.Equal(t, mapv2.LightState_LIGHT_STATE_GREEN, s)
			case prev[li] == mapv2.LightState_LIGHT_STATE_GREEN:
				assert.Equal(t, mapv2.LightState_LIGHT_STATE_YELLOW, s)
			default:
				assert.Equal(t, mapv2.LightState_LIGHT_STATE_RED, s)
			}
		}
	}
}

func TestDemandExplicitFlow(t *testing.T) {
	gen := &config.Generator{
		Grid: config.GeneratorGrid{Rows: 1, Cols: 1},
	}
	in := mapgen.Build(gen, testStep)
	from := roadByName(in.Map, "street r0 s0 eastbound")
	to := roadByName(in.Map, "street r0 s1 eastbound")
	assert.NotNil(t, from)
	assert.NotNil(t, to)

	gen.Demand = config.GeneratorDemand{
		Flows: []config.GeneratorFlow{{
			FromRoad: from.Id, ToRoad: to.Id,
			Rate: 0.2, StartTime: 0, EndTime: 300,
		}},
		Seed: 43,
	}
	in = mapgen.Build(gen, testStep)
	assert.NotEmpty(t, in.Persons.Persons)
	last := .0
	for _, p := range in.Persons.Persons {
		assert.NotNil(t, p.Home.AoiPosition)
		assert.NotNil(t, p.VehicleAttribute)
		assert.Len(t, p.Schedules, 1)
		s := p.Schedules[0]
		assert.Len(t, s.Trips, 1)
		assert.Equal(t, int32(1), s.LoopCount)
		trip := s.Trips[0]
		assert.Equal(t, tripv2.TripMode_TRIP_MODE_DRIVE_ONLY, trip.Mode)
		assert.NotNil(t, trip.End.AoiPosition)
		// 同一流量的发车时刻单调递增且在时间窗内
		assert.Greater(t, *s.DepartureTime, last)
		assert.Less(t, *s.DepartureTime, 300.0)
		last = *s.DepartureTime
	}
}

func TestDemandUnreachableFlowPanics(t *testing.T) {
	gen := &config.Generator{
		Grid: config.GeneratorGrid{Rows: 1, Cols: 1},
	}
	in := mapgen.Build(gen, testStep)
	// 掉头流量：进入路口的道路与反向驶出的道路之间没有转向车道
	from := roadByName(in.Map, "street r0 s0 eastbound")
	to := roadByName(in.Map, "street r0 s0 westbound")
	gen.Demand = config.GeneratorDemand{
		Flows: []config.GeneratorFlow{{FromRoad: from.Id, ToRoad: to.Id, Rate: 0.1}},
	}
	assert.Panics(t, func() { mapgen.Build(gen, testStep) })
}

func TestDemandRandomODDeterminism(t *testing.T) {
	gen := &config.Generator{
		Grid: config.GeneratorGrid{Rows: 2, Cols: 2},
		Demand: config.GeneratorDemand{
			Flows: []config.GeneratorFlow{{Rate: 0.5, EndTime: 200}},
			Seed:  7,
		},
	}
	first := mapgen.Build(gen, testStep)
	second := mapgen.Build(gen, testStep)
	assert.NotEmpty(t, first.Persons.Persons)
	assert.Equal(t, len(first.Persons.Persons), len(second.Persons.Persons))
	for i, p := range first.Persons.Persons {
		q := second.Persons.Persons[i]
		assert.Equal(t, p.Id, q.Id)
		assert.Equal(t, p.Home.AoiPosition.AoiId, q.Home.AoiPosition.AoiId)
		assert.Equal(t, p.Schedules[0].Trips[0].End.AoiPosition.AoiId,
			q.Schedules[0].Trips[0].End.AoiPosition.AoiId)
		assert.Equal(t, *p.Schedules[0].DepartureTime, *q.Schedules[0].DepartureTime)
		// 起终点不重合
		assert.NotEqual(t, p.Home.AoiPosition.AoiId, p.Schedules[0].Trips[0].End.AoiPosition.AoiId)
	}
}
