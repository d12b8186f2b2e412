package mapgen

import (
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/config"
	"github.com/tsinghua-fib-lab/lightrl-sim-oss/utils/input"
)

// normalizeGrid 校验网格配置并补全默认值
func normalizeGrid(grid config.GeneratorGrid) config.GeneratorGrid {
	if grid.Rows <= 0 {
		grid.Rows = 1
	}
	if grid.Cols <= 0 {
		grid.Cols = 1
	}
	if grid.RoadLength <= 0 {
		grid.RoadLength = 300
	}
	if grid.RoadLength < 4*aoiSide {
		log.Panicf("generator grid: road_length %v is too short", grid.RoadLength)
	}
	if grid.LanesPerRoad <= 0 {
		grid.LanesPerRoad = 1
	}
	if grid.MaxSpeed <= 0 {
		grid.MaxSpeed = 60 / 3.6
	}
	if grid.Phases == 0 {
		grid.Phases = 4
	}
	if grid.Phases != 2 && grid.Phases != 4 {
		log.Panicf("generator grid: phases must be 2 or 4, got %d", grid.Phases)
	}
	if grid.PhaseTime <= 0 {
		grid.PhaseTime = 30
	}
	return grid
}

// Build 根据生成器配置构造路网与车辆需求
// 功能：生成网格路网与泊松到达的driving人员，代替外部地图与人员输入
// 参数：gen-生成器配置，step-模拟时间配置
// 返回：与文件/数据库输入同构的输入数据
func Build(gen *config.Generator, step config.ControlStep) *input.Input {
	grid := normalizeGrid(gen.Grid)
	net := newGridBuilder(grid).build()
	persons := buildDemand(net, gen.Demand, step)
	log.Infof(
		"generate grid %dx%d: %d lanes, %d roads, %d junctions, %d aois, %d persons",
		grid.Rows, grid.Cols,
		len(net.Map.Lanes), len(net.Map.Roads), len(net.Map.Junctions), len(net.Map.Aois),
		len(persons.Persons),
	)
	return &input.Input{Map: net.Map, Persons: persons}
}
