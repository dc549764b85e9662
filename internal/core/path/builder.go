package path

import (
	"fmt"
	"math"

	"github.com/crossflow/crossflow/internal/core/geometry"
)

const (
	// pathSegments is the discretization of a straight or arc path.
	pathSegments = 28
	// snapSegments is the short correction appended when a built path does
	// not land on the target lane centerline.
	snapSegments = 4
	// snapToleranceSq: squared distance under which the path end is close
	// enough to the exit point that no correction is appended.
	snapToleranceSq = 1.0
)

// arcSpec places one turn arc: the corner of the intersection footprint the
// arc is centered on (as signs applied to the half-width) and the sweep
// start angle. Rights sweep a quarter turn clockwise on screen (decreasing
// angle), lefts counter-clockwise. The eight entries encode the
// right-hand-traffic convention of the intersection and are hand-mapped per
// origin direction.
type arcSpec struct {
	sx, sy float64
	start  float64
}

var rightArcs = map[geometry.Direction]arcSpec{
	geometry.North: {sx: +1, sy: -1, start: math.Pi},
	geometry.East:  {sx: +1, sy: +1, start: 3 * math.Pi / 2},
	geometry.South: {sx: -1, sy: +1, start: 0},
	geometry.West:  {sx: -1, sy: -1, start: math.Pi / 2},
}

var leftArcs = map[geometry.Direction]arcSpec{
	geometry.North: {sx: -1, sy: -1, start: 0},
	geometry.East:  {sx: +1, sy: -1, start: math.Pi / 2},
	geometry.South: {sx: +1, sy: +1, start: math.Pi},
	geometry.West:  {sx: -1, sy: +1, start: 3 * math.Pi / 2},
}

// Builder synthesizes turn paths through one intersection grid.
type Builder struct {
	grid geometry.Grid
}

func NewBuilder(grid geometry.Grid) Builder {
	return Builder{grid: grid}
}

// ExitLane is the lane a route terminates in: turns land in a fixed lane
// (rights in the right lane, lefts in the left), straight travel keeps the
// lane it arrived in.
func ExitLane(turn geometry.TurnType, lane geometry.Lane) geometry.Lane {
	switch turn {
	case geometry.TurnRight:
		return geometry.LaneRight
	case geometry.TurnLeft:
		return geometry.LaneLeft
	default:
		return lane
	}
}

// Build constructs the path profile for a route. Straight routes run
// entry-to-exit in the given lane; turns follow the corner arc for the
// origin direction and land in their fixed exit lane. The built path always
// terminates exactly on the exit lane centerline (see snapToExit).
func (b Builder) Build(route geometry.Route, lane geometry.Lane) (*Profile, error) {
	turn := geometry.ClassifyTurn(route.From, route.To)
	if turn == geometry.TurnNone {
		return nil, fmt.Errorf("%w: %s -> %s", geometry.ErrInvalidRoute, route.From, route.To)
	}
	if !lane.Valid() {
		return nil, fmt.Errorf("%w: %d", geometry.ErrInvalidLane, lane)
	}

	var points []geometry.Point
	var err error
	switch turn {
	case geometry.TurnStraight:
		points, err = b.straight(route, lane)
	default:
		points, err = b.arc(route.From, turn)
	}
	if err != nil {
		return nil, err
	}

	exit, err := b.grid.ExitPoint(route.To, ExitLane(turn, lane))
	if err != nil {
		return nil, err
	}
	points = snapToExit(points, exit)

	return NewProfile(points)
}

func (b Builder) straight(route geometry.Route, lane geometry.Lane) ([]geometry.Point, error) {
	from, err := b.grid.EntryPoint(route.From, lane)
	if err != nil {
		return nil, err
	}
	to, err := b.grid.ExitPoint(route.To, lane)
	if err != nil {
		return nil, err
	}
	points := make([]geometry.Point, 0, pathSegments+1)
	for i := 0; i <= pathSegments; i++ {
		t := float64(i) / pathSegments
		points = append(points, geometry.Point{
			X: from.X + (to.X-from.X)*t,
			Y: from.Y + (to.Y-from.Y)*t,
		})
	}
	return points, nil
}

func (b Builder) arc(from geometry.Direction, turn geometry.TurnType) ([]geometry.Point, error) {
	half := b.grid.Half()
	var spec arcSpec
	var radius, sweep float64
	switch turn {
	case geometry.TurnRight:
		spec = rightArcs[from]
		radius = half - b.grid.LaneWidth/2
		sweep = -math.Pi / 2
	case geometry.TurnLeft:
		spec = leftArcs[from]
		radius = half + b.grid.LaneWidth/2
		sweep = math.Pi / 2
	default:
		return nil, fmt.Errorf("%w: not a turn", geometry.ErrInvalidRoute)
	}

	center := b.grid.Center()
	corner := geometry.Point{X: center.X + spec.sx*half, Y: center.Y + spec.sy*half}
	points := make([]geometry.Point, 0, pathSegments+1)
	for i := 0; i <= pathSegments; i++ {
		theta := spec.start + sweep*float64(i)/pathSegments
		points = append(points, geometry.Point{
			X: corner.X + radius*math.Cos(theta),
			Y: corner.Y + radius*math.Sin(theta),
		})
	}
	return points, nil
}

// snapToExit appends a short straight correction so the path lands exactly
// on the target lane centerline. Without it the downstream end-of-path
// heading would be taken off a lane the vehicle is not actually in, and the
// vehicle would visibly jump when the path unbinds. The seam point is
// skipped so consecutive points never coincide.
func snapToExit(points []geometry.Point, exit geometry.Point) []geometry.Point {
	last := points[len(points)-1]
	if last.DistSq(exit) <= snapToleranceSq {
		return points
	}
	for i := 1; i <= snapSegments; i++ {
		t := float64(i) / snapSegments
		points = append(points, geometry.Point{
			X: last.X + (exit.X-last.X)*t,
			Y: last.Y + (exit.Y-last.Y)*t,
		})
	}
	return points
}
