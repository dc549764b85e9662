package geometry

import "fmt"

// Default layout constants, in simulation units (1 unit = 1 canvas pixel).
const (
	DefaultCanvasW   = 800
	DefaultCanvasH   = 600
	DefaultRoadWidth = 100
	DefaultLaneWidth = 25

	// stopLineGap is how far before the intersection boundary the stop
	// line sits.
	stopLineGap = 10
)

// Grid holds the fixed layout of one four-way intersection: two roads of
// RoadWidth crossing at the canvas center. All entry, exit, spawn and
// stop-line coordinates derive from it. Immutable after construction.
type Grid struct {
	CanvasW   float64
	CanvasH   float64
	RoadWidth float64
	LaneWidth float64

	cx, cy float64
	half   float64
}

// NewGrid validates the layout constants and precomputes the center. The
// intersection footprint is the RoadWidth×RoadWidth square where the roads
// overlap.
func NewGrid(canvasW, canvasH, roadWidth, laneWidth float64) (Grid, error) {
	if canvasW <= 0 || canvasH <= 0 {
		return Grid{}, fmt.Errorf("%w: canvas %gx%g", ErrInvalidGrid, canvasW, canvasH)
	}
	if roadWidth <= 0 || laneWidth <= 0 || laneWidth*2 > roadWidth {
		return Grid{}, fmt.Errorf("%w: road %g lane %g", ErrInvalidGrid, roadWidth, laneWidth)
	}
	if roadWidth >= canvasW || roadWidth >= canvasH {
		return Grid{}, fmt.Errorf("%w: road %g exceeds canvas", ErrInvalidGrid, roadWidth)
	}
	return Grid{
		CanvasW:   canvasW,
		CanvasH:   canvasH,
		RoadWidth: roadWidth,
		LaneWidth: laneWidth,
		cx:        canvasW / 2,
		cy:        canvasH / 2,
		half:      roadWidth / 2,
	}, nil
}

// DefaultGrid returns the standard 800x600 layout.
func DefaultGrid() Grid {
	g, err := NewGrid(DefaultCanvasW, DefaultCanvasH, DefaultRoadWidth, DefaultLaneWidth)
	if err != nil {
		panic(err)
	}
	return g
}

func (g Grid) Center() Point { return Point{X: g.cx, Y: g.cy} }

// Half is the half-width of the intersection footprint, the quantity turn
// radii derive from.
func (g Grid) Half() float64 { return g.half }

// laneOffset is the signed lateral shift of a lane centerline from the road
// centerline, measured along the driver's right normal.
func (g Grid) laneOffset(lane Lane) float64 {
	if lane == LaneLeft {
		return -g.LaneWidth / 2
	}
	return g.LaneWidth / 2
}

// rightNormal returns the driver's-right unit normal for travel vector u.
// With y growing down, the driver's right of (0,1) (south-bound travel) is
// (-1,0).
func rightNormal(u Point) Point {
	return Point{X: -u.Y, Y: u.X}
}

// EntryPoint is the lane centerline coordinate on the intersection boundary
// for a vehicle approaching from dir.
func (g Grid) EntryPoint(dir Direction, lane Lane) (Point, error) {
	if !dir.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidDirection, dir)
	}
	if !lane.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidLane, lane)
	}
	u := dir.unit()
	n := rightNormal(u)
	off := g.laneOffset(lane)
	return Point{
		X: g.cx - u.X*g.half + n.X*off,
		Y: g.cy - u.Y*g.half + n.Y*off,
	}, nil
}

// ExitPoint is the lane centerline coordinate on the intersection boundary
// for a vehicle leaving toward dir.
func (g Grid) ExitPoint(dir Direction, lane Lane) (Point, error) {
	if !dir.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidDirection, dir)
	}
	if !lane.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidLane, lane)
	}
	// Outbound travel through side dir runs opposite the inbound vector.
	u := dir.unit()
	u = Point{X: -u.X, Y: -u.Y}
	n := rightNormal(u)
	off := g.laneOffset(lane)
	return Point{
		X: g.cx + u.X*g.half + n.X*off,
		Y: g.cy + u.Y*g.half + n.Y*off,
	}, nil
}

// SpawnPoint is where a vehicle from dir materializes: on the canvas edge,
// centered in its lane.
func (g Grid) SpawnPoint(dir Direction, lane Lane) (Point, error) {
	p, err := g.EntryPoint(dir, lane)
	if err != nil {
		return Point{}, err
	}
	switch dir {
	case North:
		p.Y = 0
	case East:
		p.X = g.CanvasW
	case South:
		p.Y = g.CanvasH
	case West:
		p.X = 0
	}
	return p, nil
}

// StopLinePoint is the center of the stop line for traffic from dir, a
// small gap before the intersection boundary.
func (g Grid) StopLinePoint(dir Direction) (Point, error) {
	if !dir.Valid() {
		return Point{}, fmt.Errorf("%w: %d", ErrInvalidDirection, dir)
	}
	u := dir.unit()
	d := g.half + stopLineGap
	return Point{X: g.cx - u.X*d, Y: g.cy - u.Y*d}, nil
}

// DistanceToStop is the signed distance, along the travel axis of dir, from
// p to dir's stop line. Positive while the stop line is still ahead.
func (g Grid) DistanceToStop(dir Direction, p Point) float64 {
	stop, err := g.StopLinePoint(dir)
	if err != nil {
		return 0
	}
	u := dir.unit()
	return (stop.X-p.X)*u.X + (stop.Y-p.Y)*u.Y
}

// DistanceAlong projects o-p onto dir's travel axis: positive when o is
// ahead of p for traffic from dir.
func (g Grid) DistanceAlong(dir Direction, p, o Point) float64 {
	u := dir.unit()
	return (o.X-p.X)*u.X + (o.Y-p.Y)*u.Y
}

// Inside reports whether p lies within the intersection footprint.
func (g Grid) Inside(p Point) bool {
	return p.X >= g.cx-g.half && p.X <= g.cx+g.half &&
		p.Y >= g.cy-g.half && p.Y <= g.cy+g.half
}

// Offscreen reports whether p is more than margin units beyond any canvas
// edge.
func (g Grid) Offscreen(p Point, margin float64) bool {
	return p.X < -margin || p.X > g.CanvasW+margin ||
		p.Y < -margin || p.Y > g.CanvasH+margin
}
