package geometry

import "math"

// Direction identifies the side of the canvas a vehicle enters from, or the
// side it leaves through. The cyclic order North→East→South→West defines
// turn classification: the adjacent clockwise side is a right turn, the
// adjacent counter-clockwise side a left turn, the opposite side straight.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists all four cardinal directions in cyclic order.
var Directions = [4]Direction{North, East, South, West}

func (d Direction) Valid() bool {
	return d <= West
}

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	default:
		return "unknown"
	}
}

// Opposite returns the side across the intersection.
func (d Direction) Opposite() Direction {
	return Direction((uint8(d) + 2) % 4)
}

// Heading returns the travel heading, in radians, of a vehicle that entered
// from this side. Canvas coordinates: x grows right, y grows down, so a
// vehicle from the north side travels at π/2 (down-screen).
func (d Direction) Heading() float64 {
	switch d {
	case North:
		return math.Pi / 2
	case East:
		return math.Pi
	case South:
		return -math.Pi / 2
	default:
		return 0
	}
}

// unit returns the inbound travel unit vector for d.
func (d Direction) unit() Point {
	switch d {
	case North:
		return Point{X: 0, Y: 1}
	case East:
		return Point{X: -1, Y: 0}
	case South:
		return Point{X: 0, Y: -1}
	default:
		return Point{X: 1, Y: 0}
	}
}

// Lane is the lane index relative to the direction of travel: 0 is the left
// lane, 1 the right lane. Lane centerlines sit half a lane width either side
// of the road centerline.
type Lane int

const (
	LaneLeft  Lane = 0
	LaneRight Lane = 1
)

func (l Lane) Valid() bool {
	return l == LaneLeft || l == LaneRight
}

// TurnType classifies a route through the intersection.
type TurnType uint8

const (
	TurnNone TurnType = iota
	TurnLeft
	TurnRight
	TurnStraight
)

func (t TurnType) String() string {
	switch t {
	case TurnLeft:
		return "left"
	case TurnRight:
		return "right"
	case TurnStraight:
		return "straight"
	default:
		return "none"
	}
}

// Route is an origin/destination pair of canvas sides.
type Route struct {
	From Direction `json:"from"`
	To   Direction `json:"to"`
}

func (r Route) Valid() bool {
	return r.From.Valid() && r.To.Valid() && r.From != r.To
}

// ClassifyTurn maps a (from, to) pair onto a turn type. The adjacent
// clockwise side (N→E, E→S, S→W, W→N) is a right turn, the adjacent
// counter-clockwise side a left turn, the opposite side straight. from==to
// yields TurnNone; such a route is never driven.
func ClassifyTurn(from, to Direction) TurnType {
	if !from.Valid() || !to.Valid() || from == to {
		return TurnNone
	}
	switch to {
	case Direction((uint8(from) + 1) % 4):
		return TurnRight
	case Direction((uint8(from) + 3) % 4):
		return TurnLeft
	default:
		return TurnStraight
	}
}

// Point is a position on the canvas plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Dist(o Point) float64 {
	return math.Hypot(o.X-p.X, o.Y-p.Y)
}

func (p Point) DistSq(o Point) float64 {
	dx, dy := o.X-p.X, o.Y-p.Y
	return dx*dx + dy*dy
}

// HeadingTo returns the angle of the segment p→o.
func (p Point) HeadingTo(o Point) float64 {
	return math.Atan2(o.Y-p.Y, o.X-p.X)
}
