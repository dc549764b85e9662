package path

import (
	"errors"

	"github.com/crossflow/crossflow/internal/core/geometry"
)

var ErrDegeneratePath = errors.New("path needs at least two points")

// Profile is a built path: the discretized polyline, its cumulative
// arc-length table and the total length. Lens is parallel to Points with
// Lens[0] == 0 and Lens[len-1] == Total. A Profile is never mutated after
// Cumulative fills it in; rebuilding a path produces a fresh Profile.
type Profile struct {
	Points []geometry.Point
	Lens   []float64
	Total  float64
}

// NewProfile wraps a polyline and computes its cumulative-length table.
func NewProfile(points []geometry.Point) (*Profile, error) {
	if len(points) < 2 {
		return nil, ErrDegeneratePath
	}
	p := &Profile{Points: points}
	p.Lens, p.Total = Cumulative(points)
	return p, nil
}

// Cumulative returns the running arc-length table for a polyline and its
// total length.
func Cumulative(points []geometry.Point) ([]float64, float64) {
	lens := make([]float64, len(points))
	total := 0.0
	for i := 1; i < len(points); i++ {
		total += points[i-1].Dist(points[i])
		lens[i] = total
	}
	return lens, total
}

// End returns the final path point.
func (p *Profile) End() geometry.Point {
	return p.Points[len(p.Points)-1]
}

// EndHeading is the direction of the last segment, which a vehicle keeps
// after its path unbinds.
func (p *Profile) EndHeading() float64 {
	n := len(p.Points)
	return p.Points[n-2].HeadingTo(p.Points[n-1])
}

// PositionAt locates the point dist units along the path and the heading of
// the segment it falls in. dist is clamped to [0, Total].
func (p *Profile) PositionAt(dist float64) (geometry.Point, float64) {
	if dist <= 0 {
		return p.Points[0], p.Points[0].HeadingTo(p.Points[1])
	}
	if dist >= p.Total {
		return p.End(), p.EndHeading()
	}
	// First segment whose cumulative length brackets dist.
	i := 1
	for i < len(p.Lens) && p.Lens[i] < dist {
		i++
	}
	a, b := p.Points[i-1], p.Points[i]
	seg := p.Lens[i] - p.Lens[i-1]
	t := 0.0
	if seg > 0 {
		t = (dist - p.Lens[i-1]) / seg
	}
	pos := geometry.Point{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
	}
	return pos, a.HeadingTo(b)
}

// Frac converts an absolute distance to fractional progress in [0,1].
func (p *Profile) Frac(dist float64) float64 {
	if p.Total <= 0 {
		return 1
	}
	f := dist / p.Total
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
