package geo

import "errors"

var ErrInvalidBounds = errors.New("invalid bounds")

// Bounds is a map viewport. It does not handle boxes crossing the antimeridian.
type Bounds struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

func (b Bounds) Validate() error {
	if !ValidCoordinate(b.North, b.East) || !ValidCoordinate(b.South, b.West) {
		return ErrInvalidBounds
	}
	if b.South > b.North || b.West > b.East {
		return ErrInvalidBounds
	}
	return nil
}

func (b Bounds) Center() Point {
	return Point{
		Lat: (b.North + b.South) / 2,
		Lon: (b.East + b.West) / 2,
	}
}

// Contains is inclusive on every edge.
func (b Bounds) Contains(p Point) bool {
	return p.Lat >= b.South && p.Lat <= b.North &&
		p.Lon >= b.West && p.Lon <= b.East
}
