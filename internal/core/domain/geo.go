package domain

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidBounds marks a bounding box that violates the min < max
// invariant. Construction is the only place it can surface; everything
// downstream may assume well-formed bounds.
var ErrInvalidBounds = errors.New("invalid bounds")

// GeoPoint represents a geographic coordinate (WGS 84).
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds represents a geographic bounding box. Immutable once constructed:
// a changed footprint is a new Bounds value, never an edit of an old one.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// NewBounds validates and builds a Bounds. Inverted or degenerate boxes and
// non-finite coordinates fail fast here rather than propagating into tile
// math as NaN indices.
func NewBounds(minLat, minLon, maxLat, maxLon float64) (Bounds, error) {
	for _, v := range [4]float64{minLat, minLon, maxLat, maxLon} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bounds{}, fmt.Errorf("%w: non-finite coordinate", ErrInvalidBounds)
		}
	}
	if minLat >= maxLat {
		return Bounds{}, fmt.Errorf("%w: min_lat %v >= max_lat %v", ErrInvalidBounds, minLat, maxLat)
	}
	if minLon >= maxLon {
		return Bounds{}, fmt.Errorf("%w: min_lon %v >= max_lon %v", ErrInvalidBounds, minLon, maxLon)
	}
	return Bounds{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// LatSpan returns the latitude extent in degrees.
func (b Bounds) LatSpan() float64 { return b.MaxLat - b.MinLat }

// LonSpan returns the longitude extent in degrees.
func (b Bounds) LonSpan() float64 { return b.MaxLon - b.MinLon }

// Center returns the midpoint of the box.
func (b Bounds) Center() GeoPoint {
	return GeoPoint{Lat: (b.MinLat + b.MaxLat) / 2, Lon: (b.MinLon + b.MaxLon) / 2}
}

// TileIndex addresses one slippy-map tile at zoom Z.
type TileIndex struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (t TileIndex) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// TileLayer selects which raster pyramid a tile comes from.
type TileLayer string

const (
	LayerElevation TileLayer = "elevation"
	LayerImagery   TileLayer = "imagery"
)
