package geospatial

import "math"

// TileSize is the pixel edge length of a standard slippy-map raster tile.
const TileSize = 256

// minOptimalZoom is the floor applied by OptimalZoom; below this the tile
// pyramid is too coarse to carry useful relief for a diorama footprint.
const minOptimalZoom = 8

// TileForGeo returns the slippy-map tile indices containing the given
// coordinate at the given zoom, using the standard Web-Mercator tiling.
// Latitudes outside the Web-Mercator domain (~±85.05°) produce defined but
// meaningless indices; callers are expected to stay inside it.
func TileForGeo(lat, lon float64, zoom int) (x, y int) {
	fx, fy := tileFloat(lat, lon, zoom)
	return int(math.Floor(fx)), int(math.Floor(fy))
}

// PixelForGeo returns the unfloored global pixel position of a coordinate at
// the given zoom. Used for sub-tile crop alignment against a composited
// mosaic: the fractional part locates the coordinate inside its tile.
func PixelForGeo(lat, lon float64, zoom int) (px, py float64) {
	fx, fy := tileFloat(lat, lon, zoom)
	return fx * TileSize, fy * TileSize
}

// TileNW returns the latitude/longitude of the north-west corner of a tile.
func TileNW(zoom, x, y int) (lat, lon float64) {
	n := math.Exp2(float64(zoom))
	lon = float64(x)/n*360 - 180
	lat = math.Atan(math.Sinh(math.Pi*(1-2*float64(y)/n))) * 180 / math.Pi
	return lat, lon
}

func tileFloat(lat, lon float64, zoom int) (x, y float64) {
	latRad := toRad(lat)
	n := math.Exp2(float64(zoom))
	x = (lon + 180) / 360 * n
	y = (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

// OptimalZoom picks the zoom at which the larger of the two degree spans maps
// to approximately targetResolution pixels, clamped to [8, maxZoom]. A zero
// span degenerates to maxZoom rather than dividing by zero.
func OptimalZoom(latSpan, lonSpan float64, targetResolution, maxZoom int) int {
	maxSpan := math.Max(latSpan, lonSpan)
	if maxSpan <= 0 {
		return maxZoom
	}
	z := int(math.Floor(math.Log2(float64(targetResolution) * 360 / (TileSize * maxSpan))))
	if z < minOptimalZoom {
		z = minOptimalZoom
	}
	if z > maxZoom {
		z = maxZoom
	}
	return z
}
