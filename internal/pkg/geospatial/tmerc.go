package geospatial

import "math"

// WGS-84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	tmK0   = 0.9996 // UTM central scale factor
)

// Dimensions holds the measured real-world extent of a bounding box.
type Dimensions struct {
	WidthMeters  float64 `json:"width_meters"`
	HeightMeters float64 `json:"height_meters"`
}

// MinDimension returns the smaller of the two extents. Footprint-relative
// settings (skirt depth, LOD distance bands) are expressed against it.
func (d Dimensions) MinDimension() float64 {
	return math.Min(d.WidthMeters, d.HeightMeters)
}

// ZoneFor returns the UTM longitude zone (1–60) containing a longitude.
func ZoneFor(lon float64) int {
	zone := int(math.Floor((lon+180)/6)) + 1
	if zone < 1 {
		zone = 1
	}
	if zone > 60 {
		zone = 60
	}
	return zone
}

// ProjectTM converts a geographic coordinate to transverse-Mercator
// easting/northing in meters for the given UTM zone, using the usual
// series expansion on the WGS-84 ellipsoid. Conformal, so Euclidean
// distances between nearby projected points are true ground distances.
func ProjectTM(lat, lon float64, zone int) (easting, northing float64) {
	e2 := wgs84F * (2 - wgs84F)
	ep2 := e2 / (1 - e2)
	lon0 := toRad(float64((zone-1)*6 - 180 + 3))

	phi := toRad(lat)
	lam := toRad(lon)

	sinPhi := math.Sin(phi)
	cosPhi := math.Cos(phi)
	tanPhi := math.Tan(phi)

	n := wgs84A / math.Sqrt(1-e2*sinPhi*sinPhi)
	t := tanPhi * tanPhi
	c := ep2 * cosPhi * cosPhi
	a := (lam - lon0) * cosPhi

	m := wgs84A * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*phi -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*phi) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*phi) -
		(35*e2*e2*e2/3072)*math.Sin(6*phi))

	easting = tmK0*n*(a+(1-t+c)*a*a*a/6+
		(5-18*t+t*t+72*c-58*ep2)*a*a*a*a*a/120) + 500000

	northing = tmK0 * (m + n*tanPhi*(a*a/2+
		(5-t+9*c+4*c*c)*a*a*a*a/24+
		(61-58*t+t*t+600*c-330*ep2)*a*a*a*a*a*a/720))
	if lat < 0 {
		northing += 10000000
	}
	return easting, northing
}

// MeasureBounds projects the midpoints of the four edges of a bounding box
// into the transverse-Mercator zone of its center and measures the
// east–west and north–south extents between them.
func MeasureBounds(latMin, lonMin, latMax, lonMax float64) Dimensions {
	latMid := (latMin + latMax) / 2
	lonMid := (lonMin + lonMax) / 2
	zone := ZoneFor(lonMid)

	wx, wy := ProjectTM(latMid, lonMin, zone)
	ex, ey := ProjectTM(latMid, lonMax, zone)
	sx, sy := ProjectTM(latMin, lonMid, zone)
	nx, ny := ProjectTM(latMax, lonMid, zone)

	return Dimensions{
		WidthMeters:  math.Hypot(ex-wx, ey-wy),
		HeightMeters: math.Hypot(nx-sx, ny-sy),
	}
}
