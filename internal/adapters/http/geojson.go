package http

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tbuseth/maquette/internal/core/domain"
)

// contoursToGeoJSON reprojects plan-space contour work into geographic
// coordinates: one LineString feature per segment, one Point feature per
// label anchor. Coordinates are [lon, lat] per the GeoJSON spec.
func contoursToGeoJSON(d *domain.Diorama, set *domain.ContourSet) ([]byte, error) {
	fc := geojson.NewFeatureCollection()

	for _, level := range set.Levels {
		for _, line := range level.Polylines {
			ls := make(orb.LineString, 0, len(line))
			for _, p := range line {
				g, ok := d.PlanToGeo(p.X, p.Y)
				if !ok {
					continue
				}
				ls = append(ls, orb.Point{g.Lon, g.Lat})
			}
			if len(ls) < 2 {
				continue
			}
			f := geojson.NewFeature(ls)
			f.Properties["elevation"] = level.Elevation
			f.Properties["major"] = level.IsMajor
			fc.Append(f)
		}
	}

	for _, label := range set.Labels {
		g, ok := d.PlanToGeo(label.At.X, label.At.Y)
		if !ok {
			continue
		}
		f := geojson.NewFeature(orb.Point{g.Lon, g.Lat})
		f.Properties["elevation"] = label.Elevation
		f.Properties["kind"] = "label"
		fc.Append(f)
	}

	return fc.MarshalJSON()
}
