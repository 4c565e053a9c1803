package usecases

import (
	"fmt"
	"math"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// maxContourLevels bounds how many elevation levels one extraction may
// produce; a pathological interval against a deep relief range fails
// instead of producing megabytes of line work.
const maxContourLevels = 512

// ContourService extracts isolines from elevation grids via marching
// squares, in the same plan coordinates the mesh builder uses.
type ContourService struct{}

// NewContourService creates a new ContourService.
func NewContourService() *ContourService { return &ContourService{} }

// Extract walks every grid cell at every interval level crossing the
// grid's height range. Output segments are unstitched two-point polylines;
// segments with either endpoint outside the footprint shape are dropped.
// Saddle cells resolve against the mean of their four corners.
func (s *ContourService) Extract(grid *domain.ElevationGrid, shape domain.ShapeKind, set domain.TerrainSettings) (*domain.ContourSet, error) {
	interval := set.ContourInterval
	if interval <= 0 {
		return nil, fmt.Errorf("contour interval must be positive, got %v", interval)
	}
	majorEvery := set.MajorEvery
	if majorEvery <= 0 {
		majorEvery = 5
	}
	w, h := grid.Width, grid.Height
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("grid %dx%d too small for contours", w, h)
	}

	kFirst := int(math.Ceil(grid.MinHeight / interval))
	kLast := int(math.Floor(grid.MaxHeight / interval))
	if kLast-kFirst+1 > maxContourLevels {
		return nil, fmt.Errorf("interval %v yields %d levels over range [%v, %v], max %d",
			interval, kLast-kFirst+1, grid.MinHeight, grid.MaxHeight, maxContourLevels)
	}

	half := set.PlanSize / 2
	stepX := set.PlanSize / float64(w-1)
	stepY := set.PlanSize / float64(h-1)
	planX := func(c float64) float64 { return -half + c*stepX }
	planY := func(r float64) float64 { return half - r*stepY }

	cs := &domain.ContourSet{
		Interval:      interval,
		MajorInterval: interval * float64(majorEvery),
	}

	for k := kFirst; k <= kLast; k++ {
		level := float64(k) * interval
		lv := domain.ContourLevel{
			Elevation: level,
			IsMajor:   mod(k, majorEvery) == 0,
		}

		for r := 0; r < h-1; r++ {
			for c := 0; c < w-1; c++ {
				tl := grid.At(r, c)
				tr := grid.At(r, c+1)
				br := grid.At(r+1, c+1)
				bl := grid.At(r+1, c)

				idx := 0
				if tl >= level {
					idx |= 8
				}
				if tr >= level {
					idx |= 4
				}
				if br >= level {
					idx |= 2
				}
				if bl >= level {
					idx |= 1
				}
				if idx == 0 || idx == 15 {
					continue
				}

				// Edge crossing points in plan coordinates.
				top := func() domain.PlanPoint {
					return domain.PlanPoint{X: planX(float64(c) + interp(level, tl, tr)), Y: planY(float64(r))}
				}
				bottom := func() domain.PlanPoint {
					return domain.PlanPoint{X: planX(float64(c) + interp(level, bl, br)), Y: planY(float64(r + 1))}
				}
				left := func() domain.PlanPoint {
					return domain.PlanPoint{X: planX(float64(c)), Y: planY(float64(r) + interp(level, tl, bl))}
				}
				right := func() domain.PlanPoint {
					return domain.PlanPoint{X: planX(float64(c + 1)), Y: planY(float64(r) + interp(level, tr, br))}
				}

				emit := func(a, b domain.PlanPoint) {
					if !shape.Contains(a.X, a.Y, half, half) || !shape.Contains(b.X, b.Y, half, half) {
						return
					}
					lv.Polylines = append(lv.Polylines, []domain.PlanPoint{a, b})
				}

				switch idx {
				case 1, 14:
					emit(left(), bottom())
				case 2, 13:
					emit(bottom(), right())
				case 3, 12:
					emit(left(), right())
				case 4, 11:
					emit(top(), right())
				case 6, 9:
					emit(top(), bottom())
				case 7, 8:
					emit(top(), left())
				case 5:
					// Saddle, high corners NE+SW. The cell mean decides
					// whether the high corners connect through the middle.
					if (tl+tr+br+bl)/4 >= level {
						emit(top(), left())
						emit(right(), bottom())
					} else {
						emit(top(), right())
						emit(left(), bottom())
					}
				case 10:
					// Saddle, high corners NW+SE.
					if (tl+tr+br+bl)/4 >= level {
						emit(top(), right())
						emit(left(), bottom())
					} else {
						emit(top(), left())
						emit(bottom(), right())
					}
				}
			}
		}

		if len(lv.Polylines) > 0 {
			cs.Levels = append(cs.Levels, lv)
		}
	}

	s.placeLabels(cs, set.MaxLabels)
	return cs, nil
}

// interp returns the fractional position of level between v1 and v2.
// Near-flat edges fall back to the midpoint instead of dividing by zero.
func interp(level, v1, v2 float64) float64 {
	d := v2 - v1
	if math.Abs(d) < 1e-6 {
		return 0.5
	}
	t := (level - v1) / d
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// placeLabels anchors one elevation annotation per major level, at the
// midpoint of the level's middle segment, up to maxLabels total.
func (s *ContourService) placeLabels(cs *domain.ContourSet, maxLabels int) {
	if maxLabels <= 0 {
		maxLabels = 24
	}
	for _, lv := range cs.Levels {
		if !lv.IsMajor || len(lv.Polylines) == 0 {
			continue
		}
		if len(cs.Labels) >= maxLabels {
			return
		}
		seg := lv.Polylines[len(lv.Polylines)/2]
		cs.Labels = append(cs.Labels, domain.ContourLabel{
			Elevation: lv.Elevation,
			At: domain.PlanPoint{
				X: (seg[0].X + seg[1].X) / 2,
				Y: (seg[0].Y + seg[1].Y) / 2,
			},
		})
	}
}

// mod is a modulo that stays non-negative for negative level indices
// (below-sea-level terrain).
func mod(k, n int) int {
	return ((k % n) + n) % n
}
