package domain

import "fmt"

// ShapeKind selects the plan footprint of a diorama.
type ShapeKind string

const (
	ShapeRectangle ShapeKind = "rectangle"
	ShapeEllipse   ShapeKind = "ellipse"
)

// ParseShapeKind validates a wire value. The empty string defaults to
// rectangle so creation payloads may omit the field.
func ParseShapeKind(s string) (ShapeKind, error) {
	switch ShapeKind(s) {
	case "":
		return ShapeRectangle, nil
	case ShapeRectangle, ShapeEllipse:
		return ShapeKind(s), nil
	default:
		return "", fmt.Errorf("unknown shape %q", s)
	}
}

// Contains reports whether plan coordinates (x, y), measured from the
// footprint center, fall inside the shape with the given half extents.
// The ellipse is inscribed in the rectangle, and its boundary counts as
// inside; a rectangle corner therefore lies strictly outside the ellipse.
func (s ShapeKind) Contains(x, y, halfW, halfH float64) bool {
	switch s {
	case ShapeEllipse:
		nx := x / halfW
		ny := y / halfH
		return nx*nx+ny*ny <= 1
	default:
		return x >= -halfW && x <= halfW && y >= -halfH && y <= halfH
	}
}
