package models

// ShapeKind identifies the drawing primitive a shape represents.
type ShapeKind string

const (
	KindRectangle ShapeKind = "rectangle"
	KindEllipse   ShapeKind = "ellipse"
	KindLine      ShapeKind = "line"
)

// Valid reports whether k is one of the known shape kinds.
func (k ShapeKind) Valid() bool {
	switch k {
	case KindRectangle, KindEllipse, KindLine:
		return true
	}
	return false
}

// Shape is a single drawing primitive. Shapes are immutable once
// created; edits to the board are expressed as whole-list replacement,
// never as in-place mutation of a shape.
type Shape struct {
	ID     string    `json:"id"`   // client-generated ULID
	Kind   ShapeKind `json:"type"` // wire name kept from the original protocol
	X1     float64   `json:"x1"`
	Y1     float64   `json:"y1"`
	X2     float64   `json:"x2"`
	Y2     float64   `json:"y2"`
	Color  string    `json:"color"`  // hex, e.g. "#ff0000"
	UserID string    `json:"userId"` // author
}
