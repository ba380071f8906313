package model

import "fmt"

// Location is a pixel coordinate: X is the column, Y is the row.
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Color is an RGB triple with components in [0,255].
type Color struct {
	R int `json:"r"`
	G int `json:"g"`
	B int `json:"b"`
}

func (c Color) Clamp() Color {
	return Color{R: clampChannel(c.R), G: clampChannel(c.G), B: clampChannel(c.B)}
}

func clampChannel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}

// Action is one pixel change. Parent is a back-reference to the action this
// one was derived from and is never serialized.
type Action struct {
	Location Location `json:"location"`
	Color    Color    `json:"color"`
	Parent   *Action  `json:"-"`
}

func NewAction(x, y, r, g, b int) Action {
	return Action{
		Location: Location{X: x, Y: y},
		Color:    Color{R: r, G: g, B: b}.Clamp(),
	}
}

// Equal compares location and color; the parent link is ignored.
func (a Action) Equal(other Action) bool {
	return a.Location == other.Location && a.Color == other.Color
}

func (a Action) SameLocation(other Action) bool {
	return a.Location == other.Location
}

// Noise is the sum of absolute channel differences against baseline.
func (a Action) Noise(baseline Color) int {
	return abs(a.Color.R-baseline.R) + abs(a.Color.G-baseline.G) + abs(a.Color.B-baseline.B)
}

// Derive returns a copy of the action whose parent is the receiver.
func (a Action) Derive() Action {
	parent := a
	return Action{Location: a.Location, Color: a.Color, Parent: &parent}
}

func (a Action) String() string {
	return fmt.Sprintf("action at (%d,%d) color (%d,%d,%d)", a.Location.X, a.Location.Y, a.Color.R, a.Color.G, a.Color.B)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
