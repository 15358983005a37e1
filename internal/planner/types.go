package planner

import (
	"errors"
	"fmt"
	"image"
)

// ErrInvalidStrength is returned for strength levels outside 0..2.
var ErrInvalidStrength = errors.New("strength only supports 0-2")

// Strength controls how finely an image is subdivided into scan regions.
type Strength int

const (
	StrengthFull   Strength = 0 // full area only
	StrengthHalves Strength = 1 // full area + left/right/center halves
	StrengthGrid   Strength = 2 // full area + 3x3 grid of quarter-size cells
)

// ParseStrength validates a raw strength level.
func ParseStrength(n int) (Strength, error) {
	s := Strength(n)
	if !s.Valid() {
		return StrengthFull, fmt.Errorf("%w: got %d", ErrInvalidStrength, n)
	}
	return s, nil
}

func (s Strength) Valid() bool {
	return s >= StrengthFull && s <= StrengthGrid
}

// RegionCount is the number of regions a single panel yields at this strength.
func (s Strength) RegionCount() int {
	switch s {
	case StrengthHalves:
		return 4
	case StrengthGrid:
		return 10
	default:
		return 1
	}
}

// Rectangle represents a region in pixel units, origin top-left
type Rectangle struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Rect converts to an image.Rectangle relative to the image origin.
func (r Rectangle) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.W, r.Y+r.H)
}

// Translate shifts the rectangle by (dx, dy).
func (r Rectangle) Translate(dx, dy int) Rectangle {
	return Rectangle{X: r.X + dx, Y: r.Y + dy, W: r.W, H: r.H}
}

func (r Rectangle) String() string {
	return fmt.Sprintf("(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// Panel is one horizontal half of an image (or the whole image) with its applied top cut.
type Panel struct {
	Rect Rectangle `yaml:"rect"`
	Cut  int       `yaml:"cut"`
}

// ScanPlan is the ordered list of regions to test for one image.
type ScanPlan struct {
	Width   int         `yaml:"width"`
	Height  int         `yaml:"height"`
	Panels  []Panel     `yaml:"panels"`
	Regions []Rectangle `yaml:"regions"`
}

// Dual reports whether the plan was built from two panels.
func (p ScanPlan) Dual() bool {
	return len(p.Panels) == 2
}
