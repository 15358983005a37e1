package planner

// Planner decomposes an image into candidate scan regions
type Planner struct {
	Strength     Strength
	Cut          int // Pixels trimmed from the top of each panel
	DualMinWidth int // Images must be wider than this to be split into panels
	CutMargin    int // Panel must be taller than Cut+CutMargin for the cut to apply
}

// NewPlanner creates a Planner with default thresholds
func NewPlanner(strength Strength, cut int) *Planner {
	return &Planner{
		Strength:     strength,
		Cut:          cut,
		DualMinWidth: 1100,
		CutMargin:    500,
	}
}

// Plan produces the ordered regions for an image of the given size.
// Regions of the left panel come before those of the right panel.
func (p *Planner) Plan(width, height int) ScanPlan {
	plan := ScanPlan{Width: width, Height: height}

	for _, panel := range p.panels(width, height) {
		cy := p.topCut(panel.H)
		plan.Panels = append(plan.Panels, Panel{Rect: panel, Cut: cy})

		for _, area := range ScanAreas(panel.W, panel.H-cy, p.Strength) {
			plan.Regions = append(plan.Regions, area.Translate(panel.X, panel.Y+cy))
		}
	}

	return plan
}

func (p *Planner) isDual(w, h int) bool {
	return w > h*2 && w > p.DualMinWidth
}

func (p *Planner) panels(w, h int) []Rectangle {
	if p.isDual(w, h) {
		half := w / 2
		return []Rectangle{
			{X: 0, Y: 0, W: half, H: h},
			{X: half, Y: 0, W: half, H: h},
		}
	}
	return []Rectangle{{X: 0, Y: 0, W: w, H: h}}
}

func (p *Planner) topCut(h int) int {
	if h > p.Cut+p.CutMargin {
		return p.Cut
	}
	return 0
}

// IsDual reports whether an image looks like a two-page spread.
func IsDual(width, height int) bool {
	return NewPlanner(StrengthFull, 0).isDual(width, height)
}

// Panels splits an image into one or two scan panels.
func Panels(width, height int) []Rectangle {
	return NewPlanner(StrengthFull, 0).panels(width, height)
}

// TopCut returns how many pixels are trimmed from a panel of the given height.
func TopCut(panelHeight, cut int) int {
	return NewPlanner(StrengthFull, cut).topCut(panelHeight)
}

// ScanAreas lists the regions of a single w x h panel, full area first.
// Strength values outside 0..2 yield only the full area.
func ScanAreas(w, h int, s Strength) []Rectangle {
	areas := []Rectangle{{X: 0, Y: 0, W: w, H: h}}

	switch s {
	case StrengthHalves:
		areas = append(areas,
			Rectangle{X: 0, Y: 0, W: w / 2, H: h},
			Rectangle{X: w / 2, Y: 0, W: w / 2, H: h},
			Rectangle{X: w / 4, Y: 0, W: w / 2, H: h},
		)
	case StrengthGrid:
		// rows: top, bottom, middle; columns: left, right, center
		for _, y := range []int{0, h / 2, h / 4} {
			for _, x := range []int{0, w / 2, w / 4} {
				areas = append(areas, Rectangle{X: x, Y: y, W: w / 2, H: h / 2})
			}
		}
	}

	return areas
}
