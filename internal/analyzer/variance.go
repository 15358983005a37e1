package analyzer

import "image"

// VarianceDetector treats a region as blank when its luminance barely varies.
// Cheaper than edge detection but fooled by smooth gradients.
type VarianceDetector struct {
	MinStdDev float64
	Step      int
}

func NewVarianceDetector() *VarianceDetector {
	return &VarianceDetector{MinStdDev: 4.0, Step: 2}
}

func (d *VarianceDetector) Blank(img image.Image, r image.Rectangle) bool {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return true
	}
	gray := toGrayscale(img, r)

	step := d.Step
	if step < 1 {
		step = 1
	}

	var n, sum, sumSq float64
	b := gray.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y += step {
		for x := b.Min.X; x < b.Max.X; x += step {
			v := float64(gray.GrayAt(x, y).Y)
			sum += v
			sumSq += v * v
			n++
		}
	}

	mean := sum / n
	variance := sumSq/n - mean*mean
	return variance < d.MinStdDev*d.MinStdDev
}
