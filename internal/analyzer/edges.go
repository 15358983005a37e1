package analyzer

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// EdgeDetector treats a region as blank when almost none of its pixels sit on
// an edge (Sobel gradient magnitude above EdgeThreshold).
type EdgeDetector struct {
	EdgeThreshold float64 // Gradient magnitude threshold
	MinEdgeRatio  float64 // Share of edge pixels below which the region is blank
	Step          int     // Sampling stride in pixels
}

// NewEdgeDetector creates an edge-based detector with default settings
func NewEdgeDetector() *EdgeDetector {
	return &EdgeDetector{
		EdgeThreshold: 30.0,
		MinEdgeRatio:  0.002,
		Step:          2,
	}
}

func (d *EdgeDetector) Blank(img image.Image, r image.Rectangle) bool {
	r = r.Intersect(img.Bounds())
	if r.Dx() < 3 || r.Dy() < 3 {
		return true
	}
	return d.EdgeRatio(toGrayscale(img, r)) < d.MinEdgeRatio
}

// EdgeRatio returns the share of sampled pixels whose gradient exceeds the threshold.
func (d *EdgeDetector) EdgeRatio(gray *image.Gray) float64 {
	step := d.Step
	if step < 1 {
		step = 1
	}

	bounds := gray.Bounds()
	var edges, total int

	for y := bounds.Min.Y + 1; y < bounds.Max.Y-1; y += step {
		for x := bounds.Min.X + 1; x < bounds.Max.X-1; x += step {
			total++
			if sobel(gray, x, y) > d.EdgeThreshold {
				edges++
			}
		}
	}

	if total == 0 {
		return 0
	}
	return float64(edges) / float64(total)
}

// Sobel kernels
var (
	gx = [3][3]float64{
		{-1, 0, 1},
		{-2, 0, 2},
		{-1, 0, 1},
	}
	gy = [3][3]float64{
		{-1, -2, -1},
		{0, 0, 0},
		{1, 2, 1},
	}
)

// sobel returns the gradient magnitude at (x, y)
func sobel(gray *image.Gray, x, y int) float64 {
	var sumX, sumY float64
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			pixel := float64(gray.GrayAt(x+kx, y+ky).Y)
			sumX += pixel * gx[ky+1][kx+1]
			sumY += pixel * gy[ky+1][kx+1]
		}
	}
	return math.Sqrt(sumX*sumX + sumY*sumY)
}

// toGrayscale copies region r of img into a grayscale image with origin (0,0)
func toGrayscale(img image.Image, r image.Rectangle) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(gray, gray.Bounds(), img, r.Min, draw.Src)
	return gray
}
