package engine

import (
	"fmt"
	"image"

	"github.com/ivlev/clipguard/internal/analyzer"
	"github.com/ivlev/clipguard/internal/clip"
	"github.com/ivlev/clipguard/internal/metrics"
	"github.com/ivlev/clipguard/internal/planner"
	"github.com/ivlev/clipguard/internal/verdict"
)

// blankFilter reports regions without visible structure as empty so the
// aggregator skips them without a backend call.
type blankFilter struct {
	verdict.Materializer
	img     image.Image
	det     analyzer.Detector
	metrics *metrics.Metrics
}

func (f *blankFilter) Materialize(index int, r planner.Rectangle) (clip.Clip, error) {
	if f.det.Blank(f.img, r.Rect().Add(f.img.Bounds().Min)) {
		f.metrics.RegionsBlank.Add(1)
		return clip.Clip{Index: index, Rect: r}, fmt.Errorf("%w: blank %v", clip.ErrEmptyRegion, r)
	}
	return f.Materializer.Materialize(index, r)
}
