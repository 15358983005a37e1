package verdict

import (
	"context"
	"fmt"

	"github.com/ivlev/clipguard/internal/classifier"
	"github.com/ivlev/clipguard/internal/clip"
	"github.com/ivlev/clipguard/internal/planner"
)

// ErrBackend marks failures of the classification backend. Every backend
// error returned by Evaluate matches it with errors.Is.
var ErrBackend = classifier.ErrBackend

// RegionResult is the answer for one clip.
type RegionResult struct {
	Choice    int
	Rationale string
	LatencyMS float64
}

// ImageVerdict is the final result for one image.
type ImageVerdict struct {
	Source    string
	Code      int     // 0 safe, otherwise the 1-based rule that fired
	LatencyMS float64 // sum over evaluated regions only
	Regions   int     // regions actually sent to the backend
	EarlyStop bool
	Err       error // set when the image could not be fully evaluated
}

// Flagged reports whether a rule fired.
func (v ImageVerdict) Flagged() bool {
	return v.Code != 0
}

func (v ImageVerdict) fail(err *RegionError) (ImageVerdict, error) {
	v.Err = err
	return v, err
}

// Materializer turns a planned region into a clip.
type Materializer interface {
	Materialize(index int, r planner.Rectangle) (clip.Clip, error)
}

// ClassifyFunc submits one clip to the backend.
type ClassifyFunc func(ctx context.Context, c clip.Clip) (RegionResult, error)

// RationaleSink receives one line per evaluated region.
type RationaleSink interface {
	Append(clipName string, choice int, rationale string) error
}

// RegionError carries the identity of the clip that failed.
type RegionError struct {
	Source string
	Index  int
	Clip   string
	Err    error
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("%s region %d (%s): %v", e.Source, e.Index, e.Clip, e.Err)
}

func (e *RegionError) Unwrap() error { return e.Err }

// Normalize clamps choices outside [0, choices) to 0.
func Normalize(choice, choices int) int {
	if choice < 0 || choice >= choices {
		return 0
	}
	return choice
}
