package verdict

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ivlev/clipguard/internal/clip"
	"github.com/ivlev/clipguard/internal/planner"
)

// Aggregator evaluates the regions of an image in order and stops at the
// first positive region.
type Aggregator struct {
	Choices int           // valid choices are [0, Choices)
	Sink    RationaleSink // optional
	Logger  *slog.Logger

	// OnRegion is called after each evaluated region with the normalized choice.
	OnRegion func(source string, c clip.Clip, choice int, res RegionResult)
}

// Evaluate runs the plan for one image. Backend and materialization failures
// come back as *RegionError; a cancelled ctx is returned as is.
func (a *Aggregator) Evaluate(ctx context.Context, source string, plan []planner.Rectangle, m Materializer, classify ClassifyFunc) (ImageVerdict, error) {
	v := ImageVerdict{Source: source}
	log := a.logger()

	for i, r := range plan {
		if err := ctx.Err(); err != nil {
			return v, err
		}

		c, err := m.Materialize(i, r)
		if errors.Is(err, clip.ErrEmptyRegion) {
			log.Debug("skipping empty region", "source", source, "index", i, "rect", r.String())
			continue
		}
		if err != nil {
			return v.fail(&RegionError{Source: source, Index: i, Clip: c.Name, Err: err})
		}

		res, err := classify(ctx, c)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return v, ctxErr
			}
			if !errors.Is(err, ErrBackend) {
				err = fmt.Errorf("%w: %w", ErrBackend, err)
			}
			return v.fail(&RegionError{Source: source, Index: i, Clip: c.Name, Err: err})
		}

		v.Regions++
		v.LatencyMS += res.LatencyMS

		choice := Normalize(res.Choice, a.Choices)
		if choice != res.Choice {
			log.Debug("choice out of range", "clip", c.Name, "choice", res.Choice, "choices", a.Choices)
		}

		if a.Sink != nil {
			if err := a.Sink.Append(c.Name, choice, res.Rationale); err != nil {
				return v, fmt.Errorf("rationale log: %w", err)
			}
		}
		if a.OnRegion != nil {
			a.OnRegion(source, c, choice, res)
		}

		if choice != 0 {
			v.Code = choice
			v.EarlyStop = i < len(plan)-1
			return v, nil
		}
	}

	return v, nil
}

func (a *Aggregator) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}
