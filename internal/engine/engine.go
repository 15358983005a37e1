package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ivlev/clipguard/internal/analyzer"
	"github.com/ivlev/clipguard/internal/classifier"
	"github.com/ivlev/clipguard/internal/clip"
	"github.com/ivlev/clipguard/internal/config"
	"github.com/ivlev/clipguard/internal/metrics"
	"github.com/ivlev/clipguard/internal/planner"
	"github.com/ivlev/clipguard/internal/report"
	"github.com/ivlev/clipguard/internal/source"
	"github.com/ivlev/clipguard/internal/verdict"
)

// Scanner drives one batch: every page of the source is planned, evaluated,
// routed and recorded, strictly in source order.
type Scanner struct {
	Config  *config.Config
	Source  source.Source
	Backend classifier.Backend
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Out     io.Writer // console progress

	planner   *planner.Planner
	detector  analyzer.Detector
	agg       *verdict.Aggregator
	router    *report.Router
	recorders []report.Recorder
}

// Summary is what a finished (or aborted) batch did.
type Summary struct {
	Total     int
	Scanned   int
	Flagged   int
	Skipped   int
	Clips     int
	LatencyMS float64
	Elapsed   time.Duration

	// Failed holds the verdicts of images dropped by the skip policy.
	Failed []verdict.ImageVerdict
}

func NewScanner(cfg *config.Config, src source.Source, backend classifier.Backend, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		Config:  cfg,
		Source:  src,
		Backend: backend,
		Logger:  logger,
		Metrics: metrics.New(),
		Out:     os.Stdout,
		planner: planner.NewPlanner(cfg.Strength, cfg.Cut),
	}
}

type page struct {
	index int
	name  string
	path  string
	img   image.Image
	err   error
}

// Run scans the whole source. The ledger is written on every exit path,
// including an abort caused by a backend failure.
func (s *Scanner) Run(ctx context.Context) (sum Summary, err error) {
	start := time.Now()
	cfg := s.Config
	sum.Total = s.Source.PageCount()

	if err := os.MkdirAll(cfg.DstDir, 0755); err != nil {
		return sum, err
	}

	if cfg.PlanOnly {
		return s.writePlan(sum)
	}

	fmt.Fprintln(s.Out, "--- [CLIPGUARD] ---")
	fmt.Fprintf(s.Out, "[*] Source: %s | Images: %d\n", cfg.SrcDir, sum.Total)
	fmt.Fprintf(s.Out, "[*] Backend: %s | Model: %s | Strength: %d | Cut: %d | Rules: %d\n",
		cfg.Backend, cfg.Model, cfg.Strength, cfg.Cut, len(cfg.Profile.Rules))
	fmt.Fprintln(s.Out, "-------------------")

	closers, err := s.open()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i](); cerr != nil {
				s.Logger.Error("closing output", "err", cerr)
				err = errors.Join(err, cerr)
			}
		}
	}()
	if err != nil {
		return sum, err
	}

	g, gctx := errgroup.WithContext(ctx)
	pages := make(chan page, 1)

	// Decode stage: prefetches the next page while the current one is scanned.
	g.Go(func() error {
		defer close(pages)
		for i := 0; i < sum.Total; i++ {
			img, err := s.Source.RenderPage(i, cfg.DPI)
			p := page{index: i, name: s.Source.PageName(i), path: s.Source.PagePath(i), img: img, err: err}
			select {
			case pages <- p:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	// Scan stage: single consumer, so verdicts keep discovery order.
	g.Go(func() error {
		for p := range pages {
			if err := s.scanPage(gctx, p, &sum); err != nil {
				return err
			}
		}
		return nil
	})

	err = g.Wait()
	sum.Elapsed = time.Since(start)
	if err != nil {
		return sum, err
	}

	fmt.Fprintf(s.Out, "[+++] Completed to scan total %d image files.\n", sum.Total)
	if cfg.ShowStats {
		s.showStats(sum)
	}
	return sum, nil
}

// open creates the buckets, ledgers and rationale log; closers run in reverse order.
func (s *Scanner) open() ([]func() error, error) {
	cfg := s.Config
	var closers []func() error

	router, err := report.NewRouter(cfg.DstDir)
	if err != nil {
		return closers, err
	}
	s.router = router

	ledger := report.NewCSVLedger(cfg.LedgerPath())
	s.recorders = []report.Recorder{ledger}
	closers = append(closers, ledger.Close)

	if cfg.DBPath != "" {
		run := fmt.Sprintf("%s/%d-%d", time.Now().Format(time.RFC3339), cfg.Strength, cfg.Cut)
		db, err := report.OpenSQLite(cfg.DBPath, run)
		if err != nil {
			return closers, fmt.Errorf("open %s: %w", cfg.DBPath, err)
		}
		s.recorders = append(s.recorders, db)
		closers = append(closers, db.Close)
	}

	if cfg.SkipBlank != "" {
		det, err := analyzer.NewDetector(cfg.SkipBlank)
		if err != nil {
			return closers, err
		}
		s.detector = det
	}

	s.agg = &verdict.Aggregator{
		Choices:  cfg.Choices(),
		Logger:   s.Logger,
		OnRegion: s.onRegion,
	}

	if cfg.Why {
		why, err := report.NewRationaleLog(cfg.WhyPath())
		if err != nil {
			return closers, err
		}
		s.agg.Sink = why
		closers = append(closers, why.Close)
	}

	if cfg.MetricsPath != "" {
		closers = append(closers, func() error {
			return s.Metrics.WriteTextfile(cfg.MetricsPath)
		})
	}

	return closers, nil
}

func (s *Scanner) scanPage(ctx context.Context, p page, sum *Summary) error {
	cfg := s.Config

	if p.err != nil {
		s.Logger.Warn("skipping unreadable image", "source", p.name, "err", p.err)
		s.Metrics.ImagesSkipped.Add(1)
		sum.Skipped++
		return nil
	}

	b := p.img.Bounds()
	plan := s.planner.Plan(b.Dx(), b.Dy())

	opts := clip.Options{MaxSide: cfg.MaxSide}
	if cfg.Keep {
		opts.Dir, opts.Keep = cfg.ClipDir(), true
	}
	opts.Source = p.name
	cutter := clip.NewCutter(p.img, fmt.Sprintf("%05d", p.index), opts)
	defer cutter.Close()

	var m verdict.Materializer = cutter
	if s.detector != nil {
		m = &blankFilter{Materializer: cutter, img: p.img, det: s.detector, metrics: s.Metrics}
	}

	v, err := s.agg.Evaluate(ctx, p.name, plan.Regions, m, s.classify)
	if err != nil {
		var re *verdict.RegionError
		if !errors.As(err, &re) {
			return err
		}
		s.Metrics.BackendErrors.Add(1)
		if cfg.OnError == config.PolicySkip {
			s.Logger.Warn("skipping image after backend failure",
				"source", re.Source, "region", re.Index, "clip", re.Clip, "err", re.Err)
			s.Metrics.ImagesSkipped.Add(1)
			sum.Skipped++
			sum.Failed = append(sum.Failed, v)
			return nil
		}
		s.Logger.Error("backend failure, aborting batch",
			"source", re.Source, "region", re.Index, "clip", re.Clip, "err", re.Err)
		return err
	}

	fmt.Fprintf(s.Out, "* %s >>> result = %d (latency = %sms)\n", p.name, v.Code, formatMS(v.LatencyMS))

	dst, err := s.router.Route(p.index, v.Code, p.path, p.img)
	if err != nil {
		return fmt.Errorf("route %s: %w", p.name, err)
	}
	s.Logger.Debug("routed", "source", p.name, "target", dst)

	for _, r := range s.recorders {
		if err := r.Record(v); err != nil {
			return err
		}
	}

	s.Metrics.ObserveImage(v.Code, time.Duration(v.LatencyMS*float64(time.Millisecond)), v.EarlyStop)
	sum.Scanned++
	sum.Clips += v.Regions
	sum.LatencyMS += v.LatencyMS
	if v.Flagged() {
		sum.Flagged++
	}
	return nil
}

func (s *Scanner) classify(ctx context.Context, c clip.Clip) (verdict.RegionResult, error) {
	resp, err := s.Backend.Classify(ctx, classifier.Request{
		Prompt: s.Config.Prompt,
		Role:   s.Config.Role(),
		Image:  c.PNG,
		Schema: classifier.SchemaFor(s.Config.Why),
	})
	if err != nil {
		return verdict.RegionResult{}, err
	}
	return verdict.RegionResult{
		Choice:    resp.Choice,
		Rationale: resp.Why,
		LatencyMS: float64(resp.Duration) / float64(time.Millisecond),
	}, nil
}

func (s *Scanner) onRegion(source string, c clip.Clip, choice int, res verdict.RegionResult) {
	s.Metrics.ObserveClip(time.Duration(res.LatencyMS*float64(time.Millisecond)), choice != res.Choice)
	if s.Config.Verbose {
		fmt.Fprintf(s.Out, "\t- %s: %d\n", c.Name, choice)
		if choice != 0 {
			fmt.Fprintln(s.Out, "\t- early stopped")
		}
	}
}

// writePlan dumps the scan plans without calling the backend.
func (s *Scanner) writePlan(sum Summary) (Summary, error) {
	cfg := s.Config
	f := &planner.PlanFile{Version: "1.0", Strength: cfg.Strength, Cut: cfg.Cut}

	for i := 0; i < sum.Total; i++ {
		w, h, err := s.Source.GetPageDimensions(i)
		if err != nil {
			s.Logger.Warn("skipping unreadable image", "source", s.Source.PageName(i), "err", err)
			sum.Skipped++
			continue
		}
		f.Images = append(f.Images, planner.ImagePlan{ID: i, Input: s.Source.PageName(i), Plan: s.planner.Plan(w, h)})
		sum.Scanned++
	}

	path := cfg.PlanPath()
	if err := planner.WritePlanFile(f, path); err != nil {
		return sum, err
	}
	sum.Clips = f.RegionTotal()
	fmt.Fprintf(s.Out, "[+++] Plan written: %s (%d images, %d regions)\n", path, len(f.Images), sum.Clips)
	return sum, nil
}

func formatMS(ms float64) string {
	return strconv.FormatFloat(ms, 'f', -1, 64)
}

// BenchmarkLog is the file the stats report is appended to, inside the destination.
func (s *Scanner) BenchmarkLog() string {
	return filepath.Join(s.Config.DstDir, "benchmark.log")
}
