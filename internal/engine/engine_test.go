package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/clipguard/internal/classifier"
	"github.com/ivlev/clipguard/internal/config"
	"github.com/ivlev/clipguard/internal/planner"
	"github.com/ivlev/clipguard/internal/source"
	"github.com/ivlev/clipguard/internal/verdict"
)

func testProfile() *config.Profile {
	return &config.Profile{
		Instruct:      "{}\n{}",
		ChoicePhrase:  "{}. {} -> {}",
		Rules:         []string{"nudity", "gore"},
		OutputFormat0: "json",
		OutputFormat1: "json+why",
		Pretrained:    "test-model",
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
}

// fixture lays out a.png (dual 2400x400), b.png (300x200) and a broken c.png.
func fixture(t *testing.T) (src, dst string) {
	t.Helper()
	src = t.TempDir()
	dst = filepath.Join(t.TempDir(), "out")
	writePNG(t, filepath.Join(src, "a.png"), 2400, 400)
	writePNG(t, filepath.Join(src, "b.png"), 300, 200)
	if err := os.WriteFile(filepath.Join(src, "c.png"), []byte("broken"), 0644); err != nil {
		t.Fatal(err)
	}
	return src, dst
}

func newScanner(t *testing.T, b *config.Builder, backend classifier.Backend) (*Scanner, *config.Config) {
	t.Helper()
	cfg, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	src, err := source.Discover(cfg.SrcDir, false)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	t.Cleanup(func() { src.Close() })

	s := NewScanner(cfg, src, backend, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.Out = io.Discard
	return s, cfg
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestRunAllSafe(t *testing.T) {
	srcDir, dst := fixture(t)
	mock := classifier.NewMock(classifier.Options{MockLatency: 5 * time.Millisecond})

	s, cfg := newScanner(t, config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(0), mock)

	var out bytes.Buffer
	s.Out = &out

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// a.png is dual: two panels, one region each; b.png is one region
	if mock.Calls() != 3 {
		t.Errorf("Expected 3 backend calls, got %d", mock.Calls())
	}
	if sum.Scanned != 2 || sum.Skipped != 1 || sum.Flagged != 0 {
		t.Errorf("Unexpected summary %+v", sum)
	}

	base := filepath.ToSlash(srcDir)
	want := []string{
		"File,Result,Latency (ms)",
		base + "/a.png,0,10",
		base + "/b.png,0,5",
	}
	got := readLines(t, cfg.LedgerPath())
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected ledger:\n%s", strings.Join(got, "\n"))
	}

	for _, name := range []string{"00000.png", "00001.png"} {
		if _, err := os.Stat(filepath.Join(dst, "safe", name)); err != nil {
			t.Errorf("Expected safe/%s: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dst, "safe", "00002.png")); err == nil {
		t.Error("Broken image must not be routed")
	}

	if !strings.Contains(out.String(), "* "+base+"/a.png >>> result = 0 (latency = 10ms)") {
		t.Errorf("Missing progress line in:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "[+++] Completed to scan total 3 image files.") {
		t.Errorf("Missing completion line in:\n%s", out.String())
	}
}

func TestRunFlagsAndWhy(t *testing.T) {
	srcDir, dst := fixture(t)
	// first clip of a.png is safe, the second fires rule 1; b.png answers 2, which is past the last rule
	mock := classifier.NewMock(classifier.Options{Script: []int{0, 1, 2}, Why: "because"})

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(0).Flags(false, true, true)
	s, cfg := newScanner(t, b, mock)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Flagged != 1 {
		t.Errorf("Expected 1 flagged image, got %d", sum.Flagged)
	}
	if _, err := os.Stat(filepath.Join(dst, "flagged", "00000.png")); err != nil {
		t.Errorf("Expected flagged/00000.png: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "safe", "00001.png")); err != nil {
		t.Errorf("Expected safe/00001.png: %v", err)
	}

	lines := readLines(t, cfg.WhyPath())
	pa, pb := filepath.Join(srcDir, "a.png"), filepath.Join(srcDir, "b.png")
	want := []string{
		pa + "#1 >>> 0 >>> because",
		pa + "#2 >>> 1 >>> because",
		pb + "#1 >>> 0 >>> because",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("Unexpected why.txt:\n%s", strings.Join(lines, "\n"))
	}

	reqs := mock.Requests()
	if !bytes.Equal(reqs[0].Schema, classifier.SchemaChoiceWhy) {
		t.Errorf("Expected the rationale schema with -why")
	}
	if !strings.Contains(reqs[0].Prompt, "2. gore -> 2") {
		t.Errorf("Unexpected prompt %q", reqs[0].Prompt)
	}
}

type failingBackend struct {
	mu     sync.Mutex
	calls  int
	failAt int
}

func (f *failingBackend) Classify(ctx context.Context, req classifier.Request) (classifier.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failAt {
		return classifier.Response{}, errors.New("connection reset")
	}
	return classifier.Response{Duration: time.Millisecond}, nil
}

func TestRunAbortFlushesLedger(t *testing.T) {
	srcDir, dst := fixture(t)
	// a.png takes calls 1-2, b.png fails on call 3
	backend := &failingBackend{failAt: 3}

	s, cfg := newScanner(t, config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(0), backend)

	_, err := s.Run(context.Background())
	if !errors.Is(err, classifier.ErrBackend) {
		t.Fatalf("Expected a backend error, got %v", err)
	}

	lines := readLines(t, cfg.LedgerPath())
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "/a.png,0,2") {
		t.Errorf("Expected the ledger to hold the completed image, got %v", lines)
	}
	if _, err := os.Stat(filepath.Join(dst, "safe", "00001.png")); err == nil {
		t.Error("Failed image must not be routed")
	}
}

func TestRunSkipPolicy(t *testing.T) {
	srcDir, dst := fixture(t)
	backend := &failingBackend{failAt: 1}

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(0).OnError("skip")
	s, cfg := newScanner(t, b, backend)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if sum.Scanned != 1 || sum.Skipped != 2 {
		t.Errorf("Expected 1 scanned and 2 skipped, got %+v", sum)
	}
	if len(sum.Failed) != 1 || !errors.Is(sum.Failed[0].Err, verdict.ErrBackend) ||
		!strings.HasSuffix(sum.Failed[0].Source, "/a.png") {
		t.Errorf("Expected a.png reported as failed, got %+v", sum.Failed)
	}

	lines := readLines(t, cfg.LedgerPath())
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "/b.png,0,1") {
		t.Errorf("Unexpected ledger %v", lines)
	}
	if s.Metrics.BackendErrors.Load() != 1 {
		t.Errorf("Expected 1 backend error, got %d", s.Metrics.BackendErrors.Load())
	}
}

func TestRunKeepRetainsClips(t *testing.T) {
	srcDir, dst := fixture(t)
	mock := classifier.NewMock(classifier.Options{})

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(1).Flags(true, false, false)
	s, cfg := newScanner(t, b, mock)

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries, err := os.ReadDir(cfg.ClipDir())
	if err != nil {
		t.Fatalf("clip dir: %v", err)
	}
	// strength 1: a.png 2 panels x 4, b.png 4
	if len(entries) != 12 {
		t.Errorf("Expected 12 retained clips, got %d", len(entries))
	}
	if !strings.HasSuffix(mock.Requests()[0].Prompt, "json+why") {
		t.Errorf("Expected the keep output format in the prompt")
	}
}

func TestRunPlanOnly(t *testing.T) {
	srcDir, dst := fixture(t)
	mock := classifier.NewMock(classifier.Options{})

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(2).
		Apply(func(c *config.Config) { c.PlanOnly = true })
	s, cfg := newScanner(t, b, mock)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if mock.Calls() != 0 {
		t.Errorf("Plan-only must not call the backend, got %d calls", mock.Calls())
	}

	f, err := planner.ReadPlanFile(cfg.PlanPath())
	if err != nil {
		t.Fatalf("ReadPlanFile failed: %v", err)
	}
	if len(f.Images) != 2 || sum.Skipped != 1 {
		t.Errorf("Expected 2 planned images and 1 skipped, got %d / %+v", len(f.Images), sum)
	}
	if f.RegionTotal() != 30 {
		t.Errorf("Expected 30 regions, got %d", f.RegionTotal())
	}
}

func TestRunCancelled(t *testing.T) {
	srcDir, dst := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, cfg := newScanner(t, config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()), classifier.NewMock(classifier.Options{}))

	_, err := s.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(cfg.LedgerPath()); err != nil {
		t.Errorf("Expected the ledger to be written on cancel: %v", err)
	}
}

func TestRunStatsAndMetrics(t *testing.T) {
	srcDir, dst := fixture(t)
	promPath := filepath.Join(t.TempDir(), "clipguard.prom")

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(0).
		Apply(func(c *config.Config) {
			c.ShowStats = true
			c.MetricsPath = promPath
			c.DBPath = filepath.Join(dst, "verdicts.db")
		})
	s, _ := newScanner(t, b, classifier.NewMock(classifier.Options{}))

	if _, err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	data, err := os.ReadFile(promPath)
	if err != nil {
		t.Fatalf("metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "clipguard_images_scanned_total 2") {
		t.Errorf("Unexpected metrics:\n%s", data)
	}
	if _, err := os.Stat(s.BenchmarkLog()); err != nil {
		t.Errorf("Expected benchmark.log: %v", err)
	}
}

func TestRunSkipBlank(t *testing.T) {
	srcDir, dst := fixture(t)
	mock := classifier.NewMock(classifier.Options{})

	b := config.NewBuilder().Dirs(srcDir, dst).Profile("p", testProfile()).Strength(1).
		Apply(func(c *config.Config) { c.SkipBlank = "edge" })
	s, cfg := newScanner(t, b, mock)

	sum, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// fixture images are uniform, so nothing reaches the backend
	if mock.Calls() != 0 {
		t.Errorf("Expected no backend calls, got %d", mock.Calls())
	}
	if sum.Scanned != 2 || s.Metrics.RegionsBlank.Load() != 12 {
		t.Errorf("Expected 2 scanned images and 12 blank regions, got %+v / %d", sum, s.Metrics.RegionsBlank.Load())
	}
	lines := readLines(t, cfg.LedgerPath())
	if len(lines) != 3 || !strings.HasSuffix(lines[1], "/a.png,0,0") {
		t.Errorf("Unexpected ledger %v", lines)
	}
}
