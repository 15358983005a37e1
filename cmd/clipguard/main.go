package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ivlev/clipguard/internal/classifier"
	"github.com/ivlev/clipguard/internal/config"
	"github.com/ivlev/clipguard/internal/engine"
	"github.com/ivlev/clipguard/internal/source"
	"github.com/ivlev/clipguard/internal/system"
)

// set with -ldflags "-X main.version=..."
var version = "dev"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <src_dir> <dst_dir>\n\nCheck images for NSFW content.\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	def := config.Defaults()

	var (
		confPath        string
		strength, cut   int
		keep, why, verb bool
		backendName     string
		baseURL, model  string
		timeout         time.Duration
		onError         string
		encodeProfile   string
	)
	flag.StringVar(&confPath, "conf", def.ProfilePath, "Profile path: base64 .conf, .json or .yaml")
	flag.StringVar(&confPath, "f", def.ProfilePath, "Shorthand for -conf")
	flag.IntVar(&strength, "strength", int(def.Strength), "Strength (0-2)")
	flag.IntVar(&strength, "s", int(def.Strength), "Shorthand for -strength")
	flag.IntVar(&cut, "cut", def.Cut, "Top cut in pixels")
	flag.IntVar(&cut, "c", def.Cut, "Shorthand for -cut")
	flag.BoolVar(&keep, "keep", false, "Keep clip images (written to <dst_dir>/clips)")
	flag.BoolVar(&keep, "k", false, "Shorthand for -keep")
	flag.BoolVar(&why, "why", false, "Ask the model why and log it to <dst_dir>/why.txt")
	flag.BoolVar(&why, "w", false, "Shorthand for -why")
	flag.BoolVar(&verb, "verbose", false, "Print every clip verdict")
	flag.BoolVar(&verb, "v", false, "Shorthand for -verbose")

	flag.StringVar(&backendName, "backend", def.Backend, "Classification backend: ollama, openai, mock")
	flag.StringVar(&baseURL, "url", "", "Backend base URL (default: $OLLAMA_HOST or http://localhost:11434 for ollama)")
	flag.StringVar(&model, "model", "", "Model name (default: profile 'pretrained')")
	flag.DurationVar(&timeout, "timeout", def.Timeout, "Per-clip backend timeout")
	flag.StringVar(&onError, "on-error", string(def.OnError), "Backend failure policy: abort, skip")

	maxSide := flag.Int("max-side", 0, "Downscale clips whose longer side exceeds this (0 = off)")
	skipBlank := flag.String("skip-blank", "", "Skip regions without structure: edge, variance (empty = scan all)")
	pdf := flag.Bool("pdf", false, "Also scan PDF pages found under src_dir")
	dpi := flag.Int("dpi", def.DPI, "DPI for rendering PDF pages")
	planOnly := flag.Bool("plan-only", false, "Only write the scan plan YAML, no backend calls")
	stats := flag.Bool("stats", false, "Print a performance report and append it to <dst_dir>/benchmark.log")
	metricsPath := flag.String("metrics", "", "Write prometheus metrics to this textfile at exit")
	dbPath := flag.String("db", "", "Also append verdicts to this SQLite database")
	logJSON := flag.Bool("log-json", false, "Structured logs as JSON")
	flag.StringVar(&encodeProfile, "encode", "", "Encode this JSON profile into the -conf file and exit")

	flag.Usage = usage
	flag.Parse()

	// flags may also follow the positional arguments
	args := flag.Args()
	if len(args) > 2 {
		head := []string{args[0], args[1]}
		flag.CommandLine.Parse(args[2:])
		args = append(head, flag.Args()...)
	}

	level := slog.LevelInfo
	if verb {
		level = slog.LevelDebug
	}
	logger := system.NewLogger(os.Stderr, level, *logJSON)
	slog.SetDefault(logger)

	if encodeProfile != "" {
		if err := encode(encodeProfile, confPath); err != nil {
			log.Printf("[-] %v", err)
			os.Exit(2)
		}
		fmt.Printf("[+++] Profile written: %s\n", confPath)
		return
	}

	if len(args) != 2 {
		usage()
		os.Exit(2)
	}

	profile, err := config.LoadProfile(confPath)
	if err != nil {
		log.Printf("[-] Error loading profile: %v", err)
		os.Exit(2)
	}

	cfg, err := config.NewBuilder().
		Dirs(args[0], args[1]).
		Profile(confPath, profile).
		Strength(strength).
		Cut(cut).
		Flags(keep, why, verb).
		Backend(backendName, baseURL, model, timeout).
		OnError(onError).
		Apply(func(c *config.Config) {
			c.MaxSide = *maxSide
			c.SkipBlank = *skipBlank
			c.PDF = *pdf
			c.DPI = *dpi
			c.PlanOnly = *planOnly
			c.ShowStats = *stats
			c.MetricsPath = *metricsPath
			c.DBPath = *dbPath
			c.LogJSON = *logJSON
			c.BuildVersion = version
		}).
		Build()
	if err != nil {
		log.Printf("[-] %v", err)
		os.Exit(2)
	}

	backend, err := classifier.New(cfg.Backend, classifier.Options{
		BaseURL:      cfg.BaseURL,
		Model:        cfg.Model,
		Timeout:      cfg.Timeout,
		ModelOptions: cfg.Profile.Option,
	})
	if err != nil {
		log.Printf("[-] Backend: %v", err)
		os.Exit(2)
	}

	src, err := source.Discover(cfg.SrcDir, cfg.PDF)
	if err != nil {
		log.Printf("[-] Error opening source: %v", err)
		os.Exit(2)
	}
	defer src.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scanner := engine.NewScanner(cfg, src, backend, logger)
	if _, err := scanner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("[!] Interrupted, partial results written to %s", cfg.LedgerPath())
		} else {
			log.Printf("[-] Scan failed: %v", err)
		}
		src.Close()
		stop()
		os.Exit(1)
	}
}

func encode(jsonPath, confPath string) error {
	raw, err := os.ReadFile(jsonPath)
	if err != nil {
		return err
	}
	enc, err := config.EncodeConf(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", jsonPath, err)
	}
	return os.WriteFile(confPath, enc, 0644)
}
