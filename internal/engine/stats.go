package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ivlev/clipguard/internal/system"
)

func (s *Scanner) showStats(sum Summary) {
	cfg := s.Config

	snap, err := system.TakeSnapshot()
	if err != nil {
		fmt.Fprintf(s.Out, "[!] Could not sample resource usage: %v\n", err)
	}

	ips := 0.0
	if sum.Elapsed > 0 {
		ips = float64(sum.Scanned) / sum.Elapsed.Seconds()
	}
	avgClip := 0.0
	if sum.Clips > 0 {
		avgClip = sum.LatencyMS / float64(sum.Clips)
	}

	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Images: %d scanned, %d flagged, %d skipped\n"+
			"Clips: %d (avg backend latency %.1fms)\n"+
			"Backend Time: %.2fs\n"+
			"Images/s: %.2f\n"+
			"RSS: %.1f MiB | CPU: %.1f%% | Host Mem: %.1f%% | CPUs: %d\n"+
			"----------------------------\n",
		cfg.BuildVersion, sum.Elapsed.Seconds(),
		sum.Scanned, sum.Flagged, sum.Skipped,
		sum.Clips, avgClip,
		sum.LatencyMS/1000, ips,
		snap.RSSMiB(), snap.CPUPercent, snap.HostMemPercent, snap.LogicalCPUs,
	)
	fmt.Fprint(s.Out, report)

	logEntry := fmt.Sprintf("[%s] Build: %s | Input: %s | Backend: %s/%s | Strength: %d | Cut: %d | Images: %d | Flagged: %d | Clips: %d | Total: %.2fs | Backend: %.2fs | RSS: %.1fMiB\n",
		time.Now().Format("2006-01-02 15:04:05"),
		cfg.BuildVersion,
		filepath.Base(cfg.SrcDir),
		cfg.Backend, cfg.Model,
		cfg.Strength, cfg.Cut,
		sum.Scanned, sum.Flagged, sum.Clips,
		sum.Elapsed.Seconds(),
		sum.LatencyMS/1000,
		snap.RSSMiB(),
	)

	f, err := os.OpenFile(s.BenchmarkLog(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		f.WriteString(logEntry)
		f.Close()
	} else {
		fmt.Fprintf(s.Out, "[!] Could not write benchmark.log: %v\n", err)
	}
}
