package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteTextfile(t *testing.T) {
	m := New()

	m.ObserveClip(120*time.Millisecond, false)
	m.ObserveClip(80*time.Millisecond, true)
	m.ObserveImage(0, 200*time.Millisecond, false)
	m.ObserveImage(3, 90*time.Millisecond, true)
	m.ImagesSkipped.Add(1)

	path := filepath.Join(t.TempDir(), "clipguard.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)

	for _, want := range []string{
		"clipguard_images_scanned_total 2",
		"clipguard_images_flagged_total 1",
		"clipguard_images_skipped_total 1",
		"clipguard_clips_classified_total 2",
		"clipguard_clips_clamped_total 1",
		"clipguard_early_stops_total 1",
		`clipguard_verdicts_total{code="3"} 1`,
		"clipguard_clip_latency_seconds_count 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in textfile:\n%s", want, out)
		}
	}
}

func TestCodeLabel(t *testing.T) {
	tests := map[int]string{0: "0", 4: "4", 9: "9", 10: "10+", 42: "10+"}
	for code, want := range tests {
		if got := codeLabel(code); got != want {
			t.Errorf("codeLabel(%d) = %q, want %q", code, got, want)
		}
	}
}
