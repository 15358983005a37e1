package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/ivlev/clipguard/internal/verdict"
)

// Recorder receives one verdict per scanned image.
type Recorder interface {
	Record(v verdict.ImageVerdict) error
	Close() error
}

// Row is one line of the result table.
type Row struct {
	File      string
	Result    int
	LatencyMS float64
}

func rowOf(v verdict.ImageVerdict) Row {
	return Row{File: v.Source, Result: v.Code, LatencyMS: v.LatencyMS}
}

// CSVLedger keeps rows in memory and writes them in one go on Close.
type CSVLedger struct {
	mu      sync.Mutex
	path    string
	rows    []Row
	flushed bool
}

func NewCSVLedger(path string) *CSVLedger {
	return &CSVLedger{path: path}
}

func (l *CSVLedger) Record(v verdict.ImageVerdict) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rows = append(l.rows, rowOf(v))
	return nil
}

// Rows returns a copy of the recorded rows.
func (l *CSVLedger) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Row, len(l.rows))
	copy(out, l.rows)
	return out
}

// Close writes the table; later calls are no-ops.
func (l *CSVLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flushed {
		return nil
	}
	l.flushed = true

	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("ledger: %w", err)
	}

	w := csv.NewWriter(f)
	w.Write([]string{"File", "Result", "Latency (ms)"})
	for _, r := range l.rows {
		w.Write([]string{r.File, strconv.Itoa(r.Result), strconv.FormatFloat(r.LatencyMS, 'f', -1, 64)})
	}
	w.Flush()

	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("ledger: %w", err)
	}
	return f.Close()
}

// Path is where the table is written.
func (l *CSVLedger) Path() string {
	return l.path
}
