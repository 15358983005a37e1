package report

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// RationaleLog is the why.txt side channel: one line per evaluated clip.
type RationaleLog struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewRationaleLog truncates path and opens it for appending.
func NewRationaleLog(path string) (*RationaleLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return &RationaleLog{f: f, w: bufio.NewWriter(f)}, nil
}

func (l *RationaleLog) Append(clipName string, choice int, rationale string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := fmt.Fprintf(l.w, "%s >>> %d >>> %s\n", clipName, choice, rationale); err != nil {
		return err
	}
	// keep the file readable while a long batch runs
	return l.w.Flush()
}

func (l *RationaleLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		l.f.Close()
		return err
	}
	return l.f.Close()
}
