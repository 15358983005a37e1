package source

import (
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Source is an ordered collection of scannable pages.
type Source interface {
	PageCount() int
	// PageName identifies the page in logs and the ledger.
	PageName(index int) string
	// PagePath is the file backing the page, or "" when the page only exists rendered.
	PagePath(index int) string
	GetPageDimensions(index int) (width, height int, err error)
	RenderPage(index int, dpi int) (image.Image, error)
	Close() error
}

// ImageExts are the extensions picked up by discovery (lower case).
var ImageExts = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp"}

func isImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ImageExts {
		if ext == e {
			return true
		}
	}
	return false
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// Walk collects image files, and PDFs when withPDF is set, under root.
// Paths use forward slashes and are sorted.
func Walk(root string, withPDF bool) (images, pdfs []string, err error) {
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case isImage(path):
			images = append(images, filepath.ToSlash(path))
		case withPDF && isPDF(path):
			pdfs = append(pdfs, filepath.ToSlash(path))
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(images)
	sort.Strings(pdfs)
	return images, pdfs, nil
}

// Discover builds the scan source for root: a single image or PDF file,
// or a directory tree. Directory images come first, then PDF pages.
func Discover(root string, withPDF bool) (Source, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		if isPDF(root) {
			return NewFitzPDFSource(root)
		}
		return NewImageSource(root)
	}

	images, pdfs, err := Walk(root, withPDF)
	if err != nil {
		return nil, err
	}

	parts := []Source{&ImageSource{paths: images}}
	for _, p := range pdfs {
		doc, err := NewFitzPDFSource(p)
		if err != nil {
			closeAll(parts)
			return nil, fmt.Errorf("open %s: %w", p, err)
		}
		parts = append(parts, doc)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return Concat(parts...), nil
}

func closeAll(srcs []Source) error {
	var errs []error
	for _, s := range srcs {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// Multi chains several sources into one index space.
type Multi struct {
	parts  []Source
	starts []int
	total  int
}

func Concat(parts ...Source) *Multi {
	m := &Multi{parts: parts}
	for _, p := range parts {
		m.starts = append(m.starts, m.total)
		m.total += p.PageCount()
	}
	return m
}

func (m *Multi) locate(index int) (Source, int) {
	i := sort.Search(len(m.starts), func(i int) bool { return m.starts[i] > index }) - 1
	for i > 0 && m.parts[i].PageCount() == 0 {
		i--
	}
	return m.parts[i], index - m.starts[i]
}

func (m *Multi) PageCount() int { return m.total }

func (m *Multi) PageName(index int) string {
	s, i := m.locate(index)
	return s.PageName(i)
}

func (m *Multi) PagePath(index int) string {
	s, i := m.locate(index)
	return s.PagePath(i)
}

func (m *Multi) GetPageDimensions(index int) (int, int, error) {
	s, i := m.locate(index)
	return s.GetPageDimensions(i)
}

func (m *Multi) RenderPage(index int, dpi int) (image.Image, error) {
	s, i := m.locate(index)
	return s.RenderPage(i, dpi)
}

func (m *Multi) Close() error {
	return closeAll(m.parts)
}
