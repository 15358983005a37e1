package source

import (
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/gen2brain/go-fitz"
)

// FitzPDFSource renders the pages of a PDF so they can be scanned as images.
type FitzPDFSource struct {
	mu   sync.Mutex
	doc  *fitz.Document
	path string
}

func NewFitzPDFSource(path string) (*FitzPDFSource, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &FitzPDFSource{doc: doc, path: filepath.ToSlash(path)}, nil
}

func (f *FitzPDFSource) PageCount() int {
	return f.doc.NumPage()
}

func (f *FitzPDFSource) PageName(index int) string {
	return fmt.Sprintf("%s#%d", f.path, index+1)
}

// PagePath is empty: pages only exist once rendered.
func (f *FitzPDFSource) PagePath(index int) string {
	return ""
}

func (f *FitzPDFSource) GetPageDimensions(index int) (int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rect, err := f.doc.Bound(index)
	if err != nil {
		return 0, 0, err
	}
	return rect.Dx(), rect.Dy(), nil
}

// RenderPage rasterizes one page; MuPDF documents are not safe for concurrent use.
func (f *FitzPDFSource) RenderPage(index int, dpi int) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.doc.ImageDPI(index, float64(dpi))
}

func (f *FitzPDFSource) Close() error {
	return f.doc.Close()
}
