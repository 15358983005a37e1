package clip

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/ivlev/clipguard/internal/planner"
	"github.com/ivlev/clipguard/internal/system"
)

// ErrEmptyRegion is returned for regions with zero width or height.
var ErrEmptyRegion = errors.New("empty region")

// Clip is a materialized region ready to be sent to a backend.
type Clip struct {
	Index int
	Name  string
	Rect  planner.Rectangle
	PNG   []byte
	Path  string // set only when the clip was written to disk
}

// Options controls how clips are materialized.
type Options struct {
	Dir     string // clip files are written here; empty keeps clips in memory
	Keep    bool   // retain clip files after Close
	MaxSide int    // downscale clips whose longer side exceeds this (0 disables)

	// Source names in-memory clips "<Source>#<n>" instead of using the prefix.
	Source string
}

// Cutter crops regions out of one source image.
type Cutter struct {
	src    image.Image
	prefix string
	opts   Options
	files  []string
	enc    png.Encoder
}

// NewCutter prepares a cutter for src; clip names are "<prefix>-<n>.png" with n starting at 1
// unless opts.Source applies.
func NewCutter(src image.Image, prefix string, opts Options) *Cutter {
	return &Cutter{
		src:    src,
		prefix: prefix,
		opts:   opts,
		enc:    png.Encoder{CompressionLevel: png.BestSpeed},
	}
}

func (c *Cutter) name(index int) string {
	if c.opts.Dir == "" && c.opts.Source != "" {
		return fmt.Sprintf("%s#%d", c.opts.Source, index+1)
	}
	return fmt.Sprintf("%s-%d.png", c.prefix, index+1)
}

// Materialize crops region r (in image coordinates) and encodes it as PNG.
func (c *Cutter) Materialize(index int, r planner.Rectangle) (Clip, error) {
	name := c.name(index)
	cl := Clip{Index: index, Name: name, Rect: r}

	if r.W <= 0 || r.H <= 0 {
		return cl, fmt.Errorf("%s %v: %w", name, r, ErrEmptyRegion)
	}

	bounds := c.src.Bounds()
	sr := r.Rect().Add(bounds.Min)
	if !sr.In(bounds) {
		return cl, fmt.Errorf("%s: region %v outside image %v", name, r, bounds)
	}

	data, err := c.encode(sr)
	if err != nil {
		return cl, fmt.Errorf("%s: encode: %w", name, err)
	}
	cl.PNG = data

	if c.opts.Dir != "" {
		if err := os.MkdirAll(c.opts.Dir, 0755); err != nil {
			return cl, err
		}
		path, err := filepath.Abs(filepath.Join(c.opts.Dir, name))
		if err != nil {
			return cl, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return cl, err
		}
		c.files = append(c.files, path)
		cl.Path = path
		cl.Name = path
	}

	return cl, nil
}

func (c *Cutter) encode(sr image.Rectangle) ([]byte, error) {
	var buf bytes.Buffer
	w, h := sr.Dx(), sr.Dy()

	if sw, sh, ok := fitWithin(w, h, c.opts.MaxSide); ok {
		dst := image.NewRGBA(image.Rect(0, 0, sw, sh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), c.src, sr, draw.Src, nil)
		err := c.enc.Encode(&buf, dst)
		return buf.Bytes(), err
	}

	dst := system.GetImage(image.Rect(0, 0, w, h))
	defer system.PutImage(dst)
	draw.Copy(dst, image.Point{}, c.src, sr, draw.Src, nil)

	err := c.enc.Encode(&buf, dst)
	return buf.Bytes(), err
}

// Files lists the clip files written so far.
func (c *Cutter) Files() []string {
	return c.files
}

// Close removes written clip files unless Keep is set. Safe to call more than once.
func (c *Cutter) Close() error {
	if c.opts.Keep {
		return nil
	}
	var errs []error
	for _, f := range c.files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	c.files = nil
	return errors.Join(errs...)
}

// fitWithin returns the scaled size of w x h so that the longer side equals limit.
func fitWithin(w, h, limit int) (int, int, bool) {
	if limit <= 0 || (w <= limit && h <= limit) {
		return w, h, false
	}
	if w >= h {
		nh := h * limit / w
		if nh < 1 {
			nh = 1
		}
		return limit, nh, true
	}
	nw := w * limit / h
	if nw < 1 {
		nw = 1
	}
	return nw, limit, true
}
