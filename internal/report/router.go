package report

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
)

// Bucket directory names under the destination.
const (
	SafeBucket    = "safe"
	FlaggedBucket = "flagged"
)

// Router copies scanned images into the bucket matching their verdict.
type Router struct {
	SafeDir    string
	FlaggedDir string
}

// NewRouter creates both bucket directories under dst.
func NewRouter(dst string) (*Router, error) {
	r := &Router{
		SafeDir:    filepath.Join(dst, SafeBucket),
		FlaggedDir: filepath.Join(dst, FlaggedBucket),
	}
	for _, d := range []string{r.SafeDir, r.FlaggedDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Target returns the destination path for item index with the given code and extension.
func (r *Router) Target(index, code int, ext string) string {
	dir := r.SafeDir
	if code != 0 {
		dir = r.FlaggedDir
	}
	return filepath.Join(dir, fmt.Sprintf("%05d%s", index, ext))
}

// Route copies srcPath into its bucket. Pages without a backing file
// (srcPath == "") are encoded from img as PNG.
func (r *Router) Route(index, code int, srcPath string, img image.Image) (string, error) {
	if srcPath == "" {
		dst := r.Target(index, code, ".png")
		f, err := os.Create(dst)
		if err != nil {
			return "", err
		}
		if err := png.Encode(f, img); err != nil {
			f.Close()
			return "", fmt.Errorf("encode %s: %w", dst, err)
		}
		return dst, f.Close()
	}

	dst := r.Target(index, code, filepath.Ext(srcPath))
	return dst, copyFile(srcPath, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
