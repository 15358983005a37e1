package analyzer

import "image"

// Detector decides whether a region carries enough structure to be worth
// sending to the backend.
type Detector interface {
	Blank(img image.Image, r image.Rectangle) bool
}
