package source

import (
	"iter"
	"math"

	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// WithMetadata overrides metadata entries of an image. Pixels are passed
// through unchanged.
type WithMetadata struct {
	Image
	Set    meta.Metadata
	Delete []string
}

func (w *WithMetadata) Metadata() meta.Metadata {
	md := w.Image.Metadata()
	for _, k := range w.Delete {
		delete(md, k)
	}
	md.Merge(w.Set)
	return md
}

func (w *WithMetadata) ContentFingerprint() uint64 {
	h := newDigest("metadata")
	h.u64(w.Image.ContentFingerprint())
	h.metadata(w.Metadata())
	return h.sum()
}

// Crop restricts the data window of an image to Area. The display window
// is unchanged.
type Crop struct {
	Image
	Area window.Box
}

func (c *Crop) DataWindow() window.Box {
	return c.Image.DataWindow().Intersect(c.Area)
}

func (c *Crop) Pixels(channel string, win window.Box) iter.Seq[float32] {
	data := c.DataWindow()
	return func(yield func(float32) bool) {
		if win.IsEmpty() {
			return
		}
		x, y := win.Min.X, win.Max.Y-1
		for v := range c.Image.Pixels(channel, win) {
			if !data.Contains(x, y) {
				v = 0
			}
			if !yield(v) {
				return
			}
			if x++; x == win.Max.X {
				x, y = win.Min.X, y-1
			}
		}
	}
}

func (c *Crop) ContentFingerprint() uint64 {
	h := newDigest("crop")
	h.u64(c.Image.ContentFingerprint())
	h.box(c.DataWindow())
	return h.sum()
}

// Reformat changes the pixel aspect ratio of an image.
type Reformat struct {
	Image
	Aspect float64
}

func (r *Reformat) PixelAspect() float64 { return r.Aspect }

func (r *Reformat) ContentFingerprint() uint64 {
	h := newDigest("reformat")
	h.u64(r.Image.ContentFingerprint())
	h.u64(math.Float64bits(r.Aspect))
	return h.sum()
}
