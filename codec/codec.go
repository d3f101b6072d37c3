// Package codec defines the boundary between the image writer and the file
// format encoders. Encoders receive images in file space: rectangles use
// the image package convention, y pointing down, and pixel rows are stored
// top first.
package codec

import (
	"errors"
	"fmt"
	"image"
	"io"
	"slices"
	"strings"

	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Codec errors
var (
	ErrNoFormatWriter = errors.New("codec: no writer for file format")
	ErrNoFormatReader = errors.New("codec: no reader for file format")
	ErrInvalidImage   = errors.New("codec: invalid image")
	ErrInvalidOption  = errors.New("codec: invalid option value")
)

// Channel is one named plane of pixel data.
type Channel struct {
	Name string
	// Pixels holds one sample per pixel of the data window, row-major with
	// the top row first.
	Pixels []float32
}

// Image is a set of channels sharing a data window.
type Image struct {
	Display     image.Rectangle
	Data        image.Rectangle
	Channels    []Channel
	PixelAspect float64
}

// Validate checks that every channel covers the data window exactly.
func (img *Image) Validate() error {
	if img.Display.Empty() {
		return fmt.Errorf("%w: empty display window", ErrInvalidImage)
	}
	n := img.Data.Dx() * img.Data.Dy()
	for _, c := range img.Channels {
		if len(c.Pixels) != n {
			return fmt.Errorf("%w: channel %q has %d pixels, data window %v needs %d",
				ErrInvalidImage, c.Name, len(c.Pixels), img.Data, n)
		}
	}
	return nil
}

// Channel returns the channel with the given name.
func (img *Image) Channel(name string) (Channel, bool) {
	for _, c := range img.Channels {
		if c.Name == name {
			return c, true
		}
	}
	return Channel{}, false
}

// ChannelNames returns the channel names in storage order.
func (img *Image) ChannelNames() []string {
	names := make([]string, len(img.Channels))
	for i, c := range img.Channels {
		names[i] = c.Name
	}
	return names
}

// Aspect returns the pixel aspect ratio, defaulting to 1.
func (img *Image) Aspect() float64 {
	if img.PixelAspect <= 0 {
		return 1
	}
	return img.PixelAspect
}

// At returns the sample of channel c at file-space pixel (x, y), or 0
// outside the data window.
func (img *Image) At(c int, x, y int) float32 {
	if !(image.Point{x, y}).In(img.Data) {
		return 0
	}
	return img.Channels[c].Pixels[(y-img.Data.Min.Y)*img.Data.Dx()+x-img.Data.Min.X]
}

// Expand returns a copy of img whose data window is r, filling pixels
// outside the old data window with zero.
func (img *Image) Expand(r image.Rectangle) *Image {
	out := &Image{Display: img.Display, Data: r, PixelAspect: img.PixelAspect}
	for ci, c := range img.Channels {
		px := make([]float32, r.Dx()*r.Dy())
		i := 0
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				px[i] = img.At(ci, x, y)
				i++
			}
		}
		out.Channels = append(out.Channels, Channel{Name: c.Name, Pixels: px})
	}
	return out
}

// Encoder writes images in one file format.
type Encoder interface {
	// Format returns the name of the format's option set.
	Format() string
	// Extensions returns the lower-case file extensions, without the dot,
	// handled by the encoder.
	Extensions() []string
	// Policy returns how the encoder stores data windows for the given
	// option values.
	Policy(opts map[string]meta.Value) window.Policy
	// Encode writes img. The data window of img is the one to report in
	// the file.
	Encode(w io.Writer, img *Image, md meta.Metadata, opts map[string]meta.Value) error
}

// Decoder reads images in one file format.
type Decoder interface {
	Decode(r io.Reader) (*Image, meta.Metadata, error)
}

// Ext returns the lower-case extension of path without the dot.
func Ext(path string) string {
	i := strings.LastIndexAny(path, "./\\")
	if i < 0 || path[i] != '.' {
		return ""
	}
	return strings.ToLower(path[i+1:])
}

var channelRank = map[string]int{"R": 0, "G": 1, "B": 2, "A": 3}

// SortChannels orders names with R, G, B and A first, then the remaining
// names alphabetically. The slice is sorted in place.
func SortChannels(names []string) {
	slices.SortFunc(names, func(a, b string) int {
		ra, oka := channelRank[a]
		rb, okb := channelRank[b]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		}
		return strings.Compare(a, b)
	})
}
