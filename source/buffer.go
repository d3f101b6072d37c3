package source

import (
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Buffer is an image held in memory. Each plane stores one sample per pixel
// of the data window, row-major with the top row first.
type Buffer struct {
	display window.Box
	data    window.Box
	aspect  float64
	names   []string
	planes  map[string][]float32
	md      meta.Metadata

	once sync.Once
	hash uint64
}

// NewBuffer returns a buffer with zeroed planes for the given channels.
func NewBuffer(display, data window.Box, channels ...string) *Buffer {
	if data.IsEmpty() {
		data = window.Box{}
	}
	b := &Buffer{
		display: display,
		data:    data,
		aspect:  1,
		planes:  make(map[string][]float32, len(channels)),
		md:      meta.Metadata{},
	}
	for _, c := range channels {
		if _, ok := b.planes[c]; ok {
			continue
		}
		b.names = append(b.names, c)
		b.planes[c] = make([]float32, data.Area())
	}
	codec.SortChannels(b.names)
	return b
}

// Generate returns a buffer whose pixels are given by f.
func Generate(display, data window.Box, channels []string, f func(channel string, x, y int) float32) *Buffer {
	b := NewBuffer(display, data, channels...)
	for _, c := range b.names {
		plane := b.planes[c]
		i := 0
		for y := data.Max.Y - 1; y >= data.Min.Y; y-- {
			for x := data.Min.X; x < data.Max.X; x++ {
				plane[i] = f(c, x, y)
				i++
			}
		}
	}
	return b
}

// FromCodec converts a decoded file-space image into a buffer.
func FromCodec(img *codec.Image, md meta.Metadata) (*Buffer, error) {
	if err := img.Validate(); err != nil {
		return nil, err
	}
	d := img.Display
	display := window.NewBox(d.Min.X, d.Min.Y, d.Max.X, d.Max.Y)
	data := window.FromFile(display, img.Data)

	b := &Buffer{
		display: display,
		data:    data,
		aspect:  img.Aspect(),
		planes:  make(map[string][]float32, len(img.Channels)),
		md:      md.Clone(),
	}
	for _, c := range img.Channels {
		if _, ok := b.planes[c.Name]; ok {
			return nil, fmt.Errorf("%w: duplicate channel %q", codec.ErrInvalidImage, c.Name)
		}
		b.names = append(b.names, c.Name)
		b.planes[c.Name] = slices.Clone(c.Pixels)
	}
	codec.SortChannels(b.names)
	return b, nil
}

// SetPixelAspect sets the pixel aspect ratio. It must be called before the
// buffer is shared.
func (b *Buffer) SetPixelAspect(aspect float64) { b.aspect = aspect }

// SetMetadata replaces the metadata. It must be called before the buffer
// is shared.
func (b *Buffer) SetMetadata(md meta.Metadata) { b.md = md.Clone() }

// Set stores a sample. Pixels outside the data window are ignored. It must
// be called before the buffer is shared.
func (b *Buffer) Set(channel string, x, y int, v float32) {
	plane, ok := b.planes[channel]
	if !ok || !b.data.Contains(x, y) {
		return
	}
	plane[(b.data.Max.Y-1-y)*b.data.Width()+x-b.data.Min.X] = v
}

func (b *Buffer) DisplayWindow() window.Box { return b.display }
func (b *Buffer) DataWindow() window.Box    { return b.data }
func (b *Buffer) PixelAspect() float64      { return b.aspect }
func (b *Buffer) ChannelNames() []string    { return slices.Clone(b.names) }
func (b *Buffer) Metadata() meta.Metadata   { return b.md.Clone() }

func (b *Buffer) Pixels(channel string, win window.Box) iter.Seq[float32] {
	plane := b.planes[channel]
	return func(yield func(float32) bool) {
		if win.IsEmpty() {
			return
		}
		w := b.data.Width()
		for y := win.Max.Y - 1; y >= win.Min.Y; y-- {
			for x := win.Min.X; x < win.Max.X; x++ {
				var v float32
				if plane != nil && b.data.Contains(x, y) {
					v = plane[(b.data.Max.Y-1-y)*w+x-b.data.Min.X]
				}
				if !yield(v) {
					return
				}
			}
		}
	}
}

func (b *Buffer) ContentFingerprint() uint64 {
	b.once.Do(func() {
		h := newDigest("buffer")
		hashImage(h, b)
		for _, c := range b.names {
			for _, v := range b.planes[c] {
				h.f32(v)
			}
		}
		b.hash = h.sum()
	})
	return b.hash
}
