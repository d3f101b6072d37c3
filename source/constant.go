package source

import (
	"iter"
	"maps"
	"math"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Constant is an image of uniform colour filling its display window.
type Constant struct {
	Format window.Box
	Aspect float64
	Values map[string]float32
	Meta   meta.Metadata
}

// NewConstant returns an RGBA constant over format.
func NewConstant(format window.Box, r, g, b, a float32) *Constant {
	return &Constant{
		Format: format,
		Aspect: 1,
		Values: map[string]float32{"R": r, "G": g, "B": b, "A": a},
	}
}

func (c *Constant) DisplayWindow() window.Box { return c.Format }
func (c *Constant) DataWindow() window.Box    { return c.Format }

func (c *Constant) PixelAspect() float64 {
	if c.Aspect <= 0 {
		return 1
	}
	return c.Aspect
}

func (c *Constant) ChannelNames() []string {
	names := make([]string, 0, len(c.Values))
	for n := range maps.Keys(c.Values) {
		names = append(names, n)
	}
	codec.SortChannels(names)
	return names
}

func (c *Constant) Metadata() meta.Metadata { return c.Meta.Clone() }

func (c *Constant) Pixels(channel string, win window.Box) iter.Seq[float32] {
	v := c.Values[channel]
	return func(yield func(float32) bool) {
		if win.IsEmpty() {
			return
		}
		for y := win.Max.Y - 1; y >= win.Min.Y; y-- {
			for x := win.Min.X; x < win.Max.X; x++ {
				s := float32(0)
				if c.Format.Contains(x, y) {
					s = v
				}
				if !yield(s) {
					return
				}
			}
		}
	}
}

func (c *Constant) ContentFingerprint() uint64 {
	h := newDigest("constant")
	hashImage(h, c)
	for _, n := range sortedNames(c.ChannelNames()) {
		h.u64(uint64(math.Float32bits(c.Values[n])))
	}
	return h.sum()
}
