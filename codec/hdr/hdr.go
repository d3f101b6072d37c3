// Package hdr writes and reads Radiance RGBE images through
// github.com/mdouchement/hdr.
package hdr

import (
	"image"
	"io"

	mhdr "github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Codec is the Radiance encoder and decoder. Only color is stored: alpha
// is dropped and negative values clamp to zero.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "hdr" }
func (Codec) Extensions() []string { return []string{"hdr", "rgbe"} }

// Policy always pads: RGBE has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func (Codec) Encode(w io.Writer, img *codec.Image, _ meta.Metadata, _ map[string]meta.Value) error {
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)
	colors, _ := codec.ColorPlanes(img)
	if len(colors) <= 1 {
		var p []float32
		if len(colors) == 1 {
			p = colors[0]
		}
		colors = [][]float32{p, p, p}
	}

	width, height := img.Data.Dx(), img.Data.Dy()
	m := mhdr.NewRGB(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			i := y*width + x
			m.SetRGB(x, y, hdrcolor.RGB{
				R: positive(codec.Sample(colors[0], i)),
				G: positive(codec.Sample(colors[1], i)),
				B: positive(codec.Sample(colors[2], i)),
			})
		}
	}
	return errors.Wrap(rgbe.Encode(w, m), "hdr: encode")
}

func positive(v float32) float64 {
	if !(v > 0) {
		return 0
	}
	return float64(v)
}

func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	src, err := rgbe.Decode(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "hdr: decode")
	}
	m, ok := src.(mhdr.Image)
	if !ok {
		return nil, nil, errors.Errorf("hdr: decoder returned %T", src)
	}
	b := m.Bounds()
	img := codec.NewImage(image.Rect(0, 0, b.Dx(), b.Dy()), codec.LayoutNames(3, false)...)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := m.HDRAt(x, y).HDRRGBA()
			img.Channels[0].Pixels[i] = float32(cr)
			img.Channels[1].Pixels[i] = float32(cg)
			img.Channels[2].Pixels[i] = float32(cb)
			i++
		}
	}
	md := meta.Metadata{
		"compression":            meta.String("rle"),
		meta.KeyPixelAspectRatio: meta.Float(1),
	}
	return img, md, nil
}
