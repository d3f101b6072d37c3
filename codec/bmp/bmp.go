// Package bmp writes and reads Windows bitmaps through golang.org/x/image/bmp.
package bmp

import (
	"encoding/binary"
	"image"
	"image/color"
	"io"

	"github.com/pkg/errors"
	xbmp "golang.org/x/image/bmp"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Codec is the BMP encoder and decoder. Gray images are stored with an
// 8-bit palette and everything else without alpha as 24-bit RGB, both
// through x/image/bmp. Images with alpha are stored as 32-bit straight
// BGRA behind a BITMAPV4HEADER whose alpha mask makes readers keep the
// alpha byte.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "bmp" }
func (Codec) Extensions() []string { return []string{"bmp"} }

// Policy always pads: BMP has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func (Codec) Encode(w io.Writer, img *codec.Image, _ meta.Metadata, _ map[string]meta.Value) error {
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)
	colors, alpha := codec.ColorPlanes(img)
	bounds := image.Rect(0, 0, img.Data.Dx(), img.Data.Dy())
	n := bounds.Dx() * bounds.Dy()

	var m image.Image
	if len(colors) <= 1 && alpha == nil {
		var p []float32
		if len(colors) == 1 {
			p = colors[0]
		}
		g := image.NewGray(bounds)
		for i := range n {
			g.Pix[i] = byte(codec.Quantize(codec.Sample(p, i), 0xff))
		}
		m = g
	} else {
		if len(colors) <= 1 {
			var p []float32
			if len(colors) == 1 {
				p = colors[0]
			}
			colors = [][]float32{p, p, p}
		}
		if alpha != nil {
			return encodeAlpha(w, bounds, colors, alpha)
		}
		rgba := image.NewNRGBA(bounds)
		for i := range n {
			for c := range 3 {
				rgba.Pix[4*i+c] = byte(codec.Quantize(codec.Sample(colors[c], i), 0xff))
			}
			rgba.Pix[4*i+3] = 0xff
		}
		m = rgba
	}
	return errors.Wrap(xbmp.Encode(w, m), "bmp: encode")
}

// Bitmap header sizes and the BI_BITFIELDS compression.
const (
	fileHeaderLen = 14
	v4HeaderLen   = 108
	biBitfields   = 3
)

// encodeAlpha writes a bottom-up 32-bit bitmap with a BITMAPV4HEADER.
// x/image/bmp only writes BITMAPINFOHEADER, whose fourth byte readers
// treat as padding.
func encodeAlpha(w io.Writer, bounds image.Rectangle, colors [][]float32, alpha []float32) error {
	dx, dy := bounds.Dx(), bounds.Dy()
	size := 4 * dx * dy
	hdr := make([]byte, fileHeaderLen+v4HeaderLen)
	le := binary.LittleEndian
	copy(hdr, "BM")
	le.PutUint32(hdr[2:], uint32(len(hdr)+size))
	le.PutUint32(hdr[10:], uint32(len(hdr)))
	le.PutUint32(hdr[14:], v4HeaderLen)
	le.PutUint32(hdr[18:], uint32(dx))
	le.PutUint32(hdr[22:], uint32(dy))
	le.PutUint16(hdr[26:], 1)
	le.PutUint16(hdr[28:], 32)
	le.PutUint32(hdr[30:], biBitfields)
	le.PutUint32(hdr[34:], uint32(size))
	for i, mask := range []uint32{0x00ff0000, 0x0000ff00, 0x000000ff, 0xff000000} {
		le.PutUint32(hdr[54+4*i:], mask)
	}
	copy(hdr[70:], "BGRs")

	pix := make([]byte, size)
	o := 0
	for y := dy - 1; y >= 0; y-- {
		for x := range dx {
			i := y*dx + x
			a := alpha[i]
			for c := range 3 {
				pix[o+2-c] = byte(codec.Quantize(codec.Unpremultiply(codec.Sample(colors[c], i), a), 0xff))
			}
			pix[o+3] = byte(codec.Quantize(a, 0xff))
			o += 4
		}
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}
	_, err := w.Write(pix)
	return err
}

// Decode reads a bitmap. Palettes holding only grays decode to a single
// luminance channel.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	src, err := xbmp.Decode(r)
	if err != nil {
		return nil, nil, errors.Wrap(err, "bmp: decode")
	}
	b := src.Bounds()
	colors := 3
	if p, ok := src.(*image.Paletted); ok && grayPalette(p.Palette) {
		colors = 1
	}
	hasAlpha := src.ColorModel() == color.NRGBAModel

	img := codec.NewImage(image.Rect(0, 0, b.Dx(), b.Dy()), codec.LayoutNames(colors, hasAlpha)...)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, ca := src.At(x, y).RGBA()
			img.Channels[0].Pixels[i] = codec.Dequantize(cr, 0xffff)
			if colors == 3 {
				img.Channels[1].Pixels[i] = codec.Dequantize(cg, 0xffff)
				img.Channels[2].Pixels[i] = codec.Dequantize(cb, 0xffff)
			}
			if hasAlpha {
				img.Channels[colors].Pixels[i] = codec.Dequantize(ca, 0xffff)
			}
			i++
		}
	}
	md := meta.Metadata{
		"compression":            meta.String("none"),
		meta.KeyBitsPerSample:    meta.Int(8),
		meta.KeyPixelAspectRatio: meta.Float(1),
	}
	return img, md, nil
}

func grayPalette(p color.Palette) bool {
	for _, c := range p {
		r, g, b, _ := c.RGBA()
		if r != g || g != b {
			return false
		}
	}
	return true
}
