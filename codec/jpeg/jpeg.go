// Package jpeg writes baseline JPEG files carrying an EXIF block with the
// standard metadata tags.
package jpeg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	stdjpeg "image/jpeg"
	"io"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/codec/tiff"
	"github.com/gkocov/gaffer/internal/ifd"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrCorrupt = errors.New("jpeg: corrupt file")
)

const (
	markerSOI  = 0xd8
	markerAPP1 = 0xe1
	markerSOS  = 0xda
)

var exifPrefix = []byte("Exif\x00\x00")

// Codec is the JPEG encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "jpeg" }
func (Codec) Extensions() []string { return []string{"jpg", "jpeg", "jpe"} }

// Policy always pads: JPEG has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func quality(opts map[string]meta.Value) (int, error) {
	v, ok := opts[options.CompressionQuality]
	if !ok {
		return 98, nil
	}
	q, ok := v.Int()
	if !ok || q < 0 || q > 100 {
		return 0, errors.Wrapf(codec.ErrInvalidOption, "jpeg compressionQuality %#v", v)
	}
	return max(int(q), 1), nil
}

// Encode writes the color channels of img. Alpha is dropped.
func (Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	q, err := quality(opts)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)

	planes, _ := codec.ColorPlanes(img)
	width, height := img.Data.Dx(), img.Data.Dy()
	bounds := image.Rect(0, 0, width, height)

	var src image.Image
	if len(planes) <= 1 {
		var p []float32
		if len(planes) == 1 {
			p = planes[0]
		}
		g := image.NewGray(bounds)
		for i := range g.Pix {
			g.Pix[i] = byte(codec.Quantize(codec.Sample(p, i), 0xff))
		}
		src = g
	} else {
		rgba := image.NewRGBA(bounds)
		for i := range width * height {
			rgba.Pix[4*i+0] = byte(codec.Quantize(codec.Sample(planes[0], i), 0xff))
			rgba.Pix[4*i+1] = byte(codec.Quantize(codec.Sample(planes[1], i), 0xff))
			rgba.Pix[4*i+2] = byte(codec.Quantize(codec.Sample(planes[2], i), 0xff))
			rgba.Pix[4*i+3] = 0xff
		}
		src = rgba
	}

	var body bytes.Buffer
	if err := stdjpeg.Encode(&body, src, &stdjpeg.Options{Quality: q}); err != nil {
		return errors.Wrap(err, "jpeg: encode")
	}
	data := body.Bytes()

	exif := exifBlock(md, img.Aspect())
	if len(exif)+2 > 0xffff {
		return errors.Wrap(codec.ErrInvalidImage, "jpeg: metadata too large for EXIF")
	}
	var seg [4]byte
	seg[0], seg[1] = 0xff, markerAPP1
	binary.BigEndian.PutUint16(seg[2:], uint16(len(exif)+2))

	for _, b := range [][]byte{data[:2], seg[:], exif, data[2:]} {
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

func exifBlock(md meta.Metadata, aspect float64) []byte {
	order := binary.BigEndian
	d := ifd.New(order)
	tiff.SetMetadataTags(d, md, aspect)
	out := append([]byte{}, exifPrefix...)
	out = append(out, ifd.Header(order, 8)...)
	return append(out, d.Encode(8, 0)...)
}

// Decode reads a JPEG file and the metadata of its EXIF block.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	md := meta.Metadata{}
	aspect, err := readExif(data, md)
	if err != nil {
		return nil, nil, err
	}

	src, err := stdjpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "jpeg: decode")
	}
	b := src.Bounds()
	gray := src.ColorModel() == color.GrayModel
	colors := 3
	if gray {
		colors = 1
	}
	img := codec.NewImage(image.Rect(0, 0, b.Dx(), b.Dy()), codec.LayoutNames(colors, false)...)
	img.PixelAspect = aspect
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := src.At(x, y).RGBA()
			img.Channels[0].Pixels[i] = codec.Dequantize(cr>>8, 0xff)
			if !gray {
				img.Channels[1].Pixels[i] = codec.Dequantize(cg>>8, 0xff)
				img.Channels[2].Pixels[i] = codec.Dequantize(cb>>8, 0xff)
			}
			i++
		}
	}
	md[meta.KeyPixelAspectRatio] = meta.Float(aspect)
	md[meta.KeyBitsPerSample] = meta.Int(8)
	return img, md, nil
}

// readExif scans the header segments for an EXIF block and returns the
// pixel aspect ratio it records.
func readExif(data []byte, md meta.Metadata) (float64, error) {
	if len(data) < 2 || data[0] != 0xff || data[1] != markerSOI {
		return 0, errors.Wrap(ErrCorrupt, "missing SOI marker")
	}
	p := data[2:]
	for len(p) >= 4 && p[0] == 0xff {
		marker := p[1]
		if marker == markerSOS {
			break
		}
		n := int(binary.BigEndian.Uint16(p[2:]))
		if n < 2 || 2+n > len(p) {
			return 0, errors.Wrap(ErrCorrupt, "truncated segment")
		}
		body := p[4 : 2+n]
		p = p[2+n:]
		if marker != markerAPP1 || !bytes.HasPrefix(body, exifPrefix) {
			continue
		}

		tiffData := body[len(exifPrefix):]
		order, first, err := ifd.ParseHeader(tiffData)
		if err != nil {
			return 0, errors.Wrap(err, "jpeg: exif")
		}
		d, _, err := ifd.Read(tiffData, order, first)
		if err != nil {
			return 0, errors.Wrap(err, "jpeg: exif")
		}
		return tiff.MetadataTags(d, md), nil
	}
	return 1, nil
}
