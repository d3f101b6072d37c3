// Package jp2 writes and reads lossless JPEG 2000 images, both JP2 files
// and raw codestreams. Headers are read with github.com/mrjoshuak/go-jpeg2000;
// pixels go through the package's own wavelet, code block and packet
// coders.
//
// Components follow the channel layout: one for luminance, two for
// luminance and alpha, three for RGB and four for RGBA. Alpha is stored
// straight.
package jp2

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"

	"github.com/mrjoshuak/go-jpeg2000"
	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrCorrupt     = errors.New("jp2: corrupt file")
	ErrUnsupported = errors.New("jp2: unsupported coding")
	ErrVerify      = errors.New("jp2: encoded image does not decode to its source")
)

// JP2 colour spaces
const (
	enumSRGB = 16
	enumGray = 17
)

// Codec is the JPEG 2000 encoder and decoder. Files are written
// losslessly, in a JP2 container unless Codestream is set.
type Codec struct {
	Codestream bool
}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string { return "jpeg2000" }

func (c Codec) Extensions() []string {
	if c.Codestream {
		return []string{"j2k", "j2c"}
	}
	return []string{"jp2"}
}

// Policy always pads: JPEG 2000 images here have no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func bitDepth(opts map[string]meta.Value) (int, error) {
	v, ok := opts[options.DataType]
	if !ok {
		return 8, nil
	}
	switch s, _ := v.Str(); s {
	case "uint8":
		return 8, nil
	case "uint16":
		return 16, nil
	}
	return 0, errors.Wrapf(codec.ErrInvalidOption, "jpeg2000 dataType %#v", v)
}

// Encode writes img and checks that the written codestream decodes back
// to the quantized samples before anything reaches w.
func (c Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	depth, err := bitDepth(opts)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)

	p, gray, alpha := toPlanes(img, depth)
	software, _ := md.Text(meta.KeySoftware)
	cs, err := encodeCodestream(p, software)
	if err != nil {
		return err
	}
	if err := verify(cs, p); err != nil {
		return err
	}
	if !c.Codestream {
		cs = wrapJP2(cs, p, gray, alpha)
	}
	_, err = w.Write(cs)
	return err
}

func verify(cs []byte, want *planes) error {
	got, err := decodeCodestream(cs)
	if err != nil {
		return errors.Wrapf(ErrVerify, "%v", err)
	}
	if got.w != want.w || got.h != want.h || len(got.comps) != len(want.comps) {
		return errors.Wrapf(ErrVerify, "decoded %dx%d with %d components", got.w, got.h, len(got.comps))
	}
	for c := range want.comps {
		for i, v := range want.comps[c] {
			if got.comps[c][i] != v {
				return errors.Wrapf(ErrVerify, "component %d sample %d is %d, wrote %d", c, i, got.comps[c][i], v)
			}
		}
	}
	return nil
}

// toPlanes quantizes img into one component per stored channel.
func toPlanes(img *codec.Image, depth int) (p *planes, gray, hasAlpha bool) {
	colors, alpha := codec.ColorPlanes(img)
	n := img.Data.Dx() * img.Data.Dy()
	maxValue := uint32(1)<<depth - 1
	p = &planes{w: img.Data.Dx(), h: img.Data.Dy(), prec: depth}

	if len(colors) == 0 {
		colors = [][]float32{nil}
	}
	for _, plane := range colors {
		q := make([]int32, n)
		for i := range q {
			a := float32(1)
			if alpha != nil {
				a = alpha[i]
			}
			q[i] = int32(codec.Quantize(codec.Unpremultiply(codec.Sample(plane, i), a), maxValue))
		}
		p.comps = append(p.comps, q)
	}
	if alpha != nil {
		q := make([]int32, n)
		for i, a := range alpha {
			q[i] = int32(codec.Quantize(a, maxValue))
		}
		p.comps = append(p.comps, q)
	}
	return p, len(colors) == 1, alpha != nil
}

func appendBox(dst []byte, typ string, body []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(8+len(body)))
	dst = append(dst, typ...)
	return append(dst, body...)
}

// wrapJP2 places cs in a JP2 file with an image header, an enumerated
// colour space and, with alpha, a channel definition.
func wrapJP2(cs []byte, p *planes, gray, alpha bool) []byte {
	nc := len(p.comps)
	ihdr := binary.BigEndian.AppendUint32(nil, uint32(p.h))
	ihdr = binary.BigEndian.AppendUint32(ihdr, uint32(p.w))
	ihdr = binary.BigEndian.AppendUint16(ihdr, uint16(nc))
	// Bit depth less one, wavelet compression, colour space known, no IPR.
	ihdr = append(ihdr, byte(p.prec-1), 7, 0, 0)

	space := uint32(enumSRGB)
	if gray {
		space = enumGray
	}
	colr := binary.BigEndian.AppendUint32([]byte{1, 0, 0}, space)

	jp2h := appendBox(nil, "ihdr", ihdr)
	jp2h = appendBox(jp2h, "colr", colr)
	if alpha {
		cdef := binary.BigEndian.AppendUint16(nil, uint16(nc))
		for i := range nc {
			typ, assoc := 0, i+1
			if i == nc-1 {
				typ, assoc = 1, 0
			}
			for _, v := range []int{i, typ, assoc} {
				cdef = binary.BigEndian.AppendUint16(cdef, uint16(v))
			}
		}
		jp2h = appendBox(jp2h, "cdef", cdef)
	}

	out := appendBox(nil, "jP  ", []byte{0x0d, 0x0a, 0x87, 0x0a})
	out = appendBox(out, "ftyp", []byte("jp2 \x00\x00\x00\x00jp2 "))
	out = appendBox(out, "jp2h", jp2h)
	return appendBox(out, "jp2c", cs)
}

func isCodestream(data []byte) bool {
	return len(data) >= 2 && binary.BigEndian.Uint16(data) == markerSOC
}

// findCodestream locates the contents of the jp2c box.
func findCodestream(data []byte) ([]byte, error) {
	for pos := 0; pos+8 <= len(data); {
		size := uint64(binary.BigEndian.Uint32(data[pos:]))
		typ := string(data[pos+4 : pos+8])
		header := uint64(8)
		switch size {
		case 0:
			size = uint64(len(data) - pos)
		case 1:
			if pos+16 > len(data) {
				return nil, errors.Wrap(ErrCorrupt, "truncated box header")
			}
			size = binary.BigEndian.Uint64(data[pos+8:])
			header = 16
		}
		if size < header || uint64(pos)+size > uint64(len(data)) {
			return nil, errors.Wrapf(ErrCorrupt, "box %q size %d", typ, size)
		}
		if typ == "jp2c" {
			return data[pos+int(header) : pos+int(size)], nil
		}
		pos += int(size)
	}
	return nil, errors.Wrap(ErrCorrupt, "no codestream box")
}

// Decode reads a JP2 file or a raw codestream. Colour samples are
// returned premultiplied by alpha.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	info, err := jpeg2000.DecodeMetadata(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "jp2: decode")
	}
	cs := data
	if !isCodestream(data) {
		if cs, err = findCodestream(data); err != nil {
			return nil, nil, err
		}
	}
	p, err := decodeCodestream(cs)
	if err != nil {
		return nil, nil, err
	}
	if p.w != info.Width || p.h != info.Height || len(p.comps) != info.NumComponents {
		return nil, nil, errors.Wrapf(ErrCorrupt, "header reports %dx%d with %d components",
			info.Width, info.Height, info.NumComponents)
	}

	var colors int
	var hasAlpha bool
	switch len(p.comps) {
	case 1, 2:
		colors, hasAlpha = 1, len(p.comps) == 2
	case 3, 4:
		colors, hasAlpha = 3, len(p.comps) == 4
	default:
		return nil, nil, errors.Wrapf(ErrUnsupported, "%d components", len(p.comps))
	}

	img := codec.NewImage(image.Rect(0, 0, p.w, p.h), codec.LayoutNames(colors, hasAlpha)...)
	maxValue := uint32(1)<<p.prec - 1
	for c, ch := range img.Channels {
		for i, v := range p.comps[c] {
			ch.Pixels[i] = codec.Dequantize(uint32(v), maxValue)
		}
	}
	if hasAlpha {
		a := img.Channels[colors].Pixels
		for _, ch := range img.Channels[:colors] {
			for i := range ch.Pixels {
				ch.Pixels[i] *= a[i]
			}
		}
	}

	md := meta.Metadata{
		"compression":            meta.String("jpeg2000"),
		meta.KeyBitsPerSample:    meta.Int(int64(p.prec)),
		meta.KeyPixelAspectRatio: meta.Float(1),
	}
	if info.Comment != "" {
		md[meta.KeySoftware] = meta.String(info.Comment)
	}
	return img, md, nil
}
