// Package tga reads and writes 8-bit Truevision TGA files with an optional
// run-length encoding and a TGA 2.0 extension area.
package tga

import (
	"bytes"
	"encoding/binary"
	"image"
	"io"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrUnsupported = errors.New("tga: unsupported file feature")
	ErrCorrupt     = errors.New("tga: corrupt file")
)

// Image types
const (
	typeTrueColor    = 2
	typeGray         = 3
	typeRLETrueColor = 10
	typeRLEGray      = 11
)

const (
	headerSize    = 18
	extensionSize = 495
	footerSize    = 26
	signature     = "TRUEVISION-XFILE.\x00"

	// descriptorTopLeft marks rows stored top first.
	descriptorTopLeft = 0x20

	attributesStraight      = 3
	attributesPremultiplied = 4

	maxPacket = 128
)

// Codec is the TGA encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "targa" }
func (Codec) Extensions() []string { return []string{"tga", "tpic"} }

// Policy always pads: TGA has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func useRLE(opts map[string]meta.Value) (bool, error) {
	v, ok := opts[options.Compression]
	if !ok {
		return true, nil
	}
	switch s, _ := v.Str(); s {
	case "rle":
		return true, nil
	case "none":
		return false, nil
	}
	return false, errors.Wrapf(codec.ErrInvalidOption, "targa compression %#v", v)
}

// Encode writes img with rows stored top first and straight alpha.
func (Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	rle, err := useRLE(opts)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)

	colors, alpha := codec.ColorPlanes(img)
	gray := len(colors) <= 1
	if len(colors) == 0 {
		colors = [][]float32{nil}
	}
	imageType := byte(typeTrueColor)
	if gray {
		imageType = typeGray
	}
	if rle {
		imageType += 8
	}
	// Stored order is B, G, R.
	planes := colors
	if !gray {
		planes = [][]float32{colors[2], colors[1], colors[0]}
	}
	if alpha != nil {
		planes = append(planes, alpha)
	}
	bpp := len(planes)
	width, height := img.Data.Dx(), img.Data.Dy()
	if width > math.MaxUint16 || height > math.MaxUint16 {
		return errors.Wrapf(codec.ErrInvalidImage, "tga: image %dx%d too large", width, height)
	}

	var alphaBits byte
	if alpha != nil {
		alphaBits = 8
	}
	buf := xdr.NewBuffer(headerSize + width*height*bpp)
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(imageType)
	buf.WriteZeros(5)
	buf.WriteUint16(0)
	buf.WriteUint16(0)
	buf.WriteUint16(uint16(width))
	buf.WriteUint16(uint16(height))
	buf.WriteByte(byte(8 * bpp))
	buf.WriteByte(descriptorTopLeft | alphaBits)

	row := make([]byte, width*bpp)
	for y := range height {
		for x := range width {
			i := y*width + x
			a := codec.Sample(alpha, i)
			for c, p := range planes {
				v := codec.Sample(p, i)
				if alpha != nil && c < len(colors) {
					v = codec.Unpremultiply(v, a)
				}
				row[x*bpp+c] = byte(codec.Quantize(v, 0xff))
			}
		}
		if rle {
			buf.WriteBytes(encodeRow(nil, row, bpp))
		} else {
			buf.WriteBytes(row)
		}
	}

	extOffset := buf.Len()
	writeExtension(buf, md, img.Aspect(), alpha != nil)
	buf.WriteUint32(uint32(extOffset))
	buf.WriteUint32(0)
	buf.WriteBytes([]byte(signature))

	_, err = w.Write(buf.Bytes())
	return err
}

// encodeRow appends the run-length packets for one row of pixels.
func encodeRow(dst, row []byte, bpp int) []byte {
	n := len(row) / bpp
	px := func(i int) []byte { return row[i*bpp : (i+1)*bpp] }
	for i := 0; i < n; {
		run := 1
		for i+run < n && run < maxPacket && bytes.Equal(px(i), px(i+run)) {
			run++
		}
		if run > 1 {
			dst = append(dst, byte(0x80|(run-1)))
			dst = append(dst, px(i)...)
			i += run
			continue
		}
		j := i + 1
		for j < n && j-i < maxPacket && !(j+1 < n && bytes.Equal(px(j), px(j+1))) {
			j++
		}
		dst = append(dst, byte(j-i-1))
		dst = append(dst, row[i*bpp:j*bpp]...)
		i = j
	}
	return dst
}

// decodeRLE expands packets into dst, which holds a whole image.
func decodeRLE(dst, src []byte, bpp int) error {
	r := xdr.NewReader(src)
	for pos := 0; pos < len(dst); {
		h, err := r.ReadByte()
		if err != nil {
			return errors.Wrap(ErrCorrupt, "truncated packet")
		}
		count := int(h&0x7f) + 1
		if pos+count*bpp > len(dst) {
			return errors.Wrap(ErrCorrupt, "packet overruns image")
		}
		if h&0x80 != 0 {
			px, err := r.ReadBytes(bpp)
			if err != nil {
				return errors.Wrap(ErrCorrupt, "truncated packet")
			}
			for range count {
				pos += copy(dst[pos:], px)
			}
			continue
		}
		raw, err := r.ReadBytes(count * bpp)
		if err != nil {
			return errors.Wrap(ErrCorrupt, "truncated packet")
		}
		pos += copy(dst[pos:], raw)
	}
	return nil
}

func writeExtension(buf *xdr.Buffer, md meta.Metadata, aspect float64, hasAlpha bool) {
	text := func(key string) string {
		s, _ := md.Text(key)
		return s
	}
	buf.WriteUint16(extensionSize)
	buf.WriteStringN(text(meta.KeyArtist), 41)
	buf.WriteStringN(text(meta.KeyImageDescription), 324)

	var stamp [6]uint16
	if t, err := time.Parse(meta.DateTimeLayout, text(meta.KeyDateTime)); err == nil {
		stamp = [6]uint16{uint16(t.Month()), uint16(t.Day()), uint16(t.Year()), uint16(t.Hour()), uint16(t.Minute()), uint16(t.Second())}
	}
	for _, v := range stamp {
		buf.WriteUint16(v)
	}
	buf.WriteStringN(text(meta.KeyDocumentName), 41)
	buf.WriteZeros(6)
	buf.WriteStringN(text(meta.KeySoftware), 41)
	buf.WriteZeros(3)
	buf.WriteUint32(0)

	num, den := math.Round(aspect*1000), 1000.0
	for num > math.MaxUint16 {
		num, den = math.Round(num/10), den/10
	}
	g := gcd(uint16(num), uint16(den))
	buf.WriteUint16(uint16(num) / g)
	buf.WriteUint16(uint16(den) / g)
	buf.WriteUint16(0)
	buf.WriteUint16(0)
	buf.WriteUint32(0)
	buf.WriteUint32(0)
	buf.WriteUint32(0)
	if hasAlpha {
		buf.WriteByte(attributesStraight)
	} else {
		buf.WriteByte(0)
	}
}

func gcd(a, b uint16) uint16 {
	for b != 0 {
		a, b = b, a%b
	}
	return max(a, 1)
}

type extension struct {
	md         meta.Metadata
	aspect     float64
	attributes byte
}

func readExtension(data []byte) (extension, error) {
	ext := extension{md: meta.Metadata{}, aspect: 1, attributes: attributesStraight}
	if len(data) < headerSize+footerSize || string(data[len(data)-18:]) != signature {
		return ext, nil
	}
	off := int(binary.LittleEndian.Uint32(data[len(data)-footerSize:]))
	if off == 0 {
		return ext, nil
	}
	if off+extensionSize > len(data)-footerSize {
		return ext, errors.Wrap(ErrCorrupt, "extension area out of range")
	}

	r := xdr.NewReader(data[off : off+extensionSize])
	if size, _ := r.ReadUint16(); size != extensionSize {
		return ext, errors.Wrapf(ErrCorrupt, "extension area size %d", size)
	}
	set := func(key, s string) {
		if s = strings.TrimRight(s, " "); s != "" {
			ext.md[key] = meta.String(s)
		}
	}
	author, _ := r.ReadStringN(41)
	set(meta.KeyArtist, author)
	comments, _ := r.ReadStringN(324)
	set(meta.KeyImageDescription, comments)

	var stamp [6]uint16
	for i := range stamp {
		stamp[i], _ = r.ReadUint16()
	}
	if stamp[0] != 0 && stamp[2] != 0 {
		t := time.Date(int(stamp[2]), time.Month(stamp[0]), int(stamp[1]), int(stamp[3]), int(stamp[4]), int(stamp[5]), 0, time.UTC)
		ext.md[meta.KeyDateTime] = meta.String(t.Format(meta.DateTimeLayout))
	}
	job, _ := r.ReadStringN(41)
	set(meta.KeyDocumentName, job)
	_ = r.Skip(6)
	software, _ := r.ReadStringN(41)
	set(meta.KeySoftware, software)
	_ = r.Skip(7)

	num, _ := r.ReadUint16()
	den, _ := r.ReadUint16()
	if num != 0 && den != 0 {
		ext.aspect = float64(num) / float64(den)
	}
	_ = r.Skip(16)
	ext.attributes, _ = r.ReadByte()
	return ext, nil
}

// Decode reads a true-color or gray TGA file with 8-bit samples.
func (Codec) Decode(rd io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, nil, err
	}
	if len(data) < headerSize {
		return nil, nil, errors.Wrap(ErrCorrupt, "truncated header")
	}
	r := xdr.NewReader(data)
	idLength, _ := r.ReadByte()
	colorMapType, _ := r.ReadByte()
	imageType, _ := r.ReadByte()
	_ = r.Skip(9)
	w, _ := r.ReadUint16()
	h, _ := r.ReadUint16()
	depth, _ := r.ReadByte()
	descriptor, _ := r.ReadByte()

	if colorMapType != 0 {
		return nil, nil, errors.Wrap(ErrUnsupported, "color-mapped image")
	}
	gray := imageType == typeGray || imageType == typeRLEGray
	rle := imageType == typeRLETrueColor || imageType == typeRLEGray
	if !gray && imageType != typeTrueColor && imageType != typeRLETrueColor {
		return nil, nil, errors.Wrapf(ErrUnsupported, "image type %d", imageType)
	}
	bpp := int(depth) / 8
	hasAlpha := descriptor&0x0f != 0
	switch {
	case depth%8 != 0:
		return nil, nil, errors.Wrapf(ErrUnsupported, "pixel depth %d", depth)
	case gray && (bpp < 1 || bpp > 2):
		return nil, nil, errors.Wrapf(ErrUnsupported, "gray pixel depth %d", depth)
	case !gray && (bpp < 3 || bpp > 4):
		return nil, nil, errors.Wrapf(ErrUnsupported, "color pixel depth %d", depth)
	}
	colors := 3
	if gray {
		colors = 1
	}
	hasAlpha = hasAlpha && bpp > colors

	width, height := int(w), int(h)
	pix := make([]byte, width*height*bpp)
	body := data[min(headerSize+int(idLength), len(data)):]
	if rle {
		if err := decodeRLE(pix, body, bpp); err != nil {
			return nil, nil, err
		}
	} else {
		if len(body) < len(pix) {
			return nil, nil, errors.Wrap(ErrCorrupt, "truncated image data")
		}
		copy(pix, body)
	}

	ext, err := readExtension(data)
	if err != nil {
		return nil, nil, err
	}

	img := codec.NewImage(image.Rect(0, 0, width, height), codec.LayoutNames(colors, hasAlpha)...)
	img.PixelAspect = ext.aspect
	premultiply := hasAlpha && ext.attributes != attributesPremultiplied
	for y := range height {
		srcY := y
		if descriptor&descriptorTopLeft == 0 {
			srcY = height - 1 - y
		}
		for x := range width {
			p := pix[(srcY*width+x)*bpp:]
			i := y*width + x
			a := float32(1)
			if hasAlpha {
				a = codec.Dequantize(uint32(p[colors]), 0xff)
				img.Channels[colors].Pixels[i] = a
			}
			for c := range colors {
				// Stored order is B, G, R.
				v := codec.Dequantize(uint32(p[colors-1-c]), 0xff)
				if premultiply {
					v *= a
				}
				img.Channels[c].Pixels[i] = v
			}
		}
	}

	md := ext.md
	md["compression"] = meta.String("none")
	if rle {
		md["compression"] = meta.String("rle")
	}
	md[meta.KeyBitsPerSample] = meta.Int(8)
	md[meta.KeyPixelAspectRatio] = meta.Float(ext.aspect)
	return img, md, nil
}
