// Package dpx reads and writes single-element SMPTE 268M DPX files with
// 8, 10, 12 or 16-bit samples.
package dpx

import (
	"encoding/binary"
	"image"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrInvalidMagic = errors.New("dpx: invalid magic number")
	ErrUnsupported  = errors.New("dpx: unsupported file feature")
	ErrCorrupt      = errors.New("dpx: corrupt file")
)

// KeyPacking is the metadata key selecting packed or filled sample words.
const KeyPacking = "dpx:Packing"

// Packing values
const (
	Packed = "Packed"
	Filled = "Filled"
)

const (
	magic      = 0x53445058 // "SDPX"
	headerSize = 2048
	version    = "V2.0"

	genericSize  = 1664
	industrySize = 384
)

// Image element descriptors
const (
	descLuma = 6
	descRGB  = 50
	descRGBA = 51
)

// Packing field values
const (
	packingPacked  = 0
	packingMethodA = 1
	packingMethodB = 2
)

// Header field offsets
const (
	offImageHeader = 768
	offAspect      = 1628
)

const transferLinear = 2

var depths = map[string]int{
	"uint8":  8,
	"uint10": 10,
	"uint12": 12,
	"uint16": 16,
}

// Codec is the DPX encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "dpx" }
func (Codec) Extensions() []string { return []string{"dpx"} }

// Policy always pads: DPX has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func bitDepth(opts map[string]meta.Value) (int, error) {
	v, ok := opts[options.DataType]
	if !ok {
		return 10, nil
	}
	s, _ := v.Str()
	d, ok := depths[s]
	if !ok {
		return 0, errors.Wrapf(codec.ErrInvalidOption, "dpx dataType %#v", v)
	}
	return d, nil
}

// lineBytes is the size of one row of n samples, padded to a 32-bit word.
func lineBytes(n, depth int, packed bool) int {
	words := 0
	switch {
	case depth == 8:
		words = (n + 3) / 4
	case packed:
		words = (n*depth + 31) / 32
	case depth == 10:
		words = (n + 2) / 3
	default:
		words = (n + 1) / 2
	}
	return words * 4
}

// packLine stores samples into dst using the given word layout.
func packLine(dst []byte, samples []uint32, depth int, packing uint16, order xdr.ByteOrder) {
	switch {
	case depth == 8:
		for i, s := range samples {
			dst[i] = byte(s)
		}
	case depth == 10 && packing != packingPacked:
		for i := 0; i < len(samples); i += 3 {
			var word uint32
			for j := 0; j < 3 && i+j < len(samples); j++ {
				if packing == packingMethodA {
					word |= samples[i+j] << (22 - 10*j)
				} else {
					word |= samples[i+j] << (20 - 10*j)
				}
			}
			order.PutUint32(dst[4*(i/3):], word)
		}
	case packing == packingPacked && depth != 16:
		var acc uint64
		bits, pos := 0, 0
		for _, s := range samples {
			acc = acc<<depth | uint64(s)
			bits += depth
			if bits >= 32 {
				bits -= 32
				order.PutUint32(dst[pos:], uint32(acc>>bits))
				pos += 4
			}
		}
		if bits > 0 {
			order.PutUint32(dst[pos:], uint32(acc<<(32-bits)))
		}
	default:
		shift := 16 - depth
		for i, s := range samples {
			order.PutUint16(dst[2*i:], uint16(s<<shift))
		}
	}
}

// unpackLine is the inverse of packLine.
func unpackLine(src []byte, samples []uint32, depth int, packing uint16, order xdr.ByteOrder) {
	switch {
	case depth == 8:
		for i := range samples {
			samples[i] = uint32(src[i])
		}
	case depth == 10 && packing != packingPacked:
		for i := 0; i < len(samples); i += 3 {
			word := order.Uint32(src[4*(i/3):])
			for j := 0; j < 3 && i+j < len(samples); j++ {
				if packing == packingMethodA {
					samples[i+j] = word >> (22 - 10*j) & 0x3ff
				} else {
					samples[i+j] = word >> (20 - 10*j) & 0x3ff
				}
			}
		}
	case packing == packingPacked && depth != 16:
		var acc uint64
		bits, pos := 0, 0
		mask := uint64(1)<<depth - 1
		for i := range samples {
			if bits < depth {
				acc = acc<<32 | uint64(order.Uint32(src[pos:]))
				pos += 4
				bits += 32
			}
			bits -= depth
			samples[i] = uint32(acc >> bits & mask)
		}
	default:
		shift := 16 - depth
		for i := range samples {
			samples[i] = uint32(order.Uint16(src[2*i:]) >> shift)
		}
	}
}

// timestamp converts a DateTime value to the DPX "YYYY:MM:DD:hh:mm:ss"
// form and back.
func timestamp(dateTime string) string {
	if len(dateTime) >= 19 && dateTime[10] == ' ' {
		return dateTime[:10] + ":" + dateTime[11:19]
	}
	return dateTime
}

func dateTime(stamp string) string {
	if len(stamp) >= 19 && stamp[10] == ':' {
		return stamp[:10] + " " + stamp[11:19]
	}
	return stamp
}

// aspectRatio returns a reduced integer ratio approximating a.
func aspectRatio(a float64) (uint32, uint32) {
	num, den := uint32(math.Round(a*1000)), uint32(1000)
	x, y := num, den
	for y != 0 {
		x, y = y, x%y
	}
	if x > 1 {
		num, den = num/x, den/x
	}
	return num, den
}

// Encode writes img as a DPX file with one image element.
func (Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	depth, err := bitDepth(opts)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)

	colors, alpha := codec.ColorPlanes(img)
	var planes [][]float32
	descriptor := byte(descRGB)
	switch {
	case len(colors) == 0 && alpha == nil:
		planes, descriptor = [][]float32{nil}, descLuma
	case len(colors) <= 1 && alpha == nil:
		planes, descriptor = colors, descLuma
	case len(colors) <= 1:
		var c []float32
		if len(colors) == 1 {
			c = colors[0]
		}
		planes = [][]float32{c, c, c}
	default:
		planes = colors
	}
	if alpha != nil {
		planes = append(planes, alpha)
		descriptor = descRGBA
	}

	packing := uint16(packingMethodA)
	if s, _ := md.Text(KeyPacking); s == Packed && (depth == 10 || depth == 12) {
		packing = packingPacked
	}

	order := binary.BigEndian
	width, height := img.Data.Dx(), img.Data.Dy()
	stride := lineBytes(width*len(planes), depth, packing == packingPacked)
	maxValue := uint32(1)<<depth - 1

	stamp, _ := md.Text(meta.KeyDateTime)
	stamp = timestamp(stamp)
	creator, _ := md.Text(meta.KeySoftware)
	project, _ := md.Text(meta.KeyDocumentName)
	copyright, _ := md.Text(meta.KeyCopyright)

	h := xdr.NewBufferOrder(headerSize, order)
	// File information header.
	h.WriteUint32(magic)
	h.WriteUint32(headerSize)
	h.WriteStringN(version, 8)
	h.WriteUint32(uint32(headerSize + height*stride))
	h.WriteUint32(1)
	h.WriteUint32(genericSize)
	h.WriteUint32(industrySize)
	h.WriteUint32(0)
	h.WriteStringN("", 100)
	h.WriteStringN(stamp, 24)
	h.WriteStringN(creator, 100)
	h.WriteStringN(project, 200)
	h.WriteStringN(copyright, 200)
	h.WriteUint32(math.MaxUint32)
	h.WriteZeros(104)

	// Image information header, one element.
	h.WriteUint16(0)
	h.WriteUint16(1)
	h.WriteUint32(uint32(width))
	h.WriteUint32(uint32(height))
	h.WriteUint32(0)
	h.WriteUint32(0)
	h.WriteFloat32(0)
	h.WriteUint32(maxValue)
	h.WriteFloat32(float32(maxValue) / 1000)
	h.WriteByte(descriptor)
	h.WriteByte(transferLinear)
	h.WriteByte(transferLinear)
	h.WriteByte(byte(depth))
	h.WriteUint16(packing)
	h.WriteUint16(0)
	h.WriteUint32(headerSize)
	h.WriteUint32(0)
	h.WriteUint32(0)
	h.WriteStringN("", 32)
	h.WriteZeros(7*72 + 52)

	// Orientation header.
	h.WriteUint32(0)
	h.WriteUint32(0)
	h.WriteFloat32(float32(width) / 2)
	h.WriteFloat32(float32(height) / 2)
	h.WriteUint32(uint32(width))
	h.WriteUint32(uint32(height))
	h.WriteStringN("", 100)
	h.WriteStringN(stamp, 24)
	h.WriteStringN("", 32)
	h.WriteStringN("", 32)
	h.WriteZeros(8)
	num, den := aspectRatio(img.Aspect())
	h.WriteUint32(num)
	h.WriteUint32(den)
	h.WriteZeros(28)

	// Film and television headers are left undefined.
	h.WriteZeros(industrySize)

	if _, err := w.Write(h.Bytes()); err != nil {
		return err
	}

	samples := make([]uint32, width*len(planes))
	line := make([]byte, stride)
	for y := range height {
		for x := range width {
			i := y*width + x
			for c, p := range planes {
				samples[x*len(planes)+c] = codec.Quantize(codec.Sample(p, i), maxValue)
			}
		}
		clear(line)
		packLine(line, samples, depth, packing, order)
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads the first image element of a DPX file.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	if len(data) < headerSize {
		return nil, nil, errors.Wrap(ErrCorrupt, "truncated header")
	}

	var order xdr.ByteOrder
	switch {
	case binary.BigEndian.Uint32(data) == magic:
		order = binary.BigEndian
	case binary.LittleEndian.Uint32(data) == magic:
		order = binary.LittleEndian
	default:
		return nil, nil, ErrInvalidMagic
	}

	rd := xdr.NewReaderOrder(data, order)
	_ = rd.Skip(4)
	imageOffset, _ := rd.ReadUint32()
	_ = rd.SetPos(136)
	stamp, _ := rd.ReadStringN(24)
	creator, _ := rd.ReadStringN(100)
	project, _ := rd.ReadStringN(200)
	copyright, _ := rd.ReadStringN(200)

	_ = rd.SetPos(offImageHeader)
	if orient, _ := rd.ReadUint16(); orient != 0 {
		return nil, nil, errors.Wrapf(ErrUnsupported, "orientation %d", orient)
	}
	elements, _ := rd.ReadUint16()
	width, _ := rd.ReadUint32()
	height, _ := rd.ReadUint32()
	if elements < 1 {
		return nil, nil, errors.Wrap(ErrCorrupt, "no image element")
	}
	_ = rd.Skip(20)
	descriptor, _ := rd.ReadByte()
	_ = rd.Skip(2)
	depthByte, _ := rd.ReadByte()
	packing, _ := rd.ReadUint16()
	encoding, _ := rd.ReadUint16()
	dataOffset, _ := rd.ReadUint32()

	depth := int(depthByte)
	var n int
	switch descriptor {
	case descLuma:
		n = 1
	case descRGB:
		n = 3
	case descRGBA:
		n = 4
	default:
		return nil, nil, errors.Wrapf(ErrUnsupported, "descriptor %d", descriptor)
	}
	if depth != 8 && depth != 10 && depth != 12 && depth != 16 {
		return nil, nil, errors.Wrapf(ErrUnsupported, "bit depth %d", depth)
	}
	if packing > packingMethodB || (packing == packingMethodB && depth != 10) {
		return nil, nil, errors.Wrapf(ErrUnsupported, "packing %d", packing)
	}
	if encoding != 0 {
		return nil, nil, errors.Wrap(ErrUnsupported, "run-length encoding")
	}
	if width == 0 || height == 0 || uint64(width)*uint64(height) > 1<<28 {
		return nil, nil, errors.Wrapf(ErrCorrupt, "image size %dx%d", width, height)
	}
	if dataOffset == 0 || dataOffset == math.MaxUint32 {
		dataOffset = imageOffset
	}

	_ = rd.SetPos(offAspect)
	aspect := 1.0
	num, _ := rd.ReadUint32()
	den, _ := rd.ReadUint32()
	if num != 0 && den != 0 && num != math.MaxUint32 && den != math.MaxUint32 {
		aspect = float64(num) / float64(den)
	}

	w, h := int(width), int(height)
	stride := lineBytes(w*n, depth, packing == packingPacked)
	if uint64(dataOffset)+uint64(h)*uint64(stride) > uint64(len(data)) {
		return nil, nil, errors.Wrap(ErrCorrupt, "truncated image data")
	}

	img := codec.NewImage(image.Rect(0, 0, w, h), codec.LayoutNames(min(n, 3), n == 4)...)
	img.PixelAspect = aspect
	maxValue := uint32(1)<<depth - 1
	samples := make([]uint32, w*n)
	for y := range h {
		off := int(dataOffset) + y*stride
		unpackLine(data[off:off+stride], samples, depth, packing, order)
		for x := range w {
			for c := range n {
				img.Channels[c].Pixels[y*w+x] = codec.Dequantize(samples[x*n+c], maxValue)
			}
		}
	}

	md := meta.Metadata{
		"compression":            meta.String("none"),
		meta.KeyBitsPerSample:    meta.Int(int64(depth)),
		meta.KeyPixelAspectRatio: meta.Float(aspect),
	}
	if packing == packingPacked {
		md[KeyPacking] = meta.String(Packed)
	} else {
		md[KeyPacking] = meta.String(Filled)
	}
	for key, s := range map[string]string{
		meta.KeyDateTime:     dateTime(strings.TrimSpace(stamp)),
		meta.KeySoftware:     creator,
		meta.KeyDocumentName: project,
		meta.KeyCopyright:    copyright,
	} {
		if s != "" {
			md[key] = meta.String(s)
		}
	}
	return img, md, nil
}
