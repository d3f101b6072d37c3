// Package png writes 8-bit PNG files with configurable zlib settings and
// reads them back with their text metadata.
package png

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	stdpng "image/png"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/compression"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrCorrupt = errors.New("png: corrupt file")
)

var signature = []byte("\x89PNG\r\n\x1a\n")

// PNG color types
const (
	colorGray      = 0
	colorRGB       = 2
	colorGrayAlpha = 4
	colorRGBA      = 6
)

// Row filters
const (
	filterNone  = 0
	filterSub   = 1
	filterUp    = 2
	filterAvg   = 3
	filterPaeth = 4
)

// maxIDAT is the largest IDAT chunk written.
const maxIDAT = 1 << 16

// metersPerUnit is the horizontal pixel density stored in pHYs (72 dpi).
const metersPerUnit = 2835

// Codec is the PNG encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "png" }
func (Codec) Extensions() []string { return []string{"png"} }

// Policy always pads: PNG has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

type settings struct {
	level    compression.Level
	adaptive bool
	filter   byte
}

// parseSettings maps the compression strategy and level options onto row
// filtering and zlib parameters.
func parseSettings(opts map[string]meta.Value) (settings, error) {
	level := int64(6)
	if v, ok := opts[options.CompressionLevel]; ok {
		l, ok := v.Int()
		if !ok || l < 0 || l > 9 {
			return settings{}, errors.Wrapf(codec.ErrInvalidOption, "png compressionLevel %#v", v)
		}
		level = l
	}
	s := settings{level: compression.Level(level), adaptive: true}

	strategy := "filtered"
	if v, ok := opts[options.Compression]; ok {
		strategy, _ = v.Str()
	}
	switch strategy {
	case "default":
		s.adaptive, s.filter = false, filterNone
	case "filtered", "fixed":
	case "huffman":
		s.level = compression.LevelHuffmanOnly
	case "rle":
		s.adaptive, s.filter = false, filterSub
		s.level = compression.LevelBestSpeed
	default:
		return settings{}, errors.Wrapf(codec.ErrInvalidOption, "png compression %q", strategy)
	}
	return s, nil
}

type chunkWriter struct {
	w   io.Writer
	err error
}

func (cw *chunkWriter) chunk(typ string, data []byte) {
	if cw.err != nil {
		return
	}
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(len(data)))
	copy(hdr[4:], typ)
	crc := crc32.NewIEEE()
	crc.Write(hdr[4:])
	crc.Write(data)
	var sum [4]byte
	binary.BigEndian.PutUint32(sum[:], crc.Sum32())

	for _, b := range [][]byte{hdr[:], data, sum[:]} {
		if _, cw.err = cw.w.Write(b); cw.err != nil {
			return
		}
	}
}

// Encode writes img as an 8-bit PNG. Color is stored with straight alpha.
func (Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	s, err := parseSettings(opts)
	if err != nil {
		return err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)

	color, alpha := codec.ColorPlanes(img)
	if len(color) == 0 {
		color = [][]float32{nil}
	}
	var colorType byte
	switch {
	case len(color) == 1 && alpha == nil:
		colorType = colorGray
	case len(color) == 1:
		colorType = colorGrayAlpha
	case alpha == nil:
		colorType = colorRGB
	default:
		colorType = colorRGBA
	}
	bpp := len(color)
	if alpha != nil {
		bpp++
	}

	width, height := img.Data.Dx(), img.Data.Dy()
	raw := make([]byte, 0, (width*bpp+1)*height)
	prev := make([]byte, width*bpp)
	cur := make([]byte, width*bpp)
	for y := range height {
		for x := range width {
			i := y*width + x
			a := float32(1)
			if alpha != nil {
				a = alpha[i]
			}
			o := x * bpp
			for c, p := range color {
				cur[o+c] = byte(codec.Quantize(codec.Unpremultiply(codec.Sample(p, i), a), 0xff))
			}
			if alpha != nil {
				cur[o+len(color)] = byte(codec.Quantize(a, 0xff))
			}
		}
		raw = appendFiltered(raw, cur, prev, bpp, s)
		prev, cur = cur, prev
	}

	idat, err := compression.ZIPCompressLevel(raw, s.level)
	if err != nil {
		return errors.Wrap(err, "png: compress")
	}

	cw := &chunkWriter{w: w}
	if _, cw.err = w.Write(signature); cw.err != nil {
		return cw.err
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], uint32(width))
	binary.BigEndian.PutUint32(ihdr[4:], uint32(height))
	ihdr[8] = 8
	ihdr[9] = colorType
	cw.chunk("IHDR", ihdr)

	phys := make([]byte, 9)
	binary.BigEndian.PutUint32(phys[0:], metersPerUnit)
	binary.BigEndian.PutUint32(phys[4:], uint32(math.Round(metersPerUnit*img.Aspect())))
	phys[8] = 1
	cw.chunk("pHYs", phys)

	for _, key := range md.Keys() {
		if typ, data, ok := textChunk(key, md[key]); ok {
			cw.chunk(typ, data)
		}
	}

	for len(idat) > 0 {
		n := min(len(idat), maxIDAT)
		cw.chunk("IDAT", idat[:n])
		idat = idat[n:]
	}
	cw.chunk("IEND", nil)
	return cw.err
}

// textChunk encodes a metadata entry as tEXt, or iTXt when the value is
// not Latin-1. Encoder hints and non-scalar values are skipped.
func textChunk(key string, v meta.Value) (string, []byte, bool) {
	if meta.IsHint(key) || key == meta.KeyPixelAspectRatio || len(key) == 0 || len(key) > 79 {
		return "", nil, false
	}
	switch v.Kind() {
	case meta.KindString, meta.KindInt, meta.KindFloat:
	default:
		return "", nil, false
	}
	text := v.String()
	if isLatin1(text) && isLatin1(key) {
		return "tEXt", []byte(key + "\x00" + text), true
	}
	// keyword, compression flag, method, empty language tag and
	// translated keyword, then UTF-8 text.
	return "iTXt", []byte(key + "\x00\x00\x00\x00\x00" + text), true
}

func isLatin1(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 || (s[i] < 0x20 && s[i] != '\n') {
			return false
		}
	}
	return true
}

func appendFiltered(dst, cur, prev []byte, bpp int, s settings) []byte {
	if !s.adaptive {
		return appendRow(dst, s.filter, cur, prev, bpp)
	}
	best, bestScore := byte(filterNone), math.MaxInt
	tmp := make([]byte, 0, len(cur)+1)
	for f := byte(filterNone); f <= filterPaeth; f++ {
		tmp = appendRow(tmp[:0], f, cur, prev, bpp)
		score := 0
		for _, b := range tmp[1:] {
			score += int(absByte(b))
		}
		if score < bestScore {
			best, bestScore = f, score
		}
	}
	return appendRow(dst, best, cur, prev, bpp)
}

func absByte(b byte) byte {
	if b >= 0x80 {
		return -b
	}
	return b
}

func appendRow(dst []byte, f byte, cur, prev []byte, bpp int) []byte {
	dst = append(dst, f)
	for i, x := range cur {
		var a, b, c byte
		if i >= bpp {
			a, c = cur[i-bpp], prev[i-bpp]
		}
		b = prev[i]
		switch f {
		case filterSub:
			x -= a
		case filterUp:
			x -= b
		case filterAvg:
			x -= byte((int(a) + int(b)) / 2)
		case filterPaeth:
			x -= paeth(a, b, c)
		}
		dst = append(dst, x)
	}
	return dst
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Decode reads a PNG file. Samples are returned premultiplied by alpha.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	colorType, aspect, md, err := readChunks(data)
	if err != nil {
		return nil, nil, err
	}

	src, err := stdpng.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "png: decode")
	}

	colors, hasAlpha := 3, colorType&4 != 0
	if colorType&2 == 0 && colorType != 3 {
		colors = 1
	}
	b := src.Bounds()
	rect := image.Rect(0, 0, b.Dx(), b.Dy())
	img := codec.NewImage(rect, codec.LayoutNames(colors, hasAlpha)...)
	img.PixelAspect = aspect
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, ca := src.At(x, y).RGBA()
			vals := []uint32{cr, cg, cb}[:colors]
			for c, v := range vals {
				img.Channels[c].Pixels[i] = codec.Dequantize(v, 0xffff)
			}
			if hasAlpha {
				img.Channels[colors].Pixels[i] = codec.Dequantize(ca, 0xffff)
			}
			i++
		}
	}
	md[meta.KeyPixelAspectRatio] = meta.Float(aspect)
	md[meta.KeyBitsPerSample] = meta.Int(8)
	return img, md, nil
}

// readChunks extracts the color type, pixel aspect and text metadata.
func readChunks(data []byte) (colorType byte, aspect float64, md meta.Metadata, err error) {
	if !bytes.HasPrefix(data, signature) {
		return 0, 0, nil, errors.Wrap(ErrCorrupt, "missing signature")
	}
	md = meta.Metadata{}
	aspect = 1
	p := data[len(signature):]
	for len(p) >= 12 {
		n := int(binary.BigEndian.Uint32(p))
		if n < 0 || 12+n > len(p) {
			return 0, 0, nil, errors.Wrap(ErrCorrupt, "truncated chunk")
		}
		typ, body := string(p[4:8]), p[8:8+n]
		p = p[12+n:]

		switch typ {
		case "IHDR":
			if n < 13 {
				return 0, 0, nil, errors.Wrap(ErrCorrupt, "short IHDR")
			}
			colorType = body[9]
		case "pHYs":
			if n == 9 {
				x, y := binary.BigEndian.Uint32(body), binary.BigEndian.Uint32(body[4:])
				if x > 0 && y > 0 {
					aspect = float64(y) / float64(x)
				}
			}
		case "tEXt":
			if k, v, ok := strings.Cut(string(body), "\x00"); ok {
				md[k] = meta.String(v)
			}
		case "zTXt":
			if k, v, ok := strings.Cut(string(body), "\x00"); ok && len(v) > 0 {
				text, err := compression.ZIPDecompressAll([]byte(v[1:]))
				if err == nil {
					md[k] = meta.String(string(text))
				}
			}
		case "iTXt":
			k, rest, ok := strings.Cut(string(body), "\x00")
			if !ok || len(rest) < 2 {
				continue
			}
			compressed := rest[0] == 1
			fields := strings.SplitN(rest[2:], "\x00", 3)
			if len(fields) != 3 {
				continue
			}
			text := fields[2]
			if compressed {
				out, err := compression.ZIPDecompressAll([]byte(text))
				if err != nil {
					continue
				}
				text = string(out)
			}
			md[k] = meta.String(text)
		case "IEND":
			return colorType, aspect, md, nil
		}
	}
	return colorType, aspect, md, nil
}
