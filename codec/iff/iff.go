// Package iff reads and writes 8-bit Maya IFF images. Files are always
// tiled and tiles are stored with the byte-run compression of the format.
package iff

import (
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/compression"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrInvalidMagic = errors.New("iff: not a Maya IFF image")
	ErrUnsupported  = errors.New("iff: unsupported file feature")
	ErrCorrupt      = errors.New("iff: corrupt file")
)

// TileSize is the width and height of the tiles written.
const TileSize = 64

// Header flags
const (
	flagRGB   = 0x1
	flagAlpha = 0x2
)

// Tile compression
const (
	compressNone = 0
	compressRLE  = 1
)

const headerSize = 32

// Codec is the IFF encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "iff" }
func (Codec) Extensions() []string { return []string{"iff"} }

// Policy always pads: the format is tiled and has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

type chunkWriter struct {
	*xdr.Buffer
}

// begin writes a chunk tag with a placeholder size and returns its offset.
func (w chunkWriter) begin(tag string) int {
	w.WriteBytes([]byte(tag))
	at := w.Len()
	w.WriteUint32(0)
	return at
}

// end patches the size of the chunk begun at and pads to four bytes.
func (w chunkWriter) end(at int) {
	w.PutUint32At(at, uint32(w.Len()-at-4))
	for w.Len()%4 != 0 {
		w.WriteByte(0)
	}
}

// Encode writes img as a tiled IFF file.
func (Codec) Encode(wr io.Writer, img *codec.Image, md meta.Metadata, _ map[string]meta.Value) error {
	if err := img.Validate(); err != nil {
		return err
	}
	img = codec.Full(img)
	width, height := img.Data.Dx(), img.Data.Dy()
	if width > math.MaxUint16 || height > math.MaxUint16 {
		return errors.Wrapf(codec.ErrInvalidImage, "iff: image %dx%d too large", width, height)
	}

	colors, alpha := codec.ColorPlanes(img)
	planes := colors
	if len(colors) <= 1 {
		var c []float32
		if len(colors) == 1 {
			c = colors[0]
		}
		planes = [][]float32{c, c, c}
	}
	flags := uint32(flagRGB)
	if alpha != nil {
		planes = append(planes, alpha)
		flags |= flagAlpha
	}

	tilesX := (width + TileSize - 1) / TileSize
	tilesY := (height + TileSize - 1) / TileSize
	num, den := ratio(img.Aspect())

	w := chunkWriter{xdr.NewBufferOrder(headerSize+width*height*len(planes), binary.BigEndian)}
	form := w.begin("FOR4")
	w.WriteBytes([]byte("CIMG"))

	c := w.begin("TBHD")
	w.WriteUint32(uint32(width))
	w.WriteUint32(uint32(height))
	w.WriteUint16(num)
	w.WriteUint16(den)
	w.WriteUint32(flags)
	w.WriteUint16(0)
	w.WriteUint16(uint16(tilesX * tilesY))
	w.WriteUint32(compressRLE)
	w.WriteZeros(8)
	w.end(c)

	for _, t := range []struct{ tag, key string }{{"AUTH", meta.KeyArtist}, {"DATE", meta.KeyDateTime}} {
		if s, ok := md.Text(t.key); ok && s != "" {
			c := w.begin(t.tag)
			w.WriteString(s)
			w.end(c)
		}
	}

	bitmap := w.begin("FOR4")
	w.WriteBytes([]byte("TBMP"))
	for ty := range tilesY {
		for tx := range tilesX {
			// Tile rows count from the bottom of the image.
			x0, y0 := tx*TileSize, ty*TileSize
			x1, y1 := min(x0+TileSize, width), min(y0+TileSize, height)
			c := w.begin("RGBA")
			w.WriteUint16(uint16(x0))
			w.WriteUint16(uint16(y0))
			w.WriteUint16(uint16(x1 - 1))
			w.WriteUint16(uint16(y1 - 1))
			w.WriteBytes(encodeTile(planes, width, height, image.Rect(x0, y0, x1, y1)))
			w.end(c)
		}
	}
	w.end(bitmap)
	w.end(form)

	_, err := wr.Write(w.Bytes())
	return err
}

// encodeTile stores the channels of r, last channel first, each as a
// compressed plane. The tile is stored raw, interleaved, when compression
// does not make it smaller.
func encodeTile(planes [][]float32, width, height int, r image.Rectangle) []byte {
	n := r.Dx() * r.Dy()
	channels := make([][]byte, len(planes))
	for c, p := range planes {
		ch := make([]byte, 0, n)
		for y := r.Min.Y; y < r.Max.Y; y++ {
			row := (height - 1 - y) * width
			for x := r.Min.X; x < r.Max.X; x++ {
				ch = append(ch, byte(codec.Quantize(codec.Sample(p, row+x), 0xff)))
			}
		}
		channels[c] = ch
	}

	var packed []byte
	for c := len(channels) - 1; c >= 0; c-- {
		packed = append(packed, compression.ByteRunCompress(channels[c])...)
	}
	if len(packed) < n*len(planes) {
		return packed
	}
	raw := make([]byte, 0, n*len(planes))
	for i := range n {
		for c := len(channels) - 1; c >= 0; c-- {
			raw = append(raw, channels[c][i])
		}
	}
	return raw
}

func ratio(a float64) (uint16, uint16) {
	num, den := math.Round(a*100), 100.0
	for num > math.MaxUint16 {
		num, den = math.Round(num/10), den/10
	}
	x, y := uint16(num), uint16(den)
	for y != 0 {
		x, y = y, x%y
	}
	if x == 0 {
		return 1, 1
	}
	return uint16(num) / x, uint16(den) / x
}

type header struct {
	width, height int
	aspect        float64
	channels      int
	compression   uint32
}

// Decode reads an 8-bit IFF image.
func (Codec) Decode(rd io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, nil, err
	}
	if len(data) < 12 || string(data[:4]) != "FOR4" || string(data[8:12]) != "CIMG" {
		return nil, nil, ErrInvalidMagic
	}
	formEnd := min(8+int(binary.BigEndian.Uint32(data[4:])), len(data))

	md := meta.Metadata{}
	var hdr *header
	var img *codec.Image
	r := xdr.NewReaderOrder(data[:formEnd], binary.BigEndian)
	_ = r.SetPos(12)
	for r.Len() >= 8 {
		tag, _ := r.ReadBytes(4)
		size, _ := r.ReadUint32()
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, nil, errors.Wrapf(ErrCorrupt, "chunk %q truncated", tag)
		}
		_ = r.Skip(min((4-int(size)%4)%4, r.Len()))

		switch string(tag) {
		case "TBHD":
			if hdr, err = readHeader(body); err != nil {
				return nil, nil, err
			}
			img = codec.NewImage(image.Rect(0, 0, hdr.width, hdr.height), codec.LayoutNames(3, hdr.channels == 4)...)
			img.PixelAspect = hdr.aspect
		case "AUTH":
			md[meta.KeyArtist] = meta.String(cString(body))
		case "DATE":
			md[meta.KeyDateTime] = meta.String(cString(body))
		case "FOR4":
			if len(body) < 4 || string(body[:4]) != "TBMP" {
				continue
			}
			if hdr == nil {
				return nil, nil, errors.Wrap(ErrCorrupt, "bitmap before header")
			}
			if err := readTiles(body[4:], hdr, img); err != nil {
				return nil, nil, err
			}
		}
	}
	if hdr == nil {
		return nil, nil, errors.Wrap(ErrCorrupt, "missing TBHD chunk")
	}

	md["compression"] = meta.String("none")
	if hdr.compression == compressRLE {
		md["compression"] = meta.String("rle")
	}
	md[meta.KeyBitsPerSample] = meta.Int(8)
	md[meta.KeyPixelAspectRatio] = meta.Float(hdr.aspect)
	return img, md, nil
}

func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func readHeader(body []byte) (*header, error) {
	if len(body) < headerSize-8 {
		return nil, errors.Wrap(ErrCorrupt, "short TBHD chunk")
	}
	r := xdr.NewReaderOrder(body, binary.BigEndian)
	w, _ := r.ReadUint32()
	h, _ := r.ReadUint32()
	num, _ := r.ReadUint16()
	den, _ := r.ReadUint16()
	flags, _ := r.ReadUint32()
	sampleBytes, _ := r.ReadUint16()
	_, _ = r.ReadUint16()
	comp, _ := r.ReadUint32()

	if w == 0 || h == 0 || uint64(w)*uint64(h) > 1<<28 {
		return nil, errors.Wrapf(ErrCorrupt, "image size %dx%d", w, h)
	}
	if sampleBytes != 0 {
		return nil, errors.Wrap(ErrUnsupported, "16-bit samples")
	}
	if flags&flagRGB == 0 {
		return nil, errors.Wrapf(ErrUnsupported, "flags %#x", flags)
	}
	if comp > compressRLE {
		return nil, errors.Wrapf(ErrUnsupported, "compression %d", comp)
	}
	hdr := &header{width: int(w), height: int(h), aspect: 1, channels: 3, compression: comp}
	if flags&flagAlpha != 0 {
		hdr.channels = 4
	}
	if num != 0 && den != 0 {
		hdr.aspect = float64(num) / float64(den)
	}
	return hdr, nil
}

func readTiles(data []byte, hdr *header, img *codec.Image) error {
	r := xdr.NewReaderOrder(data, binary.BigEndian)
	for r.Len() >= 8 {
		tag, _ := r.ReadBytes(4)
		size, _ := r.ReadUint32()
		body, err := r.ReadBytes(int(size))
		if err != nil {
			return errors.Wrap(ErrCorrupt, "tile truncated")
		}
		_ = r.Skip(min((4-int(size)%4)%4, r.Len()))
		if string(tag) != "RGBA" {
			continue
		}
		if err := readTile(body, hdr, img); err != nil {
			return err
		}
	}
	return nil
}

func readTile(body []byte, hdr *header, img *codec.Image) error {
	if len(body) < 8 {
		return errors.Wrap(ErrCorrupt, "short tile")
	}
	x0 := int(binary.BigEndian.Uint16(body[0:]))
	y0 := int(binary.BigEndian.Uint16(body[2:]))
	x1 := int(binary.BigEndian.Uint16(body[4:])) + 1
	y1 := int(binary.BigEndian.Uint16(body[6:])) + 1
	if x1 <= x0 || y1 <= y0 || x1 > hdr.width || y1 > hdr.height {
		return errors.Wrapf(ErrCorrupt, "tile [%d,%d]-[%d,%d] outside image", x0, y0, x1, y1)
	}
	body = body[8:]
	n := (x1 - x0) * (y1 - y0)
	nc := hdr.channels

	channels := make([][]byte, nc)
	if len(body) == n*nc {
		for c := range nc {
			channels[c] = make([]byte, n)
		}
		for i := range n {
			for c := range nc {
				channels[nc-1-c][i] = body[i*nc+c]
			}
		}
	} else {
		for c := nc - 1; c >= 0; c-- {
			plane, used, err := compression.ByteRunDecompress(body, n)
			if err != nil {
				return errors.Wrap(ErrCorrupt, err.Error())
			}
			channels[c] = plane
			body = body[used:]
		}
	}

	i := 0
	for y := y0; y < y1; y++ {
		row := (hdr.height - 1 - y) * hdr.width
		for x := x0; x < x1; x++ {
			for c := range nc {
				img.Channels[c].Pixels[row+x] = codec.Dequantize(uint32(channels[c][i]), 0xff)
			}
			i++
		}
	}
	return nil
}
