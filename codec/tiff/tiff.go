// Package tiff reads and writes baseline TIFF files with 8 or 16-bit
// unsigned or 32-bit float samples. Images are stored in strips, or in
// tiles when the mode option is options.Tiled.
package tiff

import (
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/pkg/errors"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/compression"
	"github.com/gkocov/gaffer/internal/ifd"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Errors
var (
	ErrUnsupported = errors.New("tiff: unsupported file feature")
	ErrCorrupt     = errors.New("tiff: corrupt file")
)

// TIFF compression tag values
const (
	compressionNone     = 1
	compressionLZW      = 5
	compressionZIP      = 8
	compressionPackBits = 32773
	compressionDeflate  = 32946
)

var compressionTags = map[string]uint16{
	"none":     compressionNone,
	"lzw":      compressionLZW,
	"zip":      compressionZIP,
	"deflate":  compressionDeflate,
	"packbits": compressionPackBits,
}

func compressionName(tag uint32) string {
	for name, t := range compressionTags {
		if uint32(t) == tag {
			return name
		}
	}
	return "unknown"
}

// Sample formats
const (
	sampleUint  = 1
	sampleFloat = 3
)

// stripBytes is the target size of one uncompressed strip.
const stripBytes = 64 << 10

// tileSize is the width and height of written tiles. TIFF requires a
// multiple of 16.
const tileSize = 64

// Codec is the TIFF encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "tiff" }
func (Codec) Extensions() []string { return []string{"tif", "tiff"} }

// Policy always pads: TIFF has no data window.
func (Codec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

type settings struct {
	compression uint16
	bits        int
	float       bool
	tiled       bool
}

func parseSettings(opts map[string]meta.Value) (settings, error) {
	s := settings{compression: compressionZIP, bits: 8}
	if v, ok := opts[options.Mode]; ok {
		m, _ := v.Int()
		s.tiled = m == options.Tiled
	}
	if v, ok := opts[options.Compression]; ok {
		name, _ := v.Str()
		tag, ok := compressionTags[name]
		if !ok {
			return s, errors.Wrapf(codec.ErrInvalidOption, "tiff compression %#v", v)
		}
		s.compression = tag
	}
	if v, ok := opts[options.DataType]; ok {
		switch name, _ := v.Str(); name {
		case "uint8":
			s.bits = 8
		case "uint16":
			s.bits = 16
		case "float":
			s.bits, s.float = 32, true
		default:
			return s, errors.Wrapf(codec.ErrInvalidOption, "tiff dataType %#v", v)
		}
	}
	return s, nil
}

var stringTags = []struct {
	tag uint16
	key string
}{
	{ifd.TagDocumentName, meta.KeyDocumentName},
	{ifd.TagImageDescription, meta.KeyImageDescription},
	{ifd.TagSoftware, meta.KeySoftware},
	{ifd.TagDateTime, meta.KeyDateTime},
	{ifd.TagArtist, meta.KeyArtist},
	{ifd.TagHostComputer, meta.KeyHostComputer},
	{ifd.TagCopyright, meta.KeyCopyright},
}

// StringTags returns the metadata keys stored as ASCII tags, keyed by tag.
func StringTags() map[uint16]string {
	m := make(map[uint16]string, len(stringTags))
	for _, t := range stringTags {
		m[t.tag] = t.key
	}
	return m
}

// resolution is the horizontal resolution written to every file. The
// vertical resolution encodes the pixel aspect ratio.
const resolution = 72

// SetMetadataTags stores the string metadata and pixel aspect ratio in d.
// It is shared with EXIF blocks.
func SetMetadataTags(d *ifd.Directory, md meta.Metadata, aspect float64) {
	for _, t := range stringTags {
		if s, ok := md.Text(t.key); ok && s != "" {
			d.SetASCII(t.tag, s)
		}
	}
	d.SetRational(ifd.TagXResolution, resolution, 1)
	d.SetRational(ifd.TagYResolution, uint32(math.Round(resolution*aspect*1000)), 1000)
	d.SetShort(ifd.TagResolutionUnit, 2)
}

// MetadataTags reads the fields written by SetMetadataTags.
func MetadataTags(d *ifd.Directory, md meta.Metadata) (aspect float64) {
	for _, t := range stringTags {
		if s, ok := d.String(t.tag); ok {
			md[t.key] = meta.String(s)
		}
	}
	aspect = 1
	xr, okx := d.Float(ifd.TagXResolution)
	yr, oky := d.Float(ifd.TagYResolution)
	if okx && oky && xr > 0 && yr > 0 {
		aspect = yr / xr
	}
	return aspect
}

// Encode writes img as a single-image TIFF file.
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
	planes := color
	if alpha != nil {
		planes = append(planes, alpha)
	}

	width, height := img.Data.Dx(), img.Data.Dy()
	bytesPerSample := s.bits / 8
	rowBytes := width * len(planes) * bytesPerSample
	l := stripLayout(width, height, max(1, stripBytes/max(rowBytes, 1)))
	if s.tiled {
		l = tileLayout(width, height)
	}

	order := binary.LittleEndian
	out := xdr.NewBufferOrder(rowBytes*height/2+1024, order)
	out.WriteBytes(ifd.Header(order, 0))

	var offsets, counts []uint32
	for _, r := range l.blocks() {
		raw := xdr.NewBufferOrder(l.blockBytes(r, len(planes)*bytesPerSample), order)
		for y := r.Min.Y; y < r.Min.Y+l.rows(r); y++ {
			for x := r.Min.X; x < r.Min.X+l.w; x++ {
				i := y*width + x
				// Tiles past the image edge are padded with zero samples.
				inside := x < width && y < height
				for _, p := range planes {
					var v float32
					if inside {
						v = codec.Sample(p, i)
					}
					switch {
					case s.float:
						raw.WriteFloat32(v)
					case s.bits == 16:
						raw.WriteUint16(uint16(codec.Quantize(v, 0xffff)))
					default:
						raw.WriteByte(byte(codec.Quantize(v, 0xff)))
					}
				}
			}
		}
		block, err := compressStrip(s.compression, raw.Bytes())
		if err != nil {
			return errors.Wrap(err, "tiff: compress block")
		}
		offsets = append(offsets, uint32(out.Len()))
		counts = append(counts, uint32(len(block)))
		out.WriteBytes(block)
		if out.Len()&1 == 1 {
			out.WriteByte(0)
		}
	}

	d := ifd.New(order)
	d.SetLong(ifd.TagNewSubfileType, 0)
	d.SetLong(ifd.TagImageWidth, uint32(width))
	d.SetLong(ifd.TagImageLength, uint32(height))
	bps := make([]uint16, len(planes))
	formats := make([]uint16, len(planes))
	for i := range planes {
		bps[i] = uint16(s.bits)
		formats[i] = sampleUint
		if s.float {
			formats[i] = sampleFloat
		}
	}
	d.SetShort(ifd.TagBitsPerSample, bps...)
	d.SetShort(ifd.TagCompression, s.compression)
	if len(color) == 1 {
		d.SetShort(ifd.TagPhotometric, 1)
	} else {
		d.SetShort(ifd.TagPhotometric, 2)
	}
	d.SetShort(ifd.TagOrientation, 1)
	d.SetShort(ifd.TagSamplesPerPixel, uint16(len(planes)))
	if l.tiled {
		d.SetLong(ifd.TagTileWidth, uint32(l.w))
		d.SetLong(ifd.TagTileLength, uint32(l.h))
		d.SetLong(ifd.TagTileOffsets, offsets...)
		d.SetLong(ifd.TagTileByteCounts, counts...)
	} else {
		d.SetLong(ifd.TagStripOffsets, offsets...)
		d.SetLong(ifd.TagRowsPerStrip, uint32(l.h))
		d.SetLong(ifd.TagStripByteCounts, counts...)
	}
	d.SetShort(ifd.TagPlanarConfig, 1)
	if alpha != nil {
		d.SetShort(ifd.TagExtraSamples, 1)
	}
	d.SetShort(ifd.TagSampleFormat, formats...)
	SetMetadataTags(d, md, img.Aspect())

	first := uint32(out.Len())
	out.PutUint32At(4, first)
	out.WriteBytes(d.Encode(first, 0))

	_, err = w.Write(out.Bytes())
	return err
}

// layout is the block grid of an image: full-width strips of h rows, or
// w by h tiles.
type layout struct {
	width, height int
	w, h          int
	tiled         bool
}

func stripLayout(width, height, rows int) layout {
	return layout{width: width, height: height, w: width, h: max(1, min(rows, height))}
}

func tileLayout(width, height int) layout {
	return layout{width: width, height: height, w: tileSize, h: tileSize, tiled: true}
}

// blocks returns the blocks in file order, each clipped to the image.
func (l layout) blocks() []image.Rectangle {
	var out []image.Rectangle
	for y := 0; y < l.height; y += l.h {
		for x := 0; x < l.width; x += l.w {
			out = append(out, image.Rect(x, y, min(x+l.w, l.width), min(y+l.h, l.height)))
		}
	}
	return out
}

// rows is the number of stored rows of block r. The last strip is short;
// tiles always hold l.h rows.
func (l layout) rows(r image.Rectangle) int {
	if l.tiled {
		return l.h
	}
	return r.Dy()
}

func (l layout) blockBytes(r image.Rectangle, pixelBytes int) int {
	return l.w * l.rows(r) * pixelBytes
}

func compressStrip(tag uint16, raw []byte) ([]byte, error) {
	switch tag {
	case compressionLZW:
		return compression.LZWCompress(raw), nil
	case compressionZIP, compressionDeflate:
		return compression.ZIPCompress(raw)
	case compressionPackBits:
		return compression.PackBitsCompress(raw), nil
	}
	return raw, nil
}

func decompressStrip(tag uint32, data []byte, size int) ([]byte, error) {
	switch tag {
	case compressionNone:
		if len(data) < size {
			return nil, ErrCorrupt
		}
		return data[:size], nil
	case compressionLZW:
		return compression.LZWDecompress(data, size)
	case compressionZIP, compressionDeflate:
		return compression.ZIPDecompress(data, size)
	case compressionPackBits:
		return compression.PackBitsDecompress(data, size)
	}
	return nil, errors.Wrapf(ErrUnsupported, "compression %d", tag)
}

// readLayout returns the block grid of d with its offset and byte count
// tables.
func readLayout(d *ifd.Directory, width, height int) (layout, []uint32, []uint32, error) {
	var l layout
	var offsets, counts []uint32
	if _, ok := d.Field(ifd.TagTileWidth); ok {
		tw := int(d.Uint(ifd.TagTileWidth, 0))
		th := int(d.Uint(ifd.TagTileLength, 0))
		if tw <= 0 || th <= 0 {
			return l, nil, nil, errors.Wrap(ErrCorrupt, "tile size")
		}
		l = layout{width: width, height: height, w: tw, h: th, tiled: true}
		offsets, _ = d.Uints(ifd.TagTileOffsets)
		counts, _ = d.Uints(ifd.TagTileByteCounts)
	} else {
		rows := int(d.Uint(ifd.TagRowsPerStrip, uint32(height)))
		if rows <= 0 {
			return l, nil, nil, errors.Wrap(ErrCorrupt, "rows per strip")
		}
		l = stripLayout(width, height, rows)
		offsets, _ = d.Uints(ifd.TagStripOffsets)
		counts, _ = d.Uints(ifd.TagStripByteCounts)
	}
	if len(offsets) != len(counts) {
		return l, nil, nil, errors.Wrap(ErrCorrupt, "block tables")
	}
	return l, offsets, counts, nil
}

// Decode reads the first image of a TIFF file.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	order, first, err := ifd.ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	d, _, err := ifd.Read(data, order, first)
	if err != nil {
		return nil, nil, err
	}

	width := int(d.Uint(ifd.TagImageWidth, 0))
	height := int(d.Uint(ifd.TagImageLength, 0))
	samples := int(d.Uint(ifd.TagSamplesPerPixel, 1))
	bits := int(d.Uint(ifd.TagBitsPerSample, 1))
	format := d.Uint(ifd.TagSampleFormat, sampleUint)
	photometric := d.Uint(ifd.TagPhotometric, 1)
	comp := d.Uint(ifd.TagCompression, compressionNone)
	switch {
	case width <= 0 || height <= 0:
		return nil, nil, errors.Wrap(ErrCorrupt, "empty image")
	case d.Uint(ifd.TagPlanarConfig, 1) != 1:
		return nil, nil, errors.Wrap(ErrUnsupported, "planar configuration")
	case d.Uint(ifd.TagPredictor, 1) != 1:
		return nil, nil, errors.Wrap(ErrUnsupported, "predictor")
	case format == sampleFloat && bits != 32, format == sampleUint && bits != 8 && bits != 16:
		return nil, nil, errors.Wrapf(ErrUnsupported, "%d-bit samples", bits)
	case photometric > 2:
		return nil, nil, errors.Wrapf(ErrUnsupported, "photometric %d", photometric)
	}

	colors := 1
	if photometric == 2 {
		colors = 3
	}
	hasAlpha := samples > colors
	if samples < colors || samples > colors+1 {
		return nil, nil, errors.Wrapf(ErrUnsupported, "%d samples per pixel", samples)
	}

	img := codec.NewImage(image.Rect(0, 0, width, height), codec.LayoutNames(colors, hasAlpha)...)
	l, offsets, counts, err := readLayout(d, width, height)
	if err != nil {
		return nil, nil, err
	}

	pixelBytes := samples * bits / 8
	for bi, r := range l.blocks() {
		if bi >= len(offsets) {
			return nil, nil, errors.Wrap(ErrCorrupt, "missing blocks")
		}
		off, n := int(offsets[bi]), int(counts[bi])
		if off+n > len(data) {
			return nil, nil, errors.Wrapf(ErrCorrupt, "block %d out of range", bi)
		}
		raw, err := decompressStrip(comp, data[off:off+n], l.blockBytes(r, pixelBytes))
		if err != nil {
			return nil, nil, errors.Wrapf(err, "tiff: block %d", bi)
		}
		rd := xdr.NewReaderOrder(raw, order)
		for y := r.Min.Y; y < r.Min.Y+l.rows(r); y++ {
			for x := r.Min.X; x < r.Min.X+l.w; x++ {
				inside := x < width && y < height
				for c := range samples {
					var v float32
					switch {
					case format == sampleFloat:
						v, _ = rd.ReadFloat32()
					case bits == 16:
						u, _ := rd.ReadUint16()
						v = codec.Dequantize(uint32(u), 0xffff)
					default:
						b, _ := rd.ReadByte()
						v = codec.Dequantize(uint32(b), 0xff)
					}
					if inside {
						img.Channels[c].Pixels[y*width+x] = v
					}
				}
			}
		}
	}

	md := meta.Metadata{
		meta.KeyBitsPerSample: meta.Int(int64(bits)),
		"compression":         meta.String(compressionName(comp)),
	}
	img.PixelAspect = MetadataTags(d, md)
	md[meta.KeyPixelAspectRatio] = meta.Float(img.PixelAspect)
	return img, md, nil
}
