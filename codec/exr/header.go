package exr

import (
	"fmt"
	"image"
	"slices"
	"strings"

	"github.com/gkocov/gaffer/internal/xdr"
)

type channel struct {
	name      string
	pixelType PixelType
	pLinear   uint8
	xSampling int32
	ySampling int32
}

func readChannels(r *xdr.Reader) ([]channel, error) {
	var chans []channel
	for {
		name, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		if name == "" {
			return chans, nil
		}
		c := channel{name: name}
		pt, _ := r.ReadInt32()
		c.pixelType = PixelType(pt)
		c.pLinear, _ = r.ReadByte()
		if err := r.Skip(3); err != nil {
			return nil, err
		}
		c.xSampling, _ = r.ReadInt32()
		c.ySampling, err = r.ReadInt32()
		if err != nil {
			return nil, err
		}
		chans = append(chans, c)
	}
}

func writeChannels(w *xdr.Buffer, chans []channel) {
	for _, c := range chans {
		w.WriteString(c.name)
		w.WriteInt32(int32(c.pixelType))
		w.WriteByte(c.pLinear)
		w.WriteZeros(3)
		w.WriteInt32(c.xSampling)
		w.WriteInt32(c.ySampling)
	}
	w.WriteByte(0)
}

// header is the decoded header of a single-part file.
type header struct {
	tiled       bool
	channels    []channel
	compression Compression
	display     image.Rectangle
	data        image.Rectangle
	aspect      float32
	tiles       TileDesc
	extra       []*Attribute
}

// bytesPerLine returns the size of one scanline of the given width over
// all channels.
func (h *header) bytesPerLine(width int) int {
	n := 0
	for _, c := range h.channels {
		n += width * c.pixelType.Size()
	}
	return n
}

func (h *header) chunkCount() int {
	w, ht := h.data.Dx(), h.data.Dy()
	if h.tiled {
		return ceilDiv(w, int(h.tiles.XSize)) * ceilDiv(ht, int(h.tiles.YSize))
	}
	return ceilDiv(ht, h.compression.ScanlinesPerChunk())
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func (h *header) write(w *xdr.Buffer) error {
	w.WriteInt32(Magic)
	flags := int32(version)
	if h.tiled {
		flags |= flagTiled
	}
	w.WriteInt32(flags)

	attrs := []*Attribute{
		{Name: "channels", Type: AttrTypeChlist, Value: h.channels},
		{Name: "compression", Type: AttrTypeCompression, Value: byte(h.compression)},
		{Name: "dataWindow", Type: AttrTypeBox2i, Value: boxFromRect(h.data)},
		{Name: "displayWindow", Type: AttrTypeBox2i, Value: boxFromRect(h.display)},
		{Name: "lineOrder", Type: AttrTypeLineOrder, Value: byte(lineOrderY)},
		{Name: "pixelAspectRatio", Type: AttrTypeFloat, Value: h.aspect},
		{Name: "screenWindowCenter", Type: AttrTypeV2f, Value: []float32{0, 0}},
		{Name: "screenWindowWidth", Type: AttrTypeFloat, Value: float32(1)},
	}
	if h.tiled {
		attrs = append(attrs, &Attribute{Name: "tiles", Type: AttrTypeTileDesc, Value: h.tiles})
	}
	attrs = append(attrs, h.extra...)

	for _, a := range attrs {
		if err := writeAttribute(w, a); err != nil {
			return err
		}
	}
	w.WriteByte(0)
	return nil
}

func readHeader(r *xdr.Reader) (*header, error) {
	magic, err := r.ReadInt32()
	if err != nil || magic != Magic {
		return nil, ErrInvalidMagic
	}
	flags, err := r.ReadInt32()
	if err != nil {
		return nil, ErrInvalidHeader
	}
	if flags&0xff != version {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupported, flags&0xff)
	}
	if flags&^(0xff|flagTiled|0x400) != 0 {
		return nil, fmt.Errorf("%w: flags %#x", ErrUnsupported, flags)
	}

	h := &header{tiled: flags&flagTiled != 0, aspect: 1}
	var seen []string
	for {
		a, err := readAttribute(r)
		if err != nil {
			return nil, err
		}
		if a == nil {
			break
		}
		seen = append(seen, a.Name)
		switch a.Name {
		case "channels":
			h.channels, _ = a.Value.([]channel)
		case "compression":
			c, _ := a.Value.(byte)
			h.compression = Compression(c)
		case "dataWindow":
			b, _ := a.Value.(Box2i)
			h.data = b.rect()
		case "displayWindow":
			b, _ := a.Value.(Box2i)
			h.display = b.rect()
		case "pixelAspectRatio":
			if f, ok := a.Value.(float32); ok {
				h.aspect = f
			}
		case "tiles":
			h.tiles, _ = a.Value.(TileDesc)
		default:
			if !reserved[a.Name] {
				h.extra = append(h.extra, a)
			}
		}
	}

	for _, req := range []string{"channels", "compression", "dataWindow", "displayWindow"} {
		if !slices.Contains(seen, req) {
			return nil, fmt.Errorf("%w: missing %s attribute", ErrInvalidHeader, req)
		}
	}
	if h.compression > CompressionB44A {
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, h.compression)
	}
	if h.tiled && (h.tiles.XSize == 0 || h.tiles.YSize == 0 || h.tiles.Mode&0x0f != 0) {
		return nil, fmt.Errorf("%w: only single level tiles are supported", ErrUnsupported)
	}
	for _, c := range h.channels {
		if c.xSampling != 1 || c.ySampling != 1 {
			return nil, fmt.Errorf("%w: subsampled channel %q", ErrUnsupported, c.name)
		}
		if c.pixelType < PixelTypeUint || c.pixelType > PixelTypeFloat {
			return nil, fmt.Errorf("%w: channel %q pixel type %d", ErrInvalidHeader, c.name, c.pixelType)
		}
	}
	if h.data.Empty() || h.display.Empty() {
		return nil, fmt.Errorf("%w: empty window", ErrInvalidHeader)
	}
	return h, nil
}

// sortedChannelOrder returns the indices of names in EXR channel order.
func sortedChannelOrder(names []string) []int {
	idx := make([]int, len(names))
	for i := range idx {
		idx[i] = i
	}
	slices.SortStableFunc(idx, func(a, b int) int {
		return strings.Compare(names[a], names[b])
	})
	return idx
}
