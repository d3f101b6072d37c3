package exr

import (
	"fmt"
	"image"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
)

// Info summarizes the storage layout of a file.
type Info struct {
	Tiled       bool
	Compression Compression
	Display     image.Rectangle
	Data        image.Rectangle
	// Channels maps channel names to their pixel types.
	Channels map[string]PixelType
}

// Inspect decodes the header of an OpenEXR file.
func Inspect(data []byte) (Info, error) {
	h, err := readHeader(xdr.NewReader(data))
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Tiled:       h.tiled,
		Compression: h.compression,
		Display:     h.display,
		Data:        h.data,
		Channels:    make(map[string]PixelType, len(h.channels)),
	}
	for _, c := range h.channels {
		info.Channels[c.name] = c.pixelType
	}
	return info, nil
}

// Read decodes a single-part OpenEXR file. The returned metadata holds the
// non-structural header attributes, the pixel aspect ratio and the
// compression name.
func Read(data []byte) (*codec.Image, meta.Metadata, error) {
	r := xdr.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}

	img := &codec.Image{Display: h.display, Data: h.data, PixelAspect: float64(h.aspect)}
	planes := make([][]float32, len(h.channels))
	types := make([]PixelType, len(h.channels))
	for i, c := range h.channels {
		planes[i] = make([]float32, h.data.Dx()*h.data.Dy())
		types[i] = c.pixelType
		img.Channels = append(img.Channels, codec.Channel{Name: c.name, Pixels: planes[i]})
	}

	n := h.chunkCount()
	offsets := make([]uint64, n)
	for i := range offsets {
		if offsets[i], err = r.ReadUint64(); err != nil {
			return nil, nil, fmt.Errorf("%w: truncated offset table", ErrInvalidChunk)
		}
	}

	lines := h.compression.ScanlinesPerChunk()
	for _, off := range offsets {
		if err := r.SetPos(int(off)); err != nil || off == 0 {
			return nil, nil, fmt.Errorf("%w: offset %d", ErrInvalidChunk, off)
		}
		var rect image.Rectangle
		if h.tiled {
			tx, _ := r.ReadInt32()
			ty, _ := r.ReadInt32()
			lx, _ := r.ReadInt32()
			ly, _ := r.ReadInt32()
			if lx != 0 || ly != 0 {
				return nil, nil, fmt.Errorf("%w: tile level %d,%d", ErrUnsupported, lx, ly)
			}
			x0 := h.data.Min.X + int(tx)*int(h.tiles.XSize)
			y0 := h.data.Min.Y + int(ty)*int(h.tiles.YSize)
			rect = image.Rect(x0, y0, x0+int(h.tiles.XSize), y0+int(h.tiles.YSize))
		} else {
			y, _ := r.ReadInt32()
			rect = image.Rect(h.data.Min.X, int(y), h.data.Max.X, int(y)+lines)
		}
		rect = rect.Intersect(h.data)
		if rect.Empty() {
			return nil, nil, fmt.Errorf("%w: chunk outside data window", ErrInvalidChunk)
		}

		size, err := r.ReadInt32()
		if err != nil || size < 0 {
			return nil, nil, ErrInvalidChunk
		}
		packed, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, nil, fmt.Errorf("%w: truncated chunk", ErrInvalidChunk)
		}
		raw, err := decompressBlock(h.compression, packed, h.bytesPerLine(rect.Dx())*rect.Dy(), rect, types)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidChunk, err)
		}
		if err := unpackBlock(raw, rect, planes, types, h.data); err != nil {
			return nil, nil, err
		}
	}

	md := meta.Metadata{
		meta.KeyPixelAspectRatio: meta.Float(float64(h.aspect)),
		"compression":            meta.String(h.compression.String()),
	}
	for _, a := range h.extra {
		if key, v, ok := attributeMetadata(a); ok {
			md[key] = v
		}
	}
	return img, md, nil
}
