package exr

import (
	"image"
	"io"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
)

// Write encodes img as a single-part OpenEXR file. Channels are stored in
// name order as the format requires. Metadata entries become header
// attributes; encoder hints and structural names are skipped.
func Write(w io.Writer, img *codec.Image, md meta.Metadata, s Settings) error {
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Data.Empty() {
		img = img.Expand(img.Display)
	}

	names := img.ChannelNames()
	order := sortedChannelOrder(names)
	h := &header{
		tiled:       s.Tiled,
		compression: s.Compression,
		display:     img.Display,
		data:        img.Data,
		aspect:      float32(img.Aspect()),
		tiles:       TileDesc{XSize: tileSize, YSize: tileSize},
	}
	planes := make([][]float32, len(order))
	types := make([]PixelType, len(order))
	for i, idx := range order {
		h.channels = append(h.channels, channel{name: names[idx], pixelType: s.PixelType, xSampling: 1, ySampling: 1})
		planes[i] = img.Channels[idx].Pixels
		types[i] = s.PixelType
	}
	for _, key := range md.Keys() {
		if a, ok := metadataAttribute(key, md[key]); ok {
			h.extra = append(h.extra, a)
		}
	}

	buf := xdr.NewBuffer(4096)
	if err := h.write(buf); err != nil {
		return err
	}

	n := h.chunkCount()
	table := buf.Len()
	buf.WriteZeros(8 * n)

	for i, r := range chunkRects(h) {
		raw := packBlock(r, planes, types, h.data)
		data, err := compressBlock(h.compression, raw, r, types)
		if err != nil {
			return err
		}
		buf.PutUint64At(table+8*i, uint64(buf.Len()))
		if h.tiled {
			tx := (r.Min.X - h.data.Min.X) / tileSize
			ty := (r.Min.Y - h.data.Min.Y) / tileSize
			buf.WriteInt32(int32(tx))
			buf.WriteInt32(int32(ty))
			buf.WriteInt32(0)
			buf.WriteInt32(0)
		} else {
			buf.WriteInt32(int32(r.Min.Y))
		}
		buf.WriteInt32(int32(len(data)))
		buf.WriteBytes(data)
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// chunkRects returns the pixel rectangle of every chunk in file order.
func chunkRects(h *header) []image.Rectangle {
	var rects []image.Rectangle
	d := h.data
	if h.tiled {
		tw, th := int(h.tiles.XSize), int(h.tiles.YSize)
		for y := d.Min.Y; y < d.Max.Y; y += th {
			for x := d.Min.X; x < d.Max.X; x += tw {
				rects = append(rects, image.Rect(x, y, x+tw, y+th).Intersect(d))
			}
		}
		return rects
	}
	lines := h.compression.ScanlinesPerChunk()
	for y := d.Min.Y; y < d.Max.Y; y += lines {
		rects = append(rects, image.Rect(d.Min.X, y, d.Max.X, y+lines).Intersect(d))
	}
	return rects
}
