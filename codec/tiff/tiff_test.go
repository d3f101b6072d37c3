package tiff

import (
	"bytes"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	xtiff "golang.org/x/image/tiff"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/internal/ifd"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// testImage fills channels with values that survive quantization to max.
func testImage(w, h int, max uint32, names ...string) *codec.Image {
	img := codec.NewImage(image.Rect(0, 0, w, h), names...)
	for ci := range img.Channels {
		for i := range img.Channels[ci].Pixels {
			img.Channels[ci].Pixels[i] = codec.Dequantize(uint32(i*13+ci*50)%(max+1), max)
		}
	}
	return img
}

func encode(t *testing.T, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, img, md, opts))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	types := []struct {
		name string
		max  uint32
		bits int64
	}{
		{"uint8", 0xff, 8},
		{"uint16", 0xffff, 16},
		{"float", 0xff, 32},
	}
	for _, comp := range []string{"none", "lzw", "zip", "deflate", "packbits"} {
		for _, dt := range types {
			opts := map[string]meta.Value{"compression": meta.String(comp), "dataType": meta.String(dt.name)}
			img := testImage(67, 1200, dt.max, "R", "G", "B", "A")

			got, md, err := Codec{}.Decode(bytes.NewReader(encode(t, img, nil, opts)))
			require.NoError(t, err, "%s %s", comp, dt.name)

			assert.Equal(t, []string{"R", "G", "B", "A"}, got.ChannelNames())
			assert.Equal(t, img.Data, got.Data)
			for ci := range img.Channels {
				assert.Equal(t, img.Channels[ci].Pixels, got.Channels[ci].Pixels, "%s %s", comp, dt.name)
			}
			assert.Equal(t, meta.Int(dt.bits), md[meta.KeyBitsPerSample])
			assert.Equal(t, meta.String(comp), md["compression"])
		}
	}
}

func TestTiled(t *testing.T) {
	tiled := map[string]meta.Value{options.Mode: meta.Int(options.Tiled)}
	for _, comp := range []string{"none", "lzw", "zip", "packbits"} {
		for _, dt := range []string{"uint8", "uint16", "float"} {
			opts := map[string]meta.Value{
				options.Mode:        meta.Int(options.Tiled),
				options.Compression: meta.String(comp),
				options.DataType:    meta.String(dt),
			}
			// Partial tiles on both edges.
			img := testImage(150, 70, 0xff, "R", "G", "B", "A")
			got, _, err := Codec{}.Decode(bytes.NewReader(encode(t, img, nil, opts)))
			require.NoError(t, err, "%s %s", comp, dt)
			assert.Equal(t, img.Data, got.Data)
			for ci := range img.Channels {
				assert.Equal(t, img.Channels[ci].Pixels, got.Channels[ci].Pixels, "%s %s", comp, dt)
			}
		}
	}

	data := encode(t, testImage(150, 70, 0xff, "Y"), nil, tiled)
	order, first, err := ifd.ParseHeader(data)
	require.NoError(t, err)
	d, _, err := ifd.Read(data, order, first)
	require.NoError(t, err)
	assert.Equal(t, uint32(tileSize), d.Uint(ifd.TagTileWidth, 0))
	assert.Equal(t, uint32(tileSize), d.Uint(ifd.TagTileLength, 0))
	offsets, _ := d.Uints(ifd.TagTileOffsets)
	assert.Len(t, offsets, 3*2)
	_, ok := d.Field(ifd.TagStripOffsets)
	assert.False(t, ok)

	scanline := encode(t, testImage(150, 70, 0xff, "Y"), nil, map[string]meta.Value{options.Mode: meta.Int(options.Scanline)})
	order, first, err = ifd.ParseHeader(scanline)
	require.NoError(t, err)
	d, _, err = ifd.Read(scanline, order, first)
	require.NoError(t, err)
	_, ok = d.Field(ifd.TagTileWidth)
	assert.False(t, ok)

	img := testImage(100, 20, 0xff, "R", "G", "B")
	decoded, err := xtiff.Decode(bytes.NewReader(encode(t, img, nil, tiled)))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 20), decoded.Bounds())
	r, _, _, _ := decoded.At(99, 19).RGBA()
	assert.Equal(t, codec.Quantize(img.Channels[0].Pixels[19*100+99], 0xff), r>>8)
}

func TestStandardDecoder(t *testing.T) {
	for _, comp := range []string{"none", "lzw", "zip", "deflate", "packbits"} {
		img := testImage(40, 30, 0xff, "R", "G", "B", "A")
		data := encode(t, img, nil, map[string]meta.Value{"compression": meta.String(comp), "dataType": meta.String("uint8")})

		decoded, err := xtiff.Decode(bytes.NewReader(data))
		require.NoError(t, err, comp)
		assert.Equal(t, image.Rect(0, 0, 40, 30), decoded.Bounds())

		for _, p := range []image.Point{{0, 0}, {39, 0}, {17, 29}} {
			i := p.Y*40 + p.X
			r, _, b, a := decoded.At(p.X, p.Y).RGBA()
			assert.Equal(t, codec.Quantize(img.Channels[0].Pixels[i], 0xff), r>>8, "%s R at %v", comp, p)
			assert.Equal(t, codec.Quantize(img.Channels[2].Pixels[i], 0xff), b>>8, "%s B at %v", comp, p)
			assert.Equal(t, codec.Quantize(img.Channels[3].Pixels[i], 0xff), a>>8, "%s A at %v", comp, p)
		}
	}

	img := testImage(10, 10, 0xffff, "R", "G", "B")
	data := encode(t, img, nil, map[string]meta.Value{"dataType": meta.String("uint16")})
	decoded, err := xtiff.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	_, g, _, _ := decoded.At(3, 4).RGBA()
	assert.Equal(t, codec.Quantize(img.Channels[1].Pixels[43], 0xffff), g)
}

func TestMetadata(t *testing.T) {
	img := testImage(8, 8, 0xff, "R", "G", "B")
	img.PixelAspect = 2
	md := meta.Metadata{
		meta.KeySoftware:         meta.String("Gaffer 1.5.0"),
		meta.KeyArtist:           meta.String("jdoe"),
		meta.KeyHostComputer:     meta.String("render07"),
		meta.KeyDocumentName:     meta.String("untitled"),
		meta.KeyDateTime:         meta.String("2024:03:09 17:04:05"),
		meta.KeyImageDescription: meta.String("desc"),
		meta.KeyCopyright:        meta.String("studio"),
		"custom":                 meta.String("ignored"),
	}

	got, gotMD, err := Codec{}.Decode(bytes.NewReader(encode(t, img, md, nil)))
	require.NoError(t, err)
	for _, key := range []string{
		meta.KeySoftware, meta.KeyArtist, meta.KeyHostComputer, meta.KeyDocumentName,
		meta.KeyDateTime, meta.KeyImageDescription, meta.KeyCopyright,
	} {
		assert.Equal(t, md[key], gotMD[key], key)
	}
	assert.NotContains(t, gotMD, "custom")
	assert.Equal(t, 2.0, got.PixelAspect)
	assert.Equal(t, meta.Float(2), gotMD[meta.KeyPixelAspectRatio])
}

func TestChannelLayouts(t *testing.T) {
	rb := testImage(4, 4, 0xff, "R", "B")
	got, _, err := Codec{}.Decode(bytes.NewReader(encode(t, rb, nil, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "G", "B"}, got.ChannelNames())
	assert.Equal(t, make([]float32, 16), got.Channels[1].Pixels)
	assert.Equal(t, rb.Channels[1].Pixels, got.Channels[2].Pixels)

	ya := testImage(4, 4, 0xff, "Y", "A")
	got, _, err = Codec{}.Decode(bytes.NewReader(encode(t, ya, nil, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "A"}, got.ChannelNames())

	none := codec.NewImage(image.Rect(0, 0, 3, 3))
	got, _, err = Codec{}.Decode(bytes.NewReader(encode(t, none, nil, nil)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, got.ChannelNames())
}

func TestPadsDataWindow(t *testing.T) {
	img := &codec.Image{
		Display:  image.Rect(0, 0, 4, 2),
		Data:     image.Rect(1, 0, 2, 1),
		Channels: []codec.Channel{{Name: "Y", Pixels: []float32{1}}},
	}
	got, _, err := Codec{}.Decode(bytes.NewReader(encode(t, img, nil, map[string]meta.Value{"dataType": meta.String("float")})))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), got.Data)
	assert.Equal(t, []float32{0, 1, 0, 0, 0, 0, 0, 0}, got.Channels[0].Pixels)
	assert.Equal(t, window.Pad, Codec{}.Policy(nil))
}

func TestInvalidOptions(t *testing.T) {
	img := testImage(2, 2, 0xff, "Y")
	var buf bytes.Buffer
	err := Codec{}.Encode(&buf, img, nil, map[string]meta.Value{"compression": meta.String("ccittrle")})
	assert.ErrorIs(t, err, codec.ErrInvalidOption)
	err = Codec{}.Encode(&buf, img, nil, map[string]meta.Value{"dataType": meta.String("uint32")})
	assert.ErrorIs(t, err, codec.ErrInvalidOption)
	assert.Zero(t, buf.Len())
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Codec{}.Decode(bytes.NewReader([]byte("not a tiff")))
	assert.Error(t, err)

	data := encode(t, testImage(16, 16, 0xff, "Y"), nil, map[string]meta.Value{"compression": meta.String("none")})
	// The directory sits after the strips, so a truncated file loses it.
	_, _, err = Codec{}.Decode(bytes.NewReader(data[:20]))
	assert.Error(t, err)
}
