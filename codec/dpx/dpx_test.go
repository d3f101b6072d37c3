package dpx

import (
	"bytes"
	"encoding/binary"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
)

func gradient(w, h int, names ...string) *codec.Image {
	img := codec.NewImage(image.Rect(0, 0, w, h), names...)
	for ci, c := range img.Channels {
		for i := range c.Pixels {
			c.Pixels[i] = float32((i*7+ci*13)%64) / 63
		}
	}
	return img
}

func roundTrip(t *testing.T, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) ([]byte, *codec.Image, meta.Metadata) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, img, md, opts))
	got, gotMD, err := Codec{}.Decode(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return buf.Bytes(), got, gotMD
}

func TestBitDepths(t *testing.T) {
	tests := []struct {
		dataType string
		packing  string
		depth    int64
	}{
		{"uint8", "", 8},
		{"uint10", "", 10},
		{"uint10", Packed, 10},
		{"uint12", Packed, 12},
		{"uint12", "", 12},
		{"uint16", "", 16},
	}
	for _, tt := range tests {
		t.Run(tt.dataType+tt.packing, func(t *testing.T) {
			// Odd widths leave partial words at the end of each row.
			img := gradient(7, 5, "R", "G", "B", "A")
			md := meta.Metadata{}
			if tt.packing != "" {
				md[KeyPacking] = meta.String(tt.packing)
			}
			data, got, gotMD := roundTrip(t, img, md, map[string]meta.Value{"dataType": meta.String(tt.dataType)})

			assert.Equal(t, uint32(len(data)), binary.BigEndian.Uint32(data[16:]), "file size field")
			assert.Equal(t, []string{"R", "G", "B", "A"}, got.ChannelNames())
			assert.Equal(t, meta.Int(tt.depth), gotMD[meta.KeyBitsPerSample])
			tol := 0.5/float64(uint32(1)<<tt.depth-1) + 1e-6
			for ci, c := range img.Channels {
				for i, v := range c.Pixels {
					require.InDelta(t, v, got.Channels[ci].Pixels[i], tol, "%s[%d]", c.Name, i)
				}
			}
		})
	}
}

func TestDefaultDepth(t *testing.T) {
	_, _, md := roundTrip(t, gradient(4, 4, "R", "G", "B"), nil, nil)
	assert.Equal(t, meta.Int(10), md[meta.KeyBitsPerSample])
	assert.Equal(t, meta.String(Filled), md[KeyPacking])
}

func TestLayouts(t *testing.T) {
	_, got, _ := roundTrip(t, gradient(3, 3, "Y"), nil, nil)
	assert.Equal(t, []string{"Y"}, got.ChannelNames())

	src := gradient(3, 3, "Y", "A")
	_, got, _ = roundTrip(t, src, nil, map[string]meta.Value{"dataType": meta.String("uint16")})
	assert.Equal(t, []string{"R", "G", "B", "A"}, got.ChannelNames())
	for c := range 3 {
		assert.InDelta(t, src.Channels[0].Pixels[4], got.Channels[c].Pixels[4], 1e-4)
	}

	_, got, _ = roundTrip(t, &codec.Image{Display: image.Rect(0, 0, 2, 2), Data: image.Rect(0, 0, 2, 2)}, nil, nil)
	assert.Equal(t, []string{"Y"}, got.ChannelNames())
	assert.Equal(t, []float32{0, 0, 0, 0}, got.Channels[0].Pixels)
}

func TestHeaderMetadata(t *testing.T) {
	img := gradient(4, 2, "R", "G", "B")
	img.PixelAspect = 2
	md := meta.Metadata{
		meta.KeySoftware:     meta.String("Gaffer 1.5.0"),
		meta.KeyDocumentName: meta.String("/shows/a.gfr"),
		meta.KeyCopyright:    meta.String("(c) studio"),
		meta.KeyDateTime:     meta.String("2024:03:09 17:04:05"),
	}
	data, got, gotMD := roundTrip(t, img, md, nil)

	assert.Equal(t, "SDPX", string(data[:4]))
	assert.Equal(t, "2024:03:09:17:04:05", string(data[136:155]))
	for k, v := range md {
		assert.Equal(t, v, gotMD[k], k)
	}
	assert.Equal(t, 2.0, got.PixelAspect)
	assert.Equal(t, meta.Float(2), gotMD[meta.KeyPixelAspectRatio])
}

func TestAspectRatio(t *testing.T) {
	num, den := aspectRatio(1)
	assert.Equal(t, [2]uint32{1, 1}, [2]uint32{num, den})
	num, den = aspectRatio(0.9)
	assert.Equal(t, [2]uint32{9, 10}, [2]uint32{num, den})
}

func TestInvalidDataType(t *testing.T) {
	var buf bytes.Buffer
	err := Codec{}.Encode(&buf, gradient(2, 2, "R"), nil, map[string]meta.Value{"dataType": meta.String("float")})
	assert.ErrorIs(t, err, codec.ErrInvalidOption)
	assert.Zero(t, buf.Len())
}

func TestDecodeErrors(t *testing.T) {
	_, _, err := Codec{}.Decode(bytes.NewReader(make([]byte, 10)))
	assert.ErrorIs(t, err, ErrCorrupt)

	_, _, err = Codec{}.Decode(bytes.NewReader(make([]byte, headerSize)))
	assert.ErrorIs(t, err, ErrInvalidMagic)

	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, gradient(4, 4, "R", "G", "B"), nil, nil))
	_, _, err = Codec{}.Decode(bytes.NewReader(buf.Bytes()[:buf.Len()-1]))
	assert.ErrorIs(t, err, ErrCorrupt)

	bad := bytes.Clone(buf.Bytes())
	bad[800] = 100
	_, _, err = Codec{}.Decode(bytes.NewReader(bad))
	assert.ErrorIs(t, err, ErrUnsupported)
}
