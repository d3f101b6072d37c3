package tga

import (
	"bytes"
	"image"
	"strings"
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
			c.Pixels[i] = float32((i/3+ci*40)%256) / 255
		}
	}
	return img
}

func encode(t *testing.T, img *codec.Image, md meta.Metadata, compression string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, img, md, map[string]meta.Value{"compression": meta.String(compression)}))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	for _, compression := range []string{"none", "rle"} {
		for _, names := range [][]string{{"Y"}, {"R", "G", "B"}} {
			t.Run(compression+"/"+strings.Join(names, ""), func(t *testing.T) {
				img := gradient(37, 11, names...)
				data := encode(t, img, nil, compression)
				want := byte(typeTrueColor)
				if len(names) == 1 {
					want = typeGray
				}
				if compression == "rle" {
					want += 8
				}
				assert.Equal(t, want, data[2])

				got, md, err := Codec{}.Decode(bytes.NewReader(data))
				require.NoError(t, err)
				assert.Equal(t, names, got.ChannelNames())
				assert.Equal(t, meta.String(compression), md["compression"])
				for ci, c := range img.Channels {
					for i, v := range c.Pixels {
						require.InDelta(t, v, got.Channels[ci].Pixels[i], 1e-6)
					}
				}
			})
		}
	}
}

func TestRLEShrinksFlatImages(t *testing.T) {
	img := codec.NewImage(image.Rect(0, 0, 200, 50), "R", "G", "B")
	raw := encode(t, img, nil, "none")
	rle := encode(t, img, nil, "rle")
	assert.Less(t, len(rle), len(raw)/10)
}

func TestEncodeRow(t *testing.T) {
	row := []byte{1, 1, 1, 2, 3, 4, 4}
	assert.Equal(t, []byte{0x82, 1, 0x01, 2, 3, 0x81, 4}, encodeRow(nil, row, 1))

	long := make([]byte, 300)
	packets := encodeRow(nil, long, 1)
	assert.Equal(t, []byte{0xff, 0, 0xff, 0, 0xab, 0}, packets)

	out := make([]byte, len(long))
	require.NoError(t, decodeRLE(out, packets, 1))
	assert.Equal(t, long, out)
}

func TestStraightAlpha(t *testing.T) {
	img := codec.NewImage(image.Rect(0, 0, 1, 1), "R", "G", "B", "A")
	img.Channels[0].Pixels[0] = 0.25
	img.Channels[3].Pixels[0] = 0.5
	data := encode(t, img, nil, "none")
	assert.Equal(t, byte(32), data[16])
	assert.Equal(t, []byte{0, 0, 128, 128}, data[headerSize:headerSize+4])

	got, _, err := Codec{}.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "G", "B", "A"}, got.ChannelNames())
	assert.InDelta(t, 0.25, got.Channels[0].Pixels[0], 0.005)
	assert.InDelta(t, 0.5, got.Channels[3].Pixels[0], 0.005)
}

func TestExtensionArea(t *testing.T) {
	img := gradient(4, 4, "R", "G", "B")
	img.PixelAspect = 2
	md := meta.Metadata{
		meta.KeyArtist:           meta.String("jdoe"),
		meta.KeyImageDescription: meta.String("beauty pass"),
		meta.KeyDocumentName:     meta.String("/shows/a.gfr"),
		meta.KeySoftware:         meta.String("Gaffer 1.5.0"),
		meta.KeyDateTime:         meta.String("2024:03:09 17:04:05"),
	}
	data := encode(t, img, md, "rle")
	assert.Equal(t, signature, string(data[len(data)-18:]))

	got, gotMD, err := Codec{}.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	for k, v := range md {
		assert.Equal(t, v, gotMD[k], k)
	}
	assert.Equal(t, 2.0, got.PixelAspect)
}

func TestBottomUpRows(t *testing.T) {
	data := encode(t, gradient(2, 2, "Y"), nil, "none")
	data[17] &^= descriptorTopLeft
	data[headerSize] = 255

	got, _, err := Codec{}.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, float32(1), got.Channels[0].Pixels[2], "first stored row is the bottom row")
}

func TestErrors(t *testing.T) {
	var buf bytes.Buffer
	err := Codec{}.Encode(&buf, gradient(2, 2, "R"), nil, map[string]meta.Value{"compression": meta.String("zip")})
	assert.ErrorIs(t, err, codec.ErrInvalidOption)

	_, _, err = Codec{}.Decode(bytes.NewReader([]byte{0, 0, 2}))
	assert.ErrorIs(t, err, ErrCorrupt)

	data := encode(t, gradient(2, 2, "R", "G", "B"), nil, "none")
	data[1] = 1
	_, _, err = Codec{}.Decode(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrUnsupported)

	data = encode(t, gradient(8, 8, "R", "G", "B"), nil, "rle")
	_, _, err = Codec{}.Decode(bytes.NewReader(data[:headerSize+5]))
	assert.ErrorIs(t, err, ErrCorrupt)
}
