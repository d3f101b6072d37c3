package bmp

import (
	"bytes"
	"encoding/binary"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/codec"
)

func gradient(w, h int, names ...string) *codec.Image {
	img := codec.NewImage(image.Rect(0, 0, w, h), names...)
	for ci, c := range img.Channels {
		for i := range c.Pixels {
			c.Pixels[i] = float32((i*5+ci*60)%256) / 255
		}
	}
	return img
}

func roundTrip(t *testing.T, img *codec.Image) *codec.Image {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, img, nil, nil))
	assert.Equal(t, "BM", buf.String()[:2])
	got, _, err := Codec{}.Decode(&buf)
	require.NoError(t, err)
	return got
}

func TestLayouts(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"Y"}, []string{"Y"}},
		{[]string{"R", "G", "B"}, []string{"R", "G", "B"}},
		{[]string{"Y", "A"}, []string{"R", "G", "B", "A"}},
	}
	for _, tt := range tests {
		got := roundTrip(t, gradient(9, 4, tt.in...))
		assert.Equal(t, tt.want, got.ChannelNames(), "%v", tt.in)
	}
}

func TestRoundTripRGB(t *testing.T) {
	img := gradient(13, 7, "R", "G", "B")
	got := roundTrip(t, img)
	for ci, c := range img.Channels {
		for i, v := range c.Pixels {
			require.InDelta(t, v, got.Channels[ci].Pixels[i], 1e-6)
		}
	}
}

func TestAlphaIsPremultipliedOnRead(t *testing.T) {
	img := codec.NewImage(image.Rect(0, 0, 1, 1), "R", "G", "B", "A")
	img.Channels[0].Pixels[0] = 0.25
	img.Channels[3].Pixels[0] = 0.5
	got := roundTrip(t, img)
	assert.InDelta(t, 0.25, got.Channels[0].Pixels[0], 0.005)
	assert.InDelta(t, 0.5, got.Channels[3].Pixels[0], 0.005)
}

func TestOpaqueAlphaIsKept(t *testing.T) {
	img := gradient(5, 3, "R", "G", "B", "A")
	for i := range img.Channels[3].Pixels {
		img.Channels[3].Pixels[i] = 1
	}
	var buf bytes.Buffer
	require.NoError(t, Codec{}.Encode(&buf, img, nil, nil))
	b := buf.Bytes()
	assert.Equal(t, uint32(v4HeaderLen), binary.LittleEndian.Uint32(b[14:]))
	assert.Equal(t, uint16(32), binary.LittleEndian.Uint16(b[28:]))
	assert.Equal(t, uint32(0xff000000), binary.LittleEndian.Uint32(b[66:]))

	got, _, err := Codec{}.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "G", "B", "A"}, got.ChannelNames())
	for ci, c := range img.Channels {
		for i, v := range c.Pixels {
			require.InDelta(t, v, got.Channels[ci].Pixels[i], 1e-6)
		}
	}
}
