package codec

import (
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// rawCodec stores the data window size and one byte per sample of the
// first channel.
type rawCodec struct{}

func (rawCodec) Format() string                             { return "raw" }
func (rawCodec) Extensions() []string                       { return []string{"raw", "bin"} }
func (rawCodec) Policy(map[string]meta.Value) window.Policy { return window.Pad }

func (rawCodec) Encode(w io.Writer, img *Image, _ meta.Metadata, _ map[string]meta.Value) error {
	buf := []byte{byte(img.Data.Dx()), byte(img.Data.Dy())}
	for _, v := range img.Channels[0].Pixels {
		buf = append(buf, byte(Quantize(v, 255)))
	}
	_, err := w.Write(buf)
	return err
}

func (rawCodec) Decode(r io.Reader) (*Image, meta.Metadata, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	img := NewImage(image.Rect(0, 0, int(b[0]), int(b[1])), Luminance)
	for i, v := range b[2:] {
		img.Channels[0].Pixels[i] = Dequantize(uint32(v), 255)
	}
	return img, meta.Metadata{}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	r.Register(rawCodec{})

	assert.Equal(t, []string{"bin", "raw"}, r.Extensions())

	enc, ok := r.Lookup("/tmp/x.RAW")
	require.True(t, ok)
	assert.Equal(t, "raw", enc.Format())

	_, ok = r.Lookup("/tmp/x.exr")
	assert.False(t, ok)
}

func TestRegistryDecode(t *testing.T) {
	r := NewRegistry()
	r.Register(rawCodec{})

	path := filepath.Join(t.TempDir(), "img.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	img := NewImage(image.Rect(0, 0, 2, 1), "R")
	img.Channels[0].Pixels = []float32{0, 1}
	require.NoError(t, rawCodec{}.Encode(f, img, nil, nil))
	require.NoError(t, f.Close())

	got, _, err := r.Decode(path)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), got.Data)
	assert.Equal(t, []float32{0, 1}, got.Channels[0].Pixels)

	_, _, err = r.Decode(filepath.Join(t.TempDir(), "img.exr"))
	assert.ErrorIs(t, err, ErrNoFormatReader)
}
