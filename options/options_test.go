package options

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/meta"
)

func TestDefaults(t *testing.T) {
	r := New()

	tests := []struct {
		format, name string
		want         meta.Value
	}{
		{"openexr", Mode, meta.Int(Scanline)},
		{"openexr", Compression, meta.String("zip")},
		{"openexr", DataType, meta.String("half")},
		{"tiff", Mode, meta.Int(Scanline)},
		{"tiff", Compression, meta.String("zip")},
		{"tiff", DataType, meta.String("uint8")},
		{"field3d", Mode, meta.Int(Scanline)},
		{"field3d", DataType, meta.String("float")},
		{"fits", DataType, meta.String("float")},
		{"iff", Mode, meta.Int(Tiled)},
		{"jpeg", CompressionQuality, meta.Int(98)},
		{"jpeg2000", DataType, meta.String("uint8")},
		{"png", Compression, meta.String("filtered")},
		{"png", CompressionLevel, meta.Int(6)},
		{"rla", DataType, meta.String("uint8")},
		{"sgi", DataType, meta.String("uint8")},
		{"targa", Compression, meta.String("rle")},
		{"webp", CompressionQuality, meta.Int(100)},
		{"dpx", DataType, meta.String("uint10")},
	}
	for _, tt := range tests {
		got, err := r.Get(tt.format, tt.name)
		require.NoError(t, err, "%s.%s", tt.format, tt.name)
		assert.Equal(t, tt.want, got, "%s.%s", tt.format, tt.name)
	}
}

func TestFormats(t *testing.T) {
	assert.Equal(t, []string{
		"dpx", "field3d", "fits", "iff", "jpeg", "jpeg2000", "openexr",
		"png", "rla", "sgi", "targa", "tiff", "webp",
	}, New().Formats())
}

func TestSet(t *testing.T) {
	r := New()

	require.NoError(t, r.Set("openexr", Compression, meta.String("rle")))
	v, _ := r.Get("openexr", Compression)
	assert.Equal(t, meta.String("rle"), v)

	require.NoError(t, r.Set("jpeg", CompressionQuality, meta.Int(0)))
	require.NoError(t, r.Set("jpeg", CompressionQuality, meta.Int(100)))

	invalid := []struct {
		format, name string
		v            meta.Value
	}{
		{"openexr", "bogus", meta.Int(1)},
		{"bogus", Mode, meta.Int(1)},
		{"openexr", Compression, meta.String("dwaa")},
		{"openexr", Mode, meta.Int(2)},
		{"openexr", Mode, meta.String("1")},
		{"jpeg", CompressionQuality, meta.Int(101)},
		{"png", CompressionLevel, meta.Float(5)},
	}
	for _, tt := range invalid {
		err := r.Set(tt.format, tt.name, tt.v)
		assert.ErrorIs(t, err, ErrInvalidOption, "%s.%s = %v", tt.format, tt.name, tt.v)
	}

	v, _ = r.Get("jpeg", CompressionQuality)
	assert.Equal(t, meta.Int(100), v, "rejected set leaves value unchanged")

	_, err := r.Get("png", Mode)
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestModeAlias(t *testing.T) {
	r := New()

	require.NoError(t, r.SetModeAlias(meta.Int(Tiled)))
	for _, format := range ModeTargets {
		v, err := r.Get(format, Mode)
		require.NoError(t, err)
		assert.Equal(t, meta.Int(Tiled), v, format)
	}

	require.NoError(t, r.SetModeAlias(meta.Int(Scanline)))
	for _, format := range ModeTargets {
		v, _ := r.Get(format, Mode)
		assert.Equal(t, meta.Int(Scanline), v, format)
	}

	assert.ErrorIs(t, r.SetModeAlias(meta.Int(7)), ErrInvalidOption)
	v, _ := r.Get("openexr", Mode)
	assert.Equal(t, meta.Int(Scanline), v)
}

func TestInjected(t *testing.T) {
	r := New()
	assert.Equal(t, meta.Metadata{meta.KeyBitsPerSample: meta.Int(8)}, r.Injected("tiff"))

	require.NoError(t, r.Set("tiff", DataType, meta.String("float")))
	assert.Equal(t, meta.Metadata{meta.KeyBitsPerSample: meta.Int(32)}, r.Injected("tiff"))

	require.NoError(t, r.Set("dpx", DataType, meta.String("uint12")))
	assert.Equal(t, meta.Metadata{
		meta.KeyBitsPerSample: meta.Int(12),
		"dpx:Packing":         meta.String("Packed"),
	}, r.Injected("dpx"))

	assert.Empty(t, r.Injected("openexr"))
	assert.Empty(t, r.Injected("bogus"))
}

func TestValuesIsCopy(t *testing.T) {
	r := New()
	vals := r.Values("png")
	vals[CompressionLevel] = meta.Int(1)
	v, _ := r.Get("png", CompressionLevel)
	assert.Equal(t, meta.Int(6), v)
	assert.Nil(t, r.Values("bogus"))
}

func TestReset(t *testing.T) {
	r := New()
	require.NoError(t, r.SetModeAlias(meta.Int(Tiled)))
	r.Reset()
	v, _ := r.Get("tiff", Mode)
	assert.Equal(t, meta.Int(Scanline), v)
	v, _ = r.Get("iff", Mode)
	assert.Equal(t, meta.Int(Tiled), v)
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = r.SetModeAlias(meta.Int(int64(i % 2)))
		}()
		go func() {
			defer wg.Done()
			_ = r.Values("openexr")
			_ = r.Injected("tiff")
		}()
	}
	wg.Wait()
}
