package all

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/options"
)

func TestEveryEncoderHasOptions(t *testing.T) {
	reg := options.New()
	formats := map[string]bool{}
	for _, f := range reg.Formats() {
		formats[f] = true
	}
	for _, enc := range Encoders() {
		switch enc.Format() {
		case "bmp", "hdr":
			// No options.
		default:
			assert.True(t, formats[enc.Format()], "format %q has no option table", enc.Format())
		}
	}
}

func TestLookup(t *testing.T) {
	r := Default()
	for path, format := range map[string]string{
		"/a/b.exr":        "openexr",
		"beauty.0001.TIF": "tiff",
		"x.tiff":          "tiff",
		"x.png":           "png",
		"x.jpg":           "jpeg",
		"x.jpeg":          "jpeg",
		"x.dpx":           "dpx",
		"x.tga":           "targa",
		"x.iff":           "iff",
		"x.bmp":           "bmp",
		"x.hdr":           "hdr",
		"x.jp2":           "jpeg2000",
		"x.j2k":           "jpeg2000",
	} {
		enc, ok := r.Lookup(path)
		require.True(t, ok, path)
		assert.Equal(t, format, enc.Format(), path)
	}
}

func TestFormatsWithoutWriter(t *testing.T) {
	r := Default()
	for _, path := range []string{"a.f3d", "a.fits", "a.rla", "a.sgi", "a.rgb", "a.webp", "a.xyz", "noext"} {
		_, ok := r.Lookup(path)
		assert.False(t, ok, path)
	}
}

func TestExtensionsMatchOptionFormats(t *testing.T) {
	for _, enc := range Encoders() {
		for _, ext := range enc.Extensions() {
			format, ok := options.FormatForExtension(ext)
			assert.True(t, ok, ext)
			assert.Equal(t, enc.Format(), format, ext)
		}
	}
	for _, ext := range []string{"f3d", "fits", "rla", "sgi", "rgb", "webp"} {
		_, ok := options.FormatForExtension(ext)
		assert.True(t, ok, ext)
	}
	_, ok := options.FormatForExtension("xyz")
	assert.False(t, ok)
}
