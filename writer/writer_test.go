package writer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/codec/all"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/source"
	"github.com/gkocov/gaffer/subst"
	"github.com/gkocov/gaffer/window"
)

var fixedTime = time.Date(2024, 3, 9, 17, 4, 5, 0, time.Local)

func newNode(t *testing.T, in source.Image, name string) *Node {
	t.Helper()
	n := New(all.Default())
	n.In = in
	n.FileName = filepath.Join(t.TempDir(), name)
	n.Environment = Environment{HostName: "render07", UserName: "jdoe", Now: func() time.Time { return fixedTime }}
	return n
}

func write(t *testing.T, n *Node) *codec.Image {
	t.Helper()
	require.NoError(t, n.Write(context.Background(), subst.Context{}))
	img, _, err := n.Encoders.Decode(n.Request(subst.Context{}).Path)
	require.NoError(t, err)
	return img
}

func constant() *source.Constant {
	return source.NewConstant(window.NewBox(0, 0, 100, 100), 0.25, 0.5, 0.75, 1)
}

func TestChannelMask(t *testing.T) {
	for _, name := range []string{"out.exr", "OUT.EXR"} {
		n := newNode(t, constant(), name)
		n.Channels = []string{"R B"}
		img := write(t, n)
		assert.Equal(t, []string{"R", "B"}, img.ChannelNames(), name)
	}
}

func TestChannelMaskByFormat(t *testing.T) {
	rgb := []string{"R", "G", "B"}
	tests := []struct {
		file   string
		masked []string
		empty  []string
	}{
		{"out.exr", []string{"R", "B"}, []string{}},
		{"out.png", rgb, []string{"Y"}},
		{"out.tif", rgb, []string{"Y"}},
		{"out.dpx", rgb, []string{"Y"}},
		{"out.tga", rgb, []string{"Y"}},
		{"out.bmp", rgb, []string{"Y"}},
		{"out.jpg", rgb, []string{"Y"}},
		{"out.jp2", rgb, []string{"Y"}},
		{"out.iff", rgb, rgb},
		{"out.hdr", rgb, rgb},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			n := newNode(t, constant(), tt.file)
			n.Channels = []string{"R B"}
			img := write(t, n)
			require.Equal(t, tt.masked, img.ChannelNames())
			assert.InDelta(t, 0.25, maxAbs(channel(t, img, "R")), 0.02)
			assert.InDelta(t, 0.75, maxAbs(channel(t, img, "B")), 0.02)
			if len(tt.masked) == 3 {
				assert.InDelta(t, 0, maxAbs(channel(t, img, "G")), 0.02, "unselected G is zero filled")
			}

			n.FileName = filepath.Join(t.TempDir(), tt.file)
			n.Channels = []string{"none"}
			img = write(t, n)
			assert.Equal(t, tt.empty, img.ChannelNames())
			for _, c := range img.Channels {
				assert.InDelta(t, 0, maxAbs(c.Pixels), 0.02, c.Name)
			}
		})
	}
}

func channel(t *testing.T, img *codec.Image, name string) []float32 {
	t.Helper()
	c, ok := img.Channel(name)
	require.True(t, ok, name)
	return c.Pixels
}

func maxAbs(pixels []float32) float64 {
	var m float64
	for _, v := range pixels {
		m = max(m, math.Abs(float64(v)))
	}
	return m
}

func TestHandBuiltRequest(t *testing.T) {
	n := newNode(t, nil, "unused.exr")
	req := Request{
		Path:     filepath.Join(t.TempDir(), "manual.exr"),
		In:       constant(),
		Channels: []string{"R"},
		Format:   "openexr",
	}
	require.NoError(t, n.Execute(context.Background(), req))
	img, _, err := n.Encoders.Decode(req.Path)
	require.NoError(t, err)
	assert.Equal(t, []string{"R"}, img.ChannelNames())

	// Without options of its own the request takes the node's.
	require.NoError(t, n.Options.Set("tiff", options.DataType, meta.String("uint16")))
	req.Path = filepath.Join(t.TempDir(), "manual.tif")
	req.Format = ""
	require.NoError(t, n.Execute(context.Background(), req))
	_, md, err := n.Encoders.Decode(req.Path)
	require.NoError(t, err)
	assert.Equal(t, meta.Int(16), md[meta.KeyBitsPerSample])

	req.Path = filepath.Join(t.TempDir(), "manual.sgi")
	assert.ErrorIs(t, n.Execute(context.Background(), req), ErrNoFormatWriter)
}

func TestMatchChannels(t *testing.T) {
	names := []string{"A", "B", "G", "R", "Z", "diffuse.R"}
	assert.Equal(t, []string{"R", "G", "B", "A", "Z", "diffuse.R"}, MatchChannels(names, []string{"*"}))
	assert.Equal(t, []string{"R", "diffuse.R"}, MatchChannels(names, []string{"R", "*.R"}))
	assert.Equal(t, []string{"R", "G", "B"}, MatchChannels(names, []string{"[RGB]"}))
	assert.Empty(t, MatchChannels(names, []string{"none"}))
}

func TestWriteModeAlias(t *testing.T) {
	n := New(all.Default())
	for _, mode := range []int64{options.Tiled, options.Scanline} {
		require.NoError(t, n.SetWriteMode(mode))
		for _, format := range options.ModeTargets {
			v, err := n.Options.Get(format, options.Mode)
			require.NoError(t, err)
			assert.Equal(t, meta.Int(mode), v, format)
		}
	}
	assert.ErrorIs(t, n.SetWriteMode(2), options.ErrInvalidOption)
}

func TestDefaults(t *testing.T) {
	n := New(all.Default())
	for _, tt := range []struct {
		format, name string
		want         meta.Value
	}{
		{"openexr", "mode", meta.Int(0)},
		{"openexr", "compression", meta.String("zip")},
		{"openexr", "dataType", meta.String("half")},
		{"tiff", "mode", meta.Int(0)},
		{"tiff", "compression", meta.String("zip")},
		{"tiff", "dataType", meta.String("uint8")},
		{"png", "compression", meta.String("filtered")},
		{"png", "compressionLevel", meta.Int(6)},
		{"dpx", "dataType", meta.String("uint10")},
		{"jpeg", "compressionQuality", meta.Int(98)},
		{"iff", "mode", meta.Int(1)},
	} {
		v, err := n.Options.Get(tt.format, tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, v, "%s.%s", tt.format, tt.name)
	}
	assert.Equal(t, []string{AllChannels}, n.Channels)
}

func TestHashSensitivity(t *testing.T) {
	n := New(all.Default())
	sc := subst.Context{Frame: 1}

	noop := n.Hash(sc)
	assert.True(t, noop.IsNoOp(), "no path, no upstream")

	n.In = constant()
	assert.Equal(t, noop, n.Hash(sc), "upstream without path")

	n.In = nil
	n.FileName = "/tmp/out.####.exr"
	assert.Equal(t, noop, n.Hash(sc), "path without upstream")

	n.In = constant()
	base := n.Hash(sc)
	assert.False(t, base.IsNoOp())

	assert.NotEqual(t, base, n.Hash(subst.Context{Frame: 2}), "frame in path")
	assert.Equal(t, base, n.Hash(sc.With("shot", "a")), "unreferenced variable")

	require.NoError(t, n.Options.Set("openexr", options.Mode, meta.Int(options.Tiled)))
	tiled := n.Hash(sc)
	assert.NotEqual(t, base, tiled, "mode")
	require.NoError(t, n.Options.Set("tiff", options.Compression, meta.String("lzw")))
	assert.Equal(t, tiled, n.Hash(sc), "option of another format")

	n.Channels = []string{"R G B"}
	assert.NotEqual(t, tiled, n.Hash(sc), "channel mask")

	n.Channels = []string{AllChannels}
	c := constant()
	c.Values["R"] = 0.3
	n.In = c
	assert.NotEqual(t, tiled, n.Hash(sc), "upstream content")

	n.FileName = "/tmp/${shot}/out.exr"
	assert.NotEqual(t, n.Hash(sc.With("shot", "a")), n.Hash(sc.With("shot", "b")), "variable in path")
	assert.Equal(t, n.Hash(sc.With("shot", "a")), n.Hash(sc.With("shot", "a").With("seq", "x")))
}

func TestHashWithoutEncoders(t *testing.T) {
	n := New(nil)
	n.In = constant()
	n.FileName = "/tmp/out.exr"
	sc := subst.Context{}

	req := n.Request(sc)
	assert.Equal(t, "openexr", req.Format)
	assert.Equal(t, meta.Int(options.Scanline), req.Options[options.Mode])

	base := n.Hash(sc)
	require.NoError(t, n.SetWriteMode(options.Tiled))
	assert.NotEqual(t, base, n.Hash(sc), "mode")

	withEncoders := New(all.Default())
	withEncoders.In, withEncoders.FileName = n.In, n.FileName
	require.NoError(t, withEncoders.SetWriteMode(options.Tiled))
	assert.Equal(t, withEncoders.Hash(sc), n.Hash(sc))

	n.FileName = "/tmp/out.unknown"
	assert.Empty(t, n.Request(sc).Format)
	assert.Nil(t, n.Request(sc).Options)
}

func TestWindowRoundTrip(t *testing.T) {
	display := window.NewBox(0, 0, 100, 80)
	data := window.NewBox(10, 20, 50, 60)
	in := source.Generate(display, data, []string{"R", "G", "B"}, func(c string, x, y int) float32 {
		return float32(x+y) / 200
	})

	tests := []struct {
		name   string
		mode   int64
		file   string
		padded bool
	}{
		{"exr scanline", options.Scanline, "scan.exr", false},
		{"exr tiled", options.Tiled, "tiled.exr", true},
		{"tiff", options.Scanline, "out.tif", true},
		{"iff", options.Tiled, "out.iff", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newNode(t, in, tt.file)
			require.NoError(t, n.SetWriteMode(tt.mode))
			img := write(t, n)
			assert.Equal(t, window.ToFile(display, display), img.Display)
			if tt.padded {
				assert.Equal(t, img.Display, img.Data)
			} else {
				assert.Equal(t, window.ToFile(display, data), img.Data)
			}
		})
	}
}

func TestEmptyDataWindow(t *testing.T) {
	display := window.NewBox(0, 0, 32, 16)
	for _, file := range []string{"out.exr", "out.tif", "out.png"} {
		n := newNode(t, source.NewBuffer(display, window.Box{}, "R", "G", "B", "A"), file)
		img := write(t, n)
		assert.Equal(t, img.Display, img.Data, file)
		assert.Equal(t, window.ToFile(display, display), img.Data, file)
	}
}

func TestOverscanIsCropped(t *testing.T) {
	display := window.NewBox(0, 0, 20, 20)
	in := source.Generate(display, window.NewBox(-10, -10, 30, 30), []string{"R"}, func(string, int, int) float32 { return 1 })
	img := write(t, newNode(t, in, "out.exr"))
	assert.Equal(t, img.Display, img.Data)
	for _, v := range img.Channels[0].Pixels {
		require.Equal(t, float32(1), v)
	}
}

func TestZeroChannels(t *testing.T) {
	n := newNode(t, constant(), "out.exr")
	n.Channels = []string{"nothing"}
	img := write(t, n)
	assert.Empty(t, img.Channels)
	assert.Equal(t, img.Display, img.Data)
}

func TestMetadataPurity(t *testing.T) {
	plain := newNode(t, constant(), "plain.tif")
	decorated := newNode(t, &source.WithMetadata{
		Image: constant(),
		Set:   meta.Metadata{"comment": meta.String("changed"), meta.KeyImageDescription: meta.String("x")},
	}, "decorated.tif")

	a, b := write(t, plain), write(t, decorated)
	require.Equal(t, len(a.Channels), len(b.Channels))
	for i := range a.Channels {
		assert.Equal(t, a.Channels[i].Pixels, b.Channels[i].Pixels)
	}
	assert.NotEqual(t, plain.Hash(subst.Context{}), decorated.Hash(subst.Context{}))
}

func TestPNGEndToEnd(t *testing.T) {
	n := newNode(t, constant(), "out.png")
	require.NoError(t, n.Write(context.Background(), subst.Context{}))
	img, md, err := n.Encoders.Decode(n.FileName)
	require.NoError(t, err)
	assert.Subset(t, img.ChannelNames(), []string{"R", "G", "B", "A"})
	assert.Equal(t, 100, img.Data.Dx())

	software, _ := md.Text(meta.KeySoftware)
	assert.True(t, strings.HasPrefix(software, meta.Product), software)
	host, _ := md.Text(meta.KeyHostComputer)
	assert.Equal(t, "render07", host)
	assert.Equal(t, meta.String(meta.Untitled), md[meta.KeyDocumentName])
	assert.Equal(t, meta.String("2024:03:09 17:04:05"), md[meta.KeyDateTime])

	n.Document = "/shows/a/scripts/comp.gfr"
	require.NoError(t, n.Write(context.Background(), subst.Context{}))
	_, md, err = n.Encoders.Decode(n.FileName)
	require.NoError(t, err)
	assert.Equal(t, meta.String(n.Document), md[meta.KeyDocumentName])
}

func TestInjectedMetadata(t *testing.T) {
	n := newNode(t, constant(), "out.tif")
	require.NoError(t, n.Options.Set("tiff", options.DataType, meta.String("uint16")))
	require.NoError(t, n.Write(context.Background(), subst.Context{}))
	_, md, err := n.Encoders.Decode(n.FileName)
	require.NoError(t, err)
	assert.Equal(t, meta.Int(16), md[meta.KeyBitsPerSample])
}

func TestUnsupportedExtension(t *testing.T) {
	n := newNode(t, constant(), "out.unsupportedExtension")
	err := n.Write(context.Background(), subst.Context{})

	assert.ErrorIs(t, err, ErrNoFormatWriter)
	var werr *Error
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, n.FileName, werr.Path)
	assert.Contains(t, err.Error(), "unsupportedextension")
	assert.NoFileExists(t, n.FileName)

	for _, name := range []string{"a.f3d", "a.fits", "a.rla", "a.sgi", "a.webp"} {
		n.FileName = filepath.Join(t.TempDir(), name)
		assert.ErrorIs(t, n.Write(context.Background(), subst.Context{}), ErrNoFormatWriter, name)
	}
}

func TestOpenFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o666))

	n := newNode(t, constant(), "unused.exr")
	n.FileName = filepath.Join(blocker, "out.exr")
	err := n.Write(context.Background(), subst.Context{})
	assert.ErrorIs(t, err, ErrWriteOpenFailed)
	assert.Contains(t, err.Error(), "could not open")
	assert.Contains(t, err.Error(), "openexr")
}

type failingEncoder struct{}

var errDiskFull = errors.New("disk full")

func (failingEncoder) Format() string                             { return "fail" }
func (failingEncoder) Extensions() []string                       { return []string{"fail"} }
func (failingEncoder) Policy(map[string]meta.Value) window.Policy { return window.Pad }
func (failingEncoder) Encode(io.Writer, *codec.Image, meta.Metadata, map[string]meta.Value) error {
	return errDiskFull
}

func TestEncoderFailure(t *testing.T) {
	n := newNode(t, constant(), "out.fail")
	n.Encoders.Register(failingEncoder{})
	err := n.Write(context.Background(), subst.Context{})
	assert.ErrorIs(t, err, ErrEncoder)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Contains(t, err.Error(), n.FileName)
}

func TestNoOpRequests(t *testing.T) {
	n := New(all.Default())
	n.In = constant()
	assert.NoError(t, n.Write(context.Background(), subst.Context{}))

	dir := t.TempDir()
	n.In = nil
	n.FileName = filepath.Join(dir, "out.exr")
	assert.NoError(t, n.Write(context.Background(), subst.Context{}))
	assert.NoFileExists(t, n.FileName)
}

func TestCancelledBeforeOpen(t *testing.T) {
	n := newNode(t, constant(), "out.exr")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.Write(ctx, subst.Context{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, n.FileName)
}

func TestFramePath(t *testing.T) {
	n := newNode(t, constant(), "out.####.exr")
	require.NoError(t, n.Write(context.Background(), subst.Context{Frame: 12}))
	assert.FileExists(t, filepath.Join(filepath.Dir(n.FileName), "out.0012.exr"))
}

func TestDebugLog(t *testing.T) {
	var buf bytes.Buffer
	n := newNode(t, constant(), "out.exr")
	n.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	require.NoError(t, n.Write(context.Background(), subst.Context{}))
	assert.Contains(t, buf.String(), "wrote image")
	assert.Contains(t, buf.String(), "format=openexr")
}
