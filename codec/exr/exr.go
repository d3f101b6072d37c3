// Package exr reads and writes single-part OpenEXR files, scanline or
// tiled, with HALF or FLOAT channels. The NONE, RLE, ZIPS, ZIP, PIZ, PXR24,
// B44 and B44A compressions are supported; PXR24 rounds FLOAT samples to
// 24 bits and B44 is lossy for HALF channels.
package exr

import (
	"errors"
	"fmt"
	"io"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/window"
)

// Magic is the OpenEXR magic number.
const Magic = 20000630

const (
	version    = 2
	flagTiled  = 0x200
	tileSize   = 64
	lineOrderY = 0 // INCREASING_Y
)

// Errors
var (
	ErrInvalidMagic         = errors.New("exr: invalid magic number")
	ErrInvalidHeader        = errors.New("exr: invalid header")
	ErrUnsupported          = errors.New("exr: unsupported file feature")
	ErrInvalidChunk         = errors.New("exr: invalid chunk")
	ErrUnknownAttributeType = errors.New("exr: unknown attribute type")
)

// Compression is the pixel data compression of a file.
type Compression uint8

// Compression methods
const (
	CompressionNone  Compression = 0
	CompressionRLE   Compression = 1
	CompressionZIPS  Compression = 2
	CompressionZIP   Compression = 3
	CompressionPIZ   Compression = 4
	CompressionPXR24 Compression = 5
	CompressionB44   Compression = 6
	CompressionB44A  Compression = 7
)

// String returns the option name of the compression.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionRLE:
		return "rle"
	case CompressionZIPS:
		return "zips"
	case CompressionZIP:
		return "zip"
	case CompressionPIZ:
		return "piz"
	case CompressionPXR24:
		return "pxr24"
	case CompressionB44:
		return "b44"
	case CompressionB44A:
		return "b44a"
	default:
		return "unknown"
	}
}

// ScanlinesPerChunk returns the number of scanlines stored per chunk.
func (c Compression) ScanlinesPerChunk() int {
	switch c {
	case CompressionZIP, CompressionPXR24:
		return 16
	case CompressionPIZ, CompressionB44, CompressionB44A:
		return 32
	}
	return 1
}

// ParseCompression returns the compression for an option value.
func ParseCompression(s string) (Compression, bool) {
	for c := CompressionNone; c <= CompressionB44A; c++ {
		if c.String() == s {
			return c, true
		}
	}
	return 0, false
}

// PixelType is the storage type of a channel.
type PixelType int32

// Pixel types
const (
	PixelTypeUint  PixelType = 0
	PixelTypeHalf  PixelType = 1
	PixelTypeFloat PixelType = 2
)

// Size returns the number of bytes per sample.
func (p PixelType) Size() int {
	if p == PixelTypeHalf {
		return 2
	}
	return 4
}

// Codec is the OpenEXR encoder and decoder.
type Codec struct{}

var _ codec.Encoder = Codec{}
var _ codec.Decoder = Codec{}

func (Codec) Format() string       { return "openexr" }
func (Codec) Extensions() []string { return []string{"exr"} }

// Policy returns Pad for tiled output and Crop for scanline output.
func (Codec) Policy(opts map[string]meta.Value) window.Policy {
	if m, ok := opts[options.Mode].Int(); ok && m == options.Tiled {
		return window.Pad
	}
	return window.Crop
}

// Settings are the encoder parameters derived from option values.
type Settings struct {
	Tiled       bool
	Compression Compression
	PixelType   PixelType
}

// ParseSettings converts option values, applying defaults for missing
// entries.
func ParseSettings(opts map[string]meta.Value) (Settings, error) {
	s := Settings{Compression: CompressionZIP, PixelType: PixelTypeHalf}
	if v, ok := opts[options.Mode]; ok {
		m, _ := v.Int()
		s.Tiled = m == options.Tiled
	}
	if v, ok := opts[options.Compression]; ok {
		name, _ := v.Str()
		c, ok := ParseCompression(name)
		if !ok {
			return s, codecOptionError(options.Compression, v)
		}
		s.Compression = c
	}
	if v, ok := opts[options.DataType]; ok {
		switch name, _ := v.Str(); name {
		case "half":
			s.PixelType = PixelTypeHalf
		case "float":
			s.PixelType = PixelTypeFloat
		default:
			return s, codecOptionError(options.DataType, v)
		}
	}
	return s, nil
}

// Encode writes img as an OpenEXR file.
func (Codec) Encode(w io.Writer, img *codec.Image, md meta.Metadata, opts map[string]meta.Value) error {
	s, err := ParseSettings(opts)
	if err != nil {
		return err
	}
	return Write(w, img, md, s)
}

// Decode reads an OpenEXR file.
func (Codec) Decode(r io.Reader) (*codec.Image, meta.Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	return Read(data)
}

func codecOptionError(name string, v meta.Value) error {
	return fmt.Errorf("%w: exr %s %#v", codec.ErrInvalidOption, name, v)
}
