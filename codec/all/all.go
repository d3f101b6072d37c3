// Package all registers every encoder shipped with gaffer.
package all

import (
	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/codec/bmp"
	"github.com/gkocov/gaffer/codec/dpx"
	"github.com/gkocov/gaffer/codec/exr"
	"github.com/gkocov/gaffer/codec/hdr"
	"github.com/gkocov/gaffer/codec/iff"
	"github.com/gkocov/gaffer/codec/jp2"
	"github.com/gkocov/gaffer/codec/jpeg"
	"github.com/gkocov/gaffer/codec/png"
	"github.com/gkocov/gaffer/codec/tga"
	"github.com/gkocov/gaffer/codec/tiff"
)

// Encoders returns one instance of every encoder.
func Encoders() []codec.Encoder {
	return []codec.Encoder{
		exr.Codec{},
		tiff.Codec{},
		png.Codec{},
		jpeg.Codec{},
		dpx.Codec{},
		tga.Codec{},
		iff.Codec{},
		bmp.Codec{},
		hdr.Codec{},
		jp2.Codec{},
		jp2.Codec{Codestream: true},
	}
}

// Default returns a registry holding every encoder.
func Default() *codec.Registry {
	r := codec.NewRegistry()
	for _, enc := range Encoders() {
		r.Register(enc)
	}
	return r
}
