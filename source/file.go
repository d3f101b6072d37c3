package source

import (
	"github.com/gkocov/gaffer/codec"
)

// FromFile decodes the image at path with the decoders of reg.
func FromFile(reg *codec.Registry, path string) (*Buffer, error) {
	img, md, err := reg.Decode(path)
	if err != nil {
		return nil, err
	}
	return FromCodec(img, md)
}
