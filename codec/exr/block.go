package exr

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"

	"github.com/gkocov/gaffer/compression"
	"github.com/gkocov/gaffer/half"
	"github.com/gkocov/gaffer/internal/interleave"
	"github.com/gkocov/gaffer/internal/predictor"
	"github.com/gkocov/gaffer/internal/xdr"
)

// chunkChannels describes the channels of a chunk r for the codecs that
// work per channel.
func chunkChannels(r image.Rectangle, types []PixelType) []compression.ChannelInfo {
	chans := make([]compression.ChannelInfo, len(types))
	for i, t := range types {
		chans[i] = compression.ChannelInfo{Type: int(t), Width: r.Dx()}
	}
	return chans
}

// compressBlock compresses the raw pixel data of chunk r. Data that does
// not shrink is stored uncompressed.
func compressBlock(c Compression, raw []byte, r image.Rectangle, types []PixelType) ([]byte, error) {
	if c == CompressionNone || len(raw) == 0 {
		return raw, nil
	}

	var out []byte
	var err error
	switch c {
	case CompressionRLE, CompressionZIPS, CompressionZIP:
		tmp := interleave.Split(raw, nil)
		predictor.Encode(tmp)
		if c == CompressionRLE {
			out = compression.RLECompress(tmp)
		} else {
			out, err = compression.ZIPCompress(tmp)
		}
	case CompressionPIZ:
		out, err = compression.PIZCompress(raw, chunkChannels(r, types), r.Dx(), r.Dy())
	case CompressionPXR24:
		out, err = compression.PXR24Compress(raw, chunkChannels(r, types), r.Dx(), r.Dy())
	case CompressionB44, CompressionB44A:
		out, err = compression.B44Compress(raw, chunkChannels(r, types), r.Dx(), r.Dy(), c == CompressionB44A)
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
	if err != nil {
		return nil, err
	}
	if len(out) >= len(raw) {
		return raw, nil
	}
	return out, nil
}

// decompressBlock reverses compressBlock for chunk r, whose uncompressed
// size is rawSize.
func decompressBlock(c Compression, data []byte, rawSize int, r image.Rectangle, types []PixelType) ([]byte, error) {
	if c == CompressionNone || len(data) >= rawSize {
		if len(data) != rawSize {
			return nil, ErrInvalidChunk
		}
		return data, nil
	}

	switch c {
	case CompressionRLE, CompressionZIPS, CompressionZIP:
		var tmp []byte
		var err error
		if c == CompressionRLE {
			tmp, err = compression.RLEDecompress(data, rawSize)
		} else {
			tmp, err = compression.ZIPDecompress(data, rawSize)
		}
		if err != nil {
			return nil, err
		}
		predictor.Decode(tmp)
		return interleave.Join(tmp, nil), nil
	case CompressionPIZ:
		return compression.PIZDecompress(data, chunkChannels(r, types), r.Dx(), r.Dy(), rawSize)
	case CompressionPXR24:
		return compression.PXR24Decompress(data, chunkChannels(r, types), r.Dx(), r.Dy(), rawSize)
	case CompressionB44, CompressionB44A:
		return compression.B44Decompress(data, chunkChannels(r, types), r.Dx(), r.Dy(), rawSize)
	}
	return nil, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
}

// packBlock serializes the pixels of r, scanline by scanline, with the
// samples of each channel contiguous within a line.
func packBlock(r image.Rectangle, planes [][]float32, types []PixelType, data image.Rectangle) []byte {
	size := 0
	for _, t := range types {
		size += r.Dx() * r.Dy() * t.Size()
	}
	out := make([]byte, 0, size)
	stride := data.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := (y - data.Min.Y) * stride
		for ci, plane := range planes {
			for x := r.Min.X; x < r.Max.X; x++ {
				v := plane[row+x-data.Min.X]
				if types[ci] == PixelTypeHalf {
					out = binary.LittleEndian.AppendUint16(out, uint16(half.FromFloat32(v)))
				} else {
					out = binary.LittleEndian.AppendUint32(out, math.Float32bits(v))
				}
			}
		}
	}
	return out
}

// unpackBlock reverses packBlock.
func unpackBlock(raw []byte, r image.Rectangle, planes [][]float32, types []PixelType, data image.Rectangle) error {
	rd := xdr.NewReader(raw)
	stride := data.Dx()
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := (y - data.Min.Y) * stride
		for ci, plane := range planes {
			for x := r.Min.X; x < r.Max.X; x++ {
				var v float32
				if types[ci] == PixelTypeHalf {
					h, err := rd.ReadUint16()
					if err != nil {
						return ErrInvalidChunk
					}
					v = half.Half(h).Float32()
				} else {
					u, err := rd.ReadUint32()
					if err != nil {
						return ErrInvalidChunk
					}
					if types[ci] == PixelTypeFloat {
						v = math.Float32frombits(u)
					} else {
						v = float32(u)
					}
				}
				plane[row+x-data.Min.X] = v
			}
		}
	}
	return nil
}
