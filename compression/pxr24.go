package compression

import (
	"encoding/binary"
	"errors"
	"math"
)

// PXR24 compression for OpenEXR. FLOAT samples are rounded to 24 bits,
// every sample is differenced against its left neighbour, the bytes of a
// line are split into planes by significance and the result is zlib
// compressed. HALF and UINT samples are kept exactly.

// PXR24 errors
var (
	ErrPXR24Size = errors.New("compression: PXR24 data size does not match channels")
)

// Pixel types of ChannelInfo, numbered as in OpenEXR.
const (
	PixelTypeUint  = 0
	PixelTypeHalf  = 1
	PixelTypeFloat = 2
)

// ChannelInfo describes one channel of a chunk for the codecs that work
// per channel.
type ChannelInfo struct {
	Type  int
	Width int
}

// planeBytes is the number of bytes a sample takes once split into planes.
func planeBytes(t int) int {
	switch t {
	case PixelTypeHalf:
		return 2
	case PixelTypeFloat:
		return 3
	}
	return 4
}

func sampleBytes(t int) int {
	if t == PixelTypeHalf {
		return 2
	}
	return 4
}

func chunkSize(channels []ChannelInfo, height int, size func(int) int) int {
	n := 0
	for _, ch := range channels {
		n += ch.Width * height * size(ch.Type)
	}
	return n
}

// floatToFloat24 keeps the sign, the exponent and the top 15 mantissa
// bits of f, rounding to nearest.
func floatToFloat24(f float32) uint32 {
	bits := math.Float32bits(f)
	s := bits & 0x80000000
	e := bits & 0x7f800000
	m := bits & 0x007fffff

	if e == 0x7f800000 {
		if m != 0 {
			// NaN stays NaN.
			m >>= 8
			i := e>>8 | m
			if m == 0 {
				i |= 1
			}
			return s>>8 | i
		}
		return s>>8 | e>>8
	}
	i := ((e | m) + (m & 0x80)) >> 8
	if i >= 0x7f8000 {
		// Rounding would overflow to infinity.
		i = (e | m) >> 8
	}
	return s>>8 | i
}

// PXR24Compress compresses one chunk of scanline-interleaved pixel data.
func PXR24Compress(data []byte, channels []ChannelInfo, width, height int) ([]byte, error) {
	if len(data) != chunkSize(channels, height, sampleBytes) {
		return nil, ErrPXR24Size
	}
	scratch := make([]byte, chunkSize(channels, height, planeBytes))
	in, out := 0, 0
	for range height {
		for _, ch := range channels {
			w := ch.Width
			np := planeBytes(ch.Type)
			var prev uint32
			for x := range w {
				var v uint32
				switch ch.Type {
				case PixelTypeHalf:
					v = uint32(binary.LittleEndian.Uint16(data[in:]))
					in += 2
				case PixelTypeFloat:
					v = floatToFloat24(math.Float32frombits(binary.LittleEndian.Uint32(data[in:])))
					in += 4
				default:
					v = binary.LittleEndian.Uint32(data[in:])
					in += 4
				}
				diff := v - prev
				prev = v
				for p := range np {
					scratch[out+p*w+x] = byte(diff >> (8 * (np - 1 - p)))
				}
			}
			out += w * np
		}
	}
	return ZIPCompress(scratch)
}

// PXR24Decompress reverses PXR24Compress for a chunk whose scanline data
// is expectedSize bytes.
func PXR24Decompress(data []byte, channels []ChannelInfo, width, height, expectedSize int) ([]byte, error) {
	if expectedSize != chunkSize(channels, height, sampleBytes) {
		return nil, ErrPXR24Size
	}
	scratch, err := ZIPDecompress(data, chunkSize(channels, height, planeBytes))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, expectedSize)
	in := 0
	for range height {
		for _, ch := range channels {
			w := ch.Width
			np := planeBytes(ch.Type)
			var v uint32
			for x := range w {
				var diff uint32
				for p := range np {
					diff = diff<<8 | uint32(scratch[in+p*w+x])
				}
				v += diff
				switch ch.Type {
				case PixelTypeHalf:
					out = binary.LittleEndian.AppendUint16(out, uint16(v))
				case PixelTypeFloat:
					out = binary.LittleEndian.AppendUint32(out, v<<8)
				default:
					out = binary.LittleEndian.AppendUint32(out, v)
				}
			}
			in += w * np
		}
	}
	return out, nil
}
