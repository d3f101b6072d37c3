package compression

import (
	"encoding/binary"
	"errors"
)

// B44 compression for OpenEXR. HALF channels are cut into 4x4 blocks and
// each block is stored in 14 bytes, or in 3 when all its samples are equal
// and flat fields are enabled (B44A). Partial blocks repeat their last
// column and line. Other channels are stored uncompressed. The encoding is
// lossy.

// B44 errors
var (
	ErrB44Corrupted = errors.New("compression: corrupted B44 data")
	ErrB44Size      = errors.New("compression: B44 data size does not match channels")
)

const (
	b44Bias     = 0x20
	b44FlatByte = 0xfc
	// A third byte at or above this value marks a 3-byte block.
	b44FlatMin = 13 << 2
)

// b44Pairs lists the running differences of a block. Each pair codes its
// second sample relative to its first, down column 0 and then along the
// lines.
var b44Pairs = [15][2]int{
	{0, 4}, {4, 8}, {8, 12},
	{0, 1}, {4, 5}, {8, 9}, {12, 13},
	{1, 2}, {5, 6}, {9, 10}, {13, 14},
	{2, 3}, {6, 7}, {10, 11}, {14, 15},
}

// shiftAndRound divides x by 1<<shift, rounding halves to even.
func shiftAndRound(x, shift int) int {
	x <<= 1
	a := 1<<shift - 1
	shift++
	b := x >> shift & 1
	return (x + a + b) >> shift
}

// packB44 packs the half samples s into b and returns the number of bytes
// used. With exactMax the largest sample is reproduced exactly.
func packB44(s *[16]uint16, b []byte, flatFields, exactMax bool) int {
	// Map sign-magnitude halves onto an ordered range. Infinities and NaNs
	// become zero.
	var t [16]uint16
	var tMax uint16
	for i, v := range s {
		switch {
		case v&0x7c00 == 0x7c00:
			t[i] = 0x8000
		case v&0x8000 != 0:
			t[i] = ^v
		default:
			t[i] = v | 0x8000
		}
		tMax = max(tMax, t[i])
	}

	var d [16]int
	var r [15]int
	shift := -1
	for {
		shift++
		for i := range t {
			d[i] = shiftAndRound(int(tMax-t[i]), shift)
		}
		rMin, rMax := 1<<30, -1<<30
		for k, p := range b44Pairs {
			r[k] = d[p[0]] - d[p[1]] + b44Bias
			rMin, rMax = min(rMin, r[k]), max(rMax, r[k])
		}
		if rMin >= 0 && rMax <= 0x3f {
			if rMin == b44Bias && rMax == b44Bias && flatFields {
				b[0], b[1], b[2] = byte(t[0]>>8), byte(t[0]), b44FlatByte
				return 3
			}
			break
		}
	}

	t0 := t[0]
	if exactMax {
		t0 = tMax - uint16(d[0]<<shift)
	}
	b[0], b[1] = byte(t0>>8), byte(t0)

	// The shift and the fifteen differences fill the remaining 96 bits,
	// six bits each.
	var acc uint64
	bits, pos := 0, 2
	put := func(v int) {
		acc = acc<<6 | uint64(v&0x3f)
		bits += 6
		for bits >= 8 {
			bits -= 8
			b[pos] = byte(acc >> bits)
			pos++
		}
	}
	put(shift)
	for _, v := range r {
		put(v)
	}
	return 14
}

func fromOrdered(v uint16) uint16 {
	if v&0x8000 != 0 {
		return v & 0x7fff
	}
	return ^v
}

func unpack14(b []byte, s *[16]uint16) {
	// Difference k takes six bits after the six-bit shift at b[2].
	field := func(k int) uint16 {
		off := 6 + 6*k
		i := 2 + off/8
		w := uint16(b[i]) << 8
		if i+1 < 14 {
			w |= uint16(b[i+1])
		}
		return w >> (10 - off%8) & 0x3f
	}
	shift := uint16(b[2] >> 2)
	bias := uint16(b44Bias) << shift

	s[0] = uint16(b[0])<<8 | uint16(b[1])
	for k, p := range b44Pairs {
		s[p[1]] = s[p[0]] + field(k)<<shift - bias
	}
	for i := range s {
		s[i] = fromOrdered(s[i])
	}
}

func unpack3(b []byte, s *[16]uint16) {
	v := fromOrdered(uint16(b[0])<<8 | uint16(b[1]))
	for i := range s {
		s[i] = v
	}
}

// b44Planes splits scanline-interleaved data into one plane per channel:
// halves for HALF channels, raw bytes for the others.
func b44Planes(data []byte, channels []ChannelInfo, height int) ([][]uint16, [][]byte) {
	halves := make([][]uint16, len(channels))
	raw := make([][]byte, len(channels))
	for i, ch := range channels {
		if ch.Type == PixelTypeHalf {
			halves[i] = make([]uint16, 0, ch.Width*height)
		} else {
			raw[i] = make([]byte, 0, ch.Width*height*4)
		}
	}
	in := 0
	for range height {
		for i, ch := range channels {
			if ch.Type == PixelTypeHalf {
				for range ch.Width {
					halves[i] = append(halves[i], binary.LittleEndian.Uint16(data[in:]))
					in += 2
				}
				continue
			}
			raw[i] = append(raw[i], data[in:in+ch.Width*4]...)
			in += ch.Width * 4
		}
	}
	return halves, raw
}

// B44Compress compresses one chunk of scanline-interleaved pixel data.
func B44Compress(data []byte, channels []ChannelInfo, width, height int, flatFields bool) ([]byte, error) {
	if len(data) != chunkSize(channels, height, sampleBytes) {
		return nil, ErrB44Size
	}
	halves, raw := b44Planes(data, channels, height)
	out := make([]byte, 0, len(data))
	var block [14]byte
	for i, ch := range channels {
		if ch.Type != PixelTypeHalf {
			out = append(out, raw[i]...)
			continue
		}
		nx, ny := ch.Width, height
		cd := halves[i]
		for y := 0; y < ny; y += 4 {
			for x := 0; x < nx; x += 4 {
				var s [16]uint16
				for by := range 4 {
					row := min(y+by, ny-1) * nx
					for bx := range 4 {
						s[by*4+bx] = cd[row+min(x+bx, nx-1)]
					}
				}
				n := packB44(&s, block[:], flatFields, true)
				out = append(out, block[:n]...)
			}
		}
	}
	return out, nil
}

// B44Decompress reverses B44Compress for a chunk whose scanline data is
// expectedSize bytes. It reads both B44 and B44A blocks.
func B44Decompress(data []byte, channels []ChannelInfo, width, height, expectedSize int) ([]byte, error) {
	if expectedSize != chunkSize(channels, height, sampleBytes) {
		return nil, ErrB44Size
	}
	halves := make([][]uint16, len(channels))
	raw := make([][]byte, len(channels))
	in := 0
	for i, ch := range channels {
		nx, ny := ch.Width, height
		if ch.Type != PixelTypeHalf {
			n := nx * ny * 4
			if in+n > len(data) {
				return nil, ErrB44Corrupted
			}
			raw[i] = data[in : in+n]
			in += n
			continue
		}
		cd := make([]uint16, nx*ny)
		var s [16]uint16
		for y := 0; y < ny; y += 4 {
			for x := 0; x < nx; x += 4 {
				if in+3 > len(data) {
					return nil, ErrB44Corrupted
				}
				if data[in+2] >= b44FlatMin {
					unpack3(data[in:], &s)
					in += 3
				} else {
					if in+14 > len(data) {
						return nil, ErrB44Corrupted
					}
					unpack14(data[in:], &s)
					in += 14
				}
				for by := 0; by < 4 && y+by < ny; by++ {
					for bx := 0; bx < 4 && x+bx < nx; bx++ {
						cd[(y+by)*nx+x+bx] = s[by*4+bx]
					}
				}
			}
		}
		halves[i] = cd
	}

	out := make([]byte, 0, expectedSize)
	for y := range height {
		for i, ch := range channels {
			if ch.Type == PixelTypeHalf {
				for _, v := range halves[i][y*ch.Width : (y+1)*ch.Width] {
					out = binary.LittleEndian.AppendUint16(out, v)
				}
				continue
			}
			out = append(out, raw[i][y*ch.Width*4:(y+1)*ch.Width*4]...)
		}
	}
	return out, nil
}
