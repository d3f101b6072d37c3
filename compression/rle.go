package compression

import (
	"errors"
)

// Run-length errors
var (
	ErrRLECorrupted = errors.New("compression: corrupted RLE data")
	ErrRLEOverflow  = errors.New("compression: RLE decompressed size overflow")
)

const (
	rleMinRunLength = 3
	rleMaxRunLength = 127
	rleMaxLiteral   = 127
)

// The byte-oriented run-length schemes used by the encoders split the
// input into runs and literal spans the same way and differ only in how
// the count byte is stored:
//
//	OpenEXR RLE:   run of n -> [n-1, v]         literal of n -> [-n, bytes...]
//	TIFF PackBits: run of n -> [-(n-1), v]      literal of n -> [n-1, bytes...]
//	Maya IFF:      run of n -> [0x80|(n-1), v]  literal of n -> [n-1, bytes...]
type rleHeaders struct {
	run     func(n int) byte
	literal func(n int) byte
}

var (
	exrHeaders = rleHeaders{
		run:     func(n int) byte { return byte(n - 1) },
		literal: func(n int) byte { return byte(-n) },
	}
	packBitsHeaders = rleHeaders{
		run:     func(n int) byte { return byte(-(n - 1)) },
		literal: func(n int) byte { return byte(n - 1) },
	}
	byteRunHeaders = rleHeaders{
		run:     func(n int) byte { return 0x80 | byte(n-1) },
		literal: func(n int) byte { return byte(n - 1) },
	}
)

func rleEncode(src []byte, h rleHeaders) []byte {
	if len(src) == 0 {
		return nil
	}
	dst := make([]byte, 0, len(src)+len(src)/rleMaxLiteral+1)

	i := 0
	for i < len(src) {
		val := src[i]
		end := i + 1
		for end < len(src) && src[end] == val && end-i < rleMaxRunLength {
			end++
		}
		if end-i >= rleMinRunLength {
			dst = append(dst, h.run(end-i), val)
			i = end
			continue
		}

		start := i
		for i < len(src) && i-start < rleMaxLiteral {
			if i+rleMinRunLength <= len(src) && src[i+1] == src[i] && src[i+2] == src[i] {
				break
			}
			i++
		}
		dst = append(dst, h.literal(i-start))
		dst = append(dst, src[start:i]...)
	}
	return dst
}

// RLECompress compresses data using OpenEXR's run-length encoding.
// The caller is responsible for the reorder/predictor pass.
func RLECompress(src []byte) []byte {
	return rleEncode(src, exrHeaders)
}

// RLEDecompress reverses RLECompress. expectedSize is the exact size of
// the decompressed data.
func RLEDecompress(src []byte, expectedSize int) ([]byte, error) {
	dst := make([]byte, expectedSize)
	pos := 0
	for i := 0; i < len(src); {
		count := int(int8(src[i]))
		i++
		if count < 0 {
			n := -count
			if i+n > len(src) {
				return nil, ErrRLECorrupted
			}
			if pos+n > expectedSize {
				return nil, ErrRLEOverflow
			}
			copy(dst[pos:], src[i:i+n])
			pos += n
			i += n
			continue
		}
		n := count + 1
		if i >= len(src) {
			return nil, ErrRLECorrupted
		}
		if pos+n > expectedSize {
			return nil, ErrRLEOverflow
		}
		for end := pos + n; pos < end; pos++ {
			dst[pos] = src[i]
		}
		i++
	}
	if pos != expectedSize {
		return nil, ErrRLECorrupted
	}
	return dst, nil
}

// PackBitsCompress compresses data with the Apple PackBits scheme used by
// TIFF compression type 32773.
func PackBitsCompress(src []byte) []byte {
	return rleEncode(src, packBitsHeaders)
}

// PackBitsDecompress reverses PackBitsCompress.
func PackBitsDecompress(src []byte, expectedSize int) ([]byte, error) {
	dst := make([]byte, 0, expectedSize)
	for i := 0; i < len(src); {
		count := int(int8(src[i]))
		i++
		switch {
		case count == -128:
			// no-op header
		case count < 0:
			if i >= len(src) {
				return nil, ErrRLECorrupted
			}
			for n := -count + 1; n > 0; n-- {
				dst = append(dst, src[i])
			}
			i++
		default:
			n := count + 1
			if i+n > len(src) {
				return nil, ErrRLECorrupted
			}
			dst = append(dst, src[i:i+n]...)
			i += n
		}
		if len(dst) > expectedSize {
			return nil, ErrRLEOverflow
		}
	}
	if len(dst) != expectedSize {
		return nil, ErrRLECorrupted
	}
	return dst, nil
}

// ByteRunCompress compresses data with the run-length scheme of Maya IFF
// tiles.
func ByteRunCompress(src []byte) []byte {
	return rleEncode(src, byteRunHeaders)
}

// ByteRunDecompress reverses ByteRunCompress. Decoding stops once
// expectedSize bytes are produced and the number of input bytes consumed
// is returned with the data.
func ByteRunDecompress(src []byte, expectedSize int) ([]byte, int, error) {
	dst := make([]byte, 0, expectedSize)
	i := 0
	for len(dst) < expectedSize {
		if i >= len(src) {
			return nil, i, ErrRLECorrupted
		}
		h := src[i]
		i++
		n := int(h&0x7f) + 1
		if len(dst)+n > expectedSize {
			return nil, i, ErrRLEOverflow
		}
		if h&0x80 != 0 {
			if i >= len(src) {
				return nil, i, ErrRLECorrupted
			}
			for ; n > 0; n-- {
				dst = append(dst, src[i])
			}
			i++
			continue
		}
		if i+n > len(src) {
			return nil, i, ErrRLECorrupted
		}
		dst = append(dst, src[i:i+n]...)
		i += n
	}
	return dst, i, nil
}
