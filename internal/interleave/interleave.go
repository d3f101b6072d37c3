// Package interleave implements the byte reordering OpenEXR applies before
// ZIP and RLE compression.
//
// Bytes at even positions are moved to the first half of the block and
// bytes at odd positions to the second half. For little-endian half and
// float samples this groups the low bytes and the high bytes, which
// compress better than the original order:
//
//	Input:  [a0 a1 b0 b1 c0 c1]
//	Output: [a0 b0 c0 a1 b1 c1]
package interleave

// Split reorders data into out. If out is nil a new buffer is allocated.
// The first (len+1)/2 bytes of the result hold the even positions.
func Split(data, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	half := (len(data) + 1) / 2
	for i, b := range data {
		if i&1 == 0 {
			out[i/2] = b
		} else {
			out[half+i/2] = b
		}
	}
	return out
}

// Join reverses Split.
func Join(data, out []byte) []byte {
	if out == nil {
		out = make([]byte, len(data))
	}
	half := (len(data) + 1) / 2
	for i := range out[:len(data)] {
		if i&1 == 0 {
			out[i] = data[i/2]
		} else {
			out[i] = data[half+i/2]
		}
	}
	return out
}
