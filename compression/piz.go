package compression

import (
	"encoding/binary"
	"errors"
)

// PIZ compression for OpenEXR. Samples are read as 16-bit words, mapped
// through a lookup table onto a dense range, wavelet transformed per
// channel and Huffman coded.

// PIZ errors
var (
	ErrPIZCorrupted = errors.New("compression: corrupted PIZ data")
	ErrPIZSize      = errors.New("compression: PIZ data size does not match channels")
)

const (
	ushortRange = 1 << 16
	bitmapSize  = ushortRange >> 3
)

// pizChannel locates one channel in the planar word buffer.
type pizChannel struct {
	start, nx, ny, size int
}

// pizLayout splits the words of a chunk into channel planes. size is the
// number of 16-bit words per sample.
func pizLayout(channels []ChannelInfo, height int) ([]pizChannel, int) {
	cd := make([]pizChannel, len(channels))
	n := 0
	for i, ch := range channels {
		size := 2
		if ch.Type == PixelTypeHalf {
			size = 1
		}
		cd[i] = pizChannel{start: n, nx: ch.Width, ny: height, size: size}
		n += ch.Width * height * size
	}
	return cd, n
}

func bitmapFromData(data []uint16) (bitmap []byte, minNonZero, maxNonZero int) {
	bitmap = make([]byte, bitmapSize)
	for _, v := range data {
		bitmap[v>>3] |= 1 << (v & 7)
	}
	// Zero is implied.
	bitmap[0] &^= 1
	minNonZero, maxNonZero = bitmapSize-1, 0
	for i, b := range bitmap {
		if b != 0 {
			minNonZero = min(minNonZero, i)
			maxNonZero = max(maxNonZero, i)
		}
	}
	return bitmap, minNonZero, maxNonZero
}

func forwardLut(bitmap []byte) ([]uint16, uint16) {
	lut := make([]uint16, ushortRange)
	k := 0
	for i := range lut {
		if i == 0 || bitmap[i>>3]&(1<<(i&7)) != 0 {
			lut[i] = uint16(k)
			k++
		}
	}
	return lut, uint16(k - 1)
}

func reverseLut(bitmap []byte) ([]uint16, uint16) {
	lut := make([]uint16, ushortRange)
	k := 0
	for i := range lut {
		if i == 0 || bitmap[i>>3]&(1<<(i&7)) != 0 {
			lut[k] = uint16(i)
			k++
		}
	}
	return lut, uint16(k - 1)
}

// PIZCompress compresses one chunk of scanline-interleaved pixel data.
// Every channel has height lines of Width samples.
func PIZCompress(data []byte, channels []ChannelInfo, width, height int) ([]byte, error) {
	cd, n := pizLayout(channels, height)
	if len(data) != 2*n {
		return nil, ErrPIZSize
	}
	words := make([]uint16, n)
	ends := make([]int, len(cd))
	for i := range cd {
		ends[i] = cd[i].start
	}
	in := 0
	for range height {
		for i, c := range cd {
			for range c.nx * c.size {
				words[ends[i]] = binary.LittleEndian.Uint16(data[in:])
				ends[i]++
				in += 2
			}
		}
	}

	bitmap, minNonZero, maxNonZero := bitmapFromData(words)
	lut, maxValue := forwardLut(bitmap)
	for i, v := range words {
		words[i] = lut[v]
	}

	out := binary.LittleEndian.AppendUint16(nil, uint16(minNonZero))
	out = binary.LittleEndian.AppendUint16(out, uint16(maxNonZero))
	if minNonZero <= maxNonZero {
		out = append(out, bitmap[minNonZero:maxNonZero+1]...)
	}

	for _, c := range cd {
		for j := range c.size {
			Wav2DEncode(words[c.start+j:], c.nx, c.size, c.ny, c.nx*c.size, maxValue)
		}
	}

	huf, err := HufCompress(words)
	if err != nil {
		return nil, err
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(huf)))
	return append(out, huf...), nil
}

// PIZDecompress reverses PIZCompress for a chunk whose scanline data is
// expectedSize bytes.
func PIZDecompress(data []byte, channels []ChannelInfo, width, height, expectedSize int) ([]byte, error) {
	cd, n := pizLayout(channels, height)
	if expectedSize != 2*n {
		return nil, ErrPIZSize
	}
	if len(data) < 4 {
		return nil, ErrPIZCorrupted
	}
	minNonZero := int(binary.LittleEndian.Uint16(data))
	maxNonZero := int(binary.LittleEndian.Uint16(data[2:]))
	pos := 4
	if maxNonZero >= bitmapSize {
		return nil, ErrPIZCorrupted
	}
	bitmap := make([]byte, bitmapSize)
	if minNonZero <= maxNonZero {
		m := maxNonZero - minNonZero + 1
		if pos+m > len(data) {
			return nil, ErrPIZCorrupted
		}
		copy(bitmap[minNonZero:], data[pos:pos+m])
		pos += m
	}
	lut, maxValue := reverseLut(bitmap)

	if pos+4 > len(data) {
		return nil, ErrPIZCorrupted
	}
	length := int(binary.LittleEndian.Uint32(data[pos:]))
	pos += 4
	if length < 0 || pos+length > len(data) {
		return nil, ErrPIZCorrupted
	}
	words, err := HufDecompress(data[pos:pos+length], n)
	if err != nil {
		return nil, err
	}

	for _, c := range cd {
		for j := range c.size {
			Wav2DDecode(words[c.start+j:], c.nx, c.size, c.ny, c.nx*c.size, maxValue)
		}
	}
	for i, v := range words {
		words[i] = lut[v]
	}

	out := make([]byte, 0, expectedSize)
	ends := make([]int, len(cd))
	for i := range cd {
		ends[i] = cd[i].start
	}
	for range height {
		for i, c := range cd {
			for range c.nx * c.size {
				out = binary.LittleEndian.AppendUint16(out, words[ends[i]])
				ends[i]++
			}
		}
	}
	return out, nil
}
