package compression

import (
	"bytes"
	"io"

	"golang.org/x/image/tiff/lzw"
)

const (
	lzwClear    = 256
	lzwEOI      = 257
	lzwFirst    = 258
	lzwMinWidth = 9
	lzwMaxCode  = 4094
)

// msbBitWriter packs variable-width codes most significant bit first.
type msbBitWriter struct {
	out   []byte
	acc   uint32
	nbits uint
}

func (w *msbBitWriter) write(code uint32, width uint) {
	w.acc |= code << (32 - width - w.nbits)
	w.nbits += width
	for w.nbits >= 8 {
		w.out = append(w.out, byte(w.acc>>24))
		w.acc <<= 8
		w.nbits -= 8
	}
}

func (w *msbBitWriter) flush() []byte {
	if w.nbits > 0 {
		w.out = append(w.out, byte(w.acc>>24))
		w.acc, w.nbits = 0, 0
	}
	return w.out
}

// LZWCompress compresses src with the TIFF flavour of LZW: MSB-first codes,
// 8-bit literals, and the "early change" code width increase.
func LZWCompress(src []byte) []byte {
	w := &msbBitWriter{out: make([]byte, 0, len(src)/2+8)}
	width := uint(lzwMinWidth)
	w.write(lzwClear, width)
	if len(src) == 0 {
		w.write(lzwEOI, width)
		return w.flush()
	}

	table := make(map[uint32]uint32, 4096)
	next := uint32(lzwFirst)
	prefix := uint32(src[0])

	// grow accounts for the table entry created after every emitted code.
	grow := func() {
		next++
		if next == lzwMaxCode {
			w.write(lzwClear, width)
			clear(table)
			next = lzwFirst
			width = lzwMinWidth
			return
		}
		if next > 1<<width-1 {
			width++
		}
	}

	for _, c := range src[1:] {
		key := prefix<<8 | uint32(c)
		if code, ok := table[key]; ok {
			prefix = code
			continue
		}
		w.write(prefix, width)
		table[key] = next
		grow()
		prefix = uint32(c)
	}
	w.write(prefix, width)
	grow()
	w.write(lzwEOI, width)
	return w.flush()
}

// LZWDecompress decompresses TIFF LZW data using the x/image decoder.
func LZWDecompress(src []byte, expectedSize int) ([]byte, error) {
	r := lzw.NewReader(bytes.NewReader(src), lzw.MSB, 8)
	defer r.Close()
	dst := make([]byte, expectedSize)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, err
	}
	return dst, nil
}
