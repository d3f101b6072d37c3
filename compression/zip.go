// Package compression implements the codecs shared by the image encoders:
// zlib (OpenEXR ZIP/ZIPS, TIFF Deflate, PNG IDAT), OpenEXR RLE, TIFF
// PackBits and TIFF LZW on byte streams, and the per-channel OpenEXR
// codecs PIZ, PXR24 and B44.
package compression

import (
	"bytes"
	"errors"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// ZIP compression errors
var (
	ErrZIPCorrupted = errors.New("compression: corrupted ZIP data")
	ErrZIPLevel     = errors.New("compression: invalid zlib level")
)

// Level is a zlib compression level.
//
//   - -2: Huffman-only (klauspost extension)
//   - -1: default (level 6)
//   - 0: store
//   - 1..9: best speed to best compression
type Level int

// Standard levels
const (
	LevelHuffmanOnly Level = zlib.HuffmanOnly
	LevelDefault     Level = zlib.DefaultCompression
	LevelNone        Level = zlib.NoCompression
	LevelBestSpeed   Level = zlib.BestSpeed
	LevelBestSize    Level = zlib.BestCompression
)

// Valid reports whether l is accepted by the zlib writer.
func (l Level) Valid() bool {
	return l >= LevelHuffmanOnly && l <= LevelBestSize
}

type zlibWriterPoolItem struct {
	writer *zlib.Writer
	buf    *bytes.Buffer
}

// Writers at the default level are pooled; encoders compress many small
// chunks per file.
var zlibWriterPool = sync.Pool{
	New: func() any {
		buf := new(bytes.Buffer)
		w, _ := zlib.NewWriterLevel(buf, zlib.DefaultCompression)
		return &zlibWriterPoolItem{writer: w, buf: buf}
	},
}

// ZIPCompress compresses src as a zlib stream at the default level.
func ZIPCompress(src []byte) ([]byte, error) {
	return ZIPCompressLevel(src, LevelDefault)
}

// ZIPCompressLevel compresses src as a zlib stream at the given level.
// An empty input compresses to nil.
func ZIPCompressLevel(src []byte, level Level) ([]byte, error) {
	if len(src) == 0 {
		return nil, nil
	}
	if !level.Valid() {
		return nil, ErrZIPLevel
	}

	if level == LevelDefault {
		item := zlibWriterPool.Get().(*zlibWriterPoolItem)
		defer zlibWriterPool.Put(item)
		item.buf.Reset()
		item.writer.Reset(item.buf)
		if _, err := item.writer.Write(src); err != nil {
			return nil, err
		}
		if err := item.writer.Close(); err != nil {
			return nil, err
		}
		return bytes.Clone(item.buf.Bytes()), nil
	}

	buf := new(bytes.Buffer)
	w, err := zlib.NewWriterLevel(buf, int(level))
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ZIPDecompress decompresses a zlib stream whose decompressed size is
// known to be exactly expectedSize.
func ZIPDecompress(src []byte, expectedSize int) ([]byte, error) {
	if len(src) == 0 {
		if expectedSize != 0 {
			return nil, ErrZIPCorrupted
		}
		return nil, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, ErrZIPCorrupted
	}
	defer r.Close()

	dst := make([]byte, expectedSize)
	if _, err := io.ReadFull(r, dst); err != nil {
		return nil, ErrZIPCorrupted
	}
	return dst, nil
}

// ZIPDecompressAll decompresses a zlib stream of unknown size.
func ZIPDecompressAll(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, ErrZIPCorrupted
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, ErrZIPCorrupted
	}
	return out, nil
}
