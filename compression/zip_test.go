package compression

import (
	"bytes"
	"testing"
)

func TestZIPCompressEmpty(t *testing.T) {
	result, err := ZIPCompress(nil)
	if err != nil || result != nil {
		t.Error("Compressing nil should return nil, nil")
	}
}

func TestZIPDecompressEmpty(t *testing.T) {
	result, err := ZIPDecompress(nil, 0)
	if err != nil || result != nil {
		t.Error("Decompressing nil should return nil, nil")
	}
	if _, err := ZIPDecompress(nil, 4); err != ErrZIPCorrupted {
		t.Errorf("Decompressing nil with size 4: err = %v, want ErrZIPCorrupted", err)
	}
}

func TestZIPRoundTripLevels(t *testing.T) {
	original := bytes.Repeat([]byte("display window / data window "), 64)

	levels := []Level{LevelHuffmanOnly, LevelDefault, LevelNone, LevelBestSpeed, 4, LevelBestSize}
	for _, level := range levels {
		compressed, err := ZIPCompressLevel(original, level)
		if err != nil {
			t.Fatalf("level %d: compress error: %v", level, err)
		}

		decompressed, err := ZIPDecompress(compressed, len(original))
		if err != nil {
			t.Fatalf("level %d: decompress error: %v", level, err)
		}
		if !bytes.Equal(decompressed, original) {
			t.Errorf("level %d: round trip mismatch", level)
		}

		all, err := ZIPDecompressAll(compressed)
		if err != nil || !bytes.Equal(all, original) {
			t.Errorf("level %d: ZIPDecompressAll mismatch (err %v)", level, err)
		}
	}
}

func TestZIPInvalidLevel(t *testing.T) {
	if _, err := ZIPCompressLevel([]byte{1}, 10); err != ErrZIPLevel {
		t.Errorf("level 10 error = %v, want ErrZIPLevel", err)
	}
}

func TestZIPDecompressCorrupted(t *testing.T) {
	if _, err := ZIPDecompress([]byte{0x00, 0x01, 0x02}, 8); err != ErrZIPCorrupted {
		t.Errorf("corrupted data error = %v, want ErrZIPCorrupted", err)
	}
}

func TestZIPPoolReuse(t *testing.T) {
	// Interleaved compressions through the pooled writer must not leak
	// state between calls.
	a := bytes.Repeat([]byte{1, 2, 3}, 100)
	b := bytes.Repeat([]byte{9}, 77)
	for i := 0; i < 4; i++ {
		for _, src := range [][]byte{a, b} {
			c, err := ZIPCompress(src)
			if err != nil {
				t.Fatal(err)
			}
			d, err := ZIPDecompress(c, len(src))
			if err != nil || !bytes.Equal(d, src) {
				t.Fatalf("iteration %d: round trip failed: %v", i, err)
			}
		}
	}
}
