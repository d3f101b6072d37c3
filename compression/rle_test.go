package compression

import (
	"bytes"
	"math/rand"
	"testing"
)

// signedByte converts a signed int8 value to a byte for use in test data.
func signedByte(v int8) byte {
	return byte(v)
}

func TestRLECompressEmpty(t *testing.T) {
	if result := RLECompress(nil); result != nil {
		t.Error("Compressing nil should return nil")
	}
	if result := PackBitsCompress([]byte{}); result != nil {
		t.Error("Compressing empty should return nil")
	}
}

func TestRLEEncodings(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		exr      []byte
		packBits []byte
		byteRun  []byte
	}{
		{
			name:     "run",
			data:     []byte{42, 42, 42, 42, 42},
			exr:      []byte{4, 42},
			packBits: []byte{signedByte(-4), 42},
			byteRun:  []byte{0x84, 42},
		},
		{
			name:     "literals",
			data:     []byte{1, 2, 3, 4},
			exr:      []byte{signedByte(-4), 1, 2, 3, 4},
			packBits: []byte{3, 1, 2, 3, 4},
			byteRun:  []byte{3, 1, 2, 3, 4},
		},
		{
			name:     "mixed",
			data:     []byte{1, 2, 7, 7, 7},
			exr:      []byte{signedByte(-2), 1, 2, 2, 7},
			packBits: []byte{1, 1, 2, signedByte(-2), 7},
			byteRun:  []byte{1, 1, 2, 0x82, 7},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RLECompress(tt.data); !bytes.Equal(got, tt.exr) {
				t.Errorf("RLECompress = %v, want %v", got, tt.exr)
			}
			if got := PackBitsCompress(tt.data); !bytes.Equal(got, tt.packBits) {
				t.Errorf("PackBitsCompress = %v, want %v", got, tt.packBits)
			}
			if got := ByteRunCompress(tt.data); !bytes.Equal(got, tt.byteRun) {
				t.Errorf("ByteRunCompress = %v, want %v", got, tt.byteRun)
			}
		})
	}
}

func TestRLERoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for size := 0; size < 600; size += 37 {
		data := make([]byte, size)
		for i := range data {
			// Small alphabet produces a mix of runs and literals.
			data[i] = byte(rng.Intn(3))
		}

		got, err := RLEDecompress(RLECompress(data), len(data))
		if err != nil {
			t.Fatalf("size %d: RLEDecompress error: %v", size, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("size %d: RLE round trip mismatch", size)
		}

		got, err = PackBitsDecompress(PackBitsCompress(data), len(data))
		if err != nil {
			t.Fatalf("size %d: PackBitsDecompress error: %v", size, err)
		}
		if !bytes.Equal(got, data) {
			t.Fatalf("size %d: PackBits round trip mismatch", size)
		}

		packed := append(ByteRunCompress(data), 0xff, 0xff)
		got, n, err := ByteRunDecompress(packed, len(data))
		if err != nil {
			t.Fatalf("size %d: ByteRunDecompress error: %v", size, err)
		}
		if !bytes.Equal(got, data) || n != len(packed)-2 {
			t.Fatalf("size %d: byte-run round trip mismatch (consumed %d)", size, n)
		}
	}
}

func TestRLELongRun(t *testing.T) {
	data := bytes.Repeat([]byte{9}, 1000)
	compressed := RLECompress(data)
	if len(compressed) > 20 {
		t.Errorf("1000-byte run compressed to %d bytes", len(compressed))
	}
	got, err := RLEDecompress(compressed, len(data))
	if err != nil || !bytes.Equal(got, data) {
		t.Errorf("long run round trip failed: %v", err)
	}
}

func TestRLEDecompressCorrupted(t *testing.T) {
	// Literal header promising more bytes than present.
	if _, err := RLEDecompress([]byte{signedByte(-5), 1, 2}, 5); err != ErrRLECorrupted {
		t.Errorf("truncated literal error = %v, want ErrRLECorrupted", err)
	}
	// Run longer than the expected size.
	if _, err := RLEDecompress([]byte{10, 1}, 4); err != ErrRLEOverflow {
		t.Errorf("overflow error = %v, want ErrRLEOverflow", err)
	}
	// Output shorter than expected.
	if _, err := PackBitsDecompress([]byte{0, 1}, 2); err != ErrRLECorrupted {
		t.Errorf("short output error = %v, want ErrRLECorrupted", err)
	}
	if _, _, err := ByteRunDecompress([]byte{0x81, 3}, 4); err != ErrRLECorrupted {
		t.Errorf("short byte-run error = %v, want ErrRLECorrupted", err)
	}
}
