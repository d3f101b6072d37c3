package compression

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestLZWRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	random := make([]byte, 20000)
	rng.Read(random)

	skewed := make([]byte, 50000)
	for i := range skewed {
		skewed[i] = byte(rng.Intn(4) * 60)
	}

	tests := map[string][]byte{
		"empty":  {},
		"single": {200},
		"text":   []byte("TOBEORNOTTOBEORTOBEORNOT#"),
		"runs":   bytes.Repeat([]byte{0, 0, 0, 255}, 3000),
		"random": random,
		"skewed": skewed,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			compressed := LZWCompress(data)
			got, err := LZWDecompress(compressed, len(data))
			if err != nil {
				t.Fatalf("LZWDecompress error: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestLZWCompresses(t *testing.T) {
	data := bytes.Repeat([]byte("scanline"), 1000)
	if c := LZWCompress(data); len(c) >= len(data)/4 {
		t.Errorf("repetitive input compressed to %d of %d bytes", len(c), len(data))
	}
}
