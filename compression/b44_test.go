package compression

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/gkocov/gaffer/half"
)

func TestPackUnpack14(t *testing.T) {
	original := [16]uint16{
		0x3c00, 0x3c00, 0x3c00, 0x3c00, // 1.0
		0x3c00, 0x4000, 0x4000, 0x3c00, // 1.0, 2.0, 2.0, 1.0
		0x3c00, 0x4000, 0x4000, 0x3c00,
		0x3c00, 0x3c00, 0x3c00, 0xbc00, // -1.0
	}

	var packed [14]byte
	if n := packB44(&original, packed[:], false, true); n != 14 {
		t.Fatalf("packB44 returned %d bytes, want 14", n)
	}
	var unpacked [16]uint16
	unpack14(packed[:], &unpacked)

	for i := range original {
		want := half.Half(original[i]).Float32()
		got := half.Half(unpacked[i]).Float32()
		diff := got - want
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.05 {
			t.Errorf("sample %d: got %v, want %v", i, got, want)
		}
	}
	// The largest sample is kept exactly.
	if unpacked[5] != 0x4000 {
		t.Errorf("max sample became %#x", unpacked[5])
	}
}

func TestPackSmallDifferencesExactly(t *testing.T) {
	var s [16]uint16
	for i := range s {
		s[i] = 0x3c00 + uint16(i%5)
	}
	var packed [14]byte
	packB44(&s, packed[:], false, true)
	var got [16]uint16
	unpack14(packed[:], &got)
	if got != s {
		t.Errorf("got %#x, want %#x", got, s)
	}
}

func TestFlatField(t *testing.T) {
	var s [16]uint16
	for i := range s {
		s[i] = 0xc100 // -2.5
	}
	var packed [14]byte
	if n := packB44(&s, packed[:], true, true); n != 3 {
		t.Fatalf("flat block packed to %d bytes, want 3", n)
	}
	if packed[2] < b44FlatMin {
		t.Errorf("third byte %#x does not mark a flat block", packed[2])
	}
	var got [16]uint16
	unpack3(packed[:], &got)
	if got != s {
		t.Errorf("got %#x, want %#x", got, s)
	}

	if n := packB44(&s, packed[:], false, true); n != 14 {
		t.Errorf("without flat fields packed to %d bytes, want 14", n)
	}
}

func TestShiftAndRound(t *testing.T) {
	tests := []struct{ x, shift, want int }{
		{5, 0, 5},
		{5, 1, 2},  // 2.5 rounds to even
		{7, 1, 4},  // 3.5 rounds to even
		{6, 2, 2},  // 1.5 rounds to even
		{10, 2, 2}, // 2.5 rounds to even
		{11, 2, 3},
	}
	for _, tt := range tests {
		if got := shiftAndRound(tt.x, tt.shift); got != tt.want {
			t.Errorf("shiftAndRound(%d, %d) = %d, want %d", tt.x, tt.shift, got, tt.want)
		}
	}
}

func TestB44RoundTrip(t *testing.T) {
	// Partial blocks on both axes, a FLOAT channel kept as is.
	const width, height = 10, 6
	channels := []ChannelInfo{
		{Type: PixelTypeHalf, Width: width},
		{Type: PixelTypeFloat, Width: width},
	}
	var data []byte
	for y := range height {
		for x := range width {
			data = binary.LittleEndian.AppendUint16(data, uint16(half.FromFloat32(1+float32(x+y)/16)))
		}
		for x := range width {
			data = binary.LittleEndian.AppendUint32(data, uint32(x*y+7))
		}
	}

	for _, flat := range []bool{false, true} {
		packed, err := B44Compress(data, channels, width, height, flat)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		got, err := B44Decompress(packed, channels, width, height, len(data))
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		line := width * 6
		for y := range height {
			row := y * line
			for x := range width {
				want := half.Half(binary.LittleEndian.Uint16(data[row+2*x:])).Float32()
				v := half.Half(binary.LittleEndian.Uint16(got[row+2*x:])).Float32()
				if d := v - want; d > 0.01 || d < -0.01 {
					t.Errorf("flat %v: sample %d,%d is %v, want %v", flat, x, y, v, want)
				}
			}
			if !bytes.Equal(got[row+2*width:row+line], data[row+2*width:row+line]) {
				t.Errorf("flat %v: line %d FLOAT samples changed", flat, y)
			}
		}
	}
}

func TestB44AShrinksFlatData(t *testing.T) {
	const width, height = 32, 32
	channels := []ChannelInfo{{Type: PixelTypeHalf, Width: width}}
	data := bytes.Repeat([]byte{0x00, 0x3c}, width*height)

	b44, err := B44Compress(data, channels, width, height, false)
	if err != nil {
		t.Fatal(err)
	}
	b44a, err := B44Compress(data, channels, width, height, true)
	if err != nil {
		t.Fatal(err)
	}
	if blocks := (width / 4) * (height / 4); len(b44) != 14*blocks || len(b44a) != 3*blocks {
		t.Errorf("sizes %d and %d for %d blocks", len(b44), len(b44a), blocks)
	}
	got, err := B44Decompress(b44a, channels, width, height, len(data))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("flat data changed")
	}
}

func TestB44Errors(t *testing.T) {
	channels := []ChannelInfo{{Type: PixelTypeHalf, Width: 4}}
	if _, err := B44Compress(make([]byte, 6), channels, 4, 1, false); err != ErrB44Size {
		t.Errorf("err = %v, want ErrB44Size", err)
	}
	if _, err := B44Decompress(make([]byte, 5), channels, 4, 1, 8); err != ErrB44Corrupted {
		t.Errorf("err = %v, want ErrB44Corrupted", err)
	}
}
