// Package predictor implements the byte delta predictor OpenEXR applies
// before ZIP and RLE compression.
//
// Each byte after the first is replaced by its difference from the
// previous byte, biased by 128 so that small differences of either sign
// land near the middle of the byte range.
package predictor

// Encode applies the predictor to data in place.
func Encode(data []byte) {
	// Walk backwards so each difference uses the original predecessor.
	for i := len(data) - 1; i >= 1; i-- {
		data[i] = data[i] - data[i-1] + 128
	}
}

// Decode reverses Encode in place.
func Decode(data []byte) {
	for i := 1; i < len(data); i++ {
		data[i] = data[i-1] + data[i] - 128
	}
}
