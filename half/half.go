// Package half converts between float32 and IEEE 754 binary16 values.
//
// Half-precision floats use 1 sign bit, 5 exponent bits (bias 15) and 10
// mantissa bits. The OpenEXR encoder stores "half" channels with them.
package half

import "math"

// Half is an IEEE 754 binary16 value stored as its raw bits.
type Half uint16

const (
	signBit      = 0x8000
	exponentMask = 0x7C00
	mantissaMask = 0x03FF
	exponentBias = 15
	maxExponent  = 31
)

// Special values.
const (
	Zero   Half = 0x0000
	Inf    Half = 0x7C00
	NegInf Half = 0xFC00
	NaN    Half = 0x7E00
	Max    Half = 0x7BFF // 65504
)

// FromFloat32 converts f to the nearest Half, rounding ties to even.
// Values beyond the half range become infinities.
func FromFloat32(f float32) Half {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & signBit
	exp := int(bits>>23) & 0xFF
	mant := bits & 0x007FFFFF

	switch {
	case exp == 0xFF:
		if mant == 0 {
			return Half(sign | exponentMask)
		}
		return Half(sign | exponentMask | uint16(mant>>13) | 0x0200)
	case exp == 0:
		return Half(sign)
	}

	exp = exp - 127 + exponentBias
	if exp >= maxExponent {
		return Half(sign | exponentMask)
	}

	if exp <= 0 {
		if exp < -10 {
			return Half(sign)
		}
		mant |= 0x00800000
		shift := uint(14 - exp)
		h := mant >> shift
		rem := mant & (1<<shift - 1)
		halfway := uint32(1) << (shift - 1)
		if rem > halfway || (rem == halfway && h&1 != 0) {
			h++
		}
		// A carry into the exponent field yields the smallest normal, which
		// is the correct result.
		return Half(sign | uint16(h))
	}

	h := uint32(exp)<<10 | mant>>13
	rem := mant & 0x1FFF
	if rem > 0x1000 || (rem == 0x1000 && h&1 != 0) {
		h++
	}
	// A carry out of the mantissa increments the exponent and may produce
	// infinity, which is again the correctly rounded value.
	return Half(sign | uint16(h))
}

// Float32 converts h to float32 exactly.
func (h Half) Float32() float32 {
	sign := uint32(h&signBit) << 16
	exp := int(h>>10) & 0x1F
	mant := uint32(h & mantissaMask)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: renormalize.
		e := 1
		for mant&0x0400 == 0 {
			mant <<= 1
			e--
		}
		mant &= mantissaMask
		return math.Float32frombits(sign | uint32(e-exponentBias+127)<<23 | mant<<13)
	case maxExponent:
		if mant == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000 | mant<<13)
	}
	return math.Float32frombits(sign | uint32(exp-exponentBias+127)<<23 | mant<<13)
}

// IsNaN reports whether h is a NaN.
func (h Half) IsNaN() bool {
	return h&exponentMask == exponentMask && h&mantissaMask != 0
}

// IsInf reports whether h is an infinity of either sign.
func (h Half) IsInf() bool {
	return h&0x7FFF == exponentMask
}
