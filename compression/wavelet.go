package compression

// Two-dimensional Haar wavelet used by PIZ. The transform is hierarchical
// on the smaller dimension and works in place on 16-bit values. When every
// value is below 1<<14 the 14-bit variant is used, which keeps sums in
// signed short range; otherwise differences wrap modulo 1<<16.

const (
	waveletBits    = 16
	waveletOffset  = 1 << (waveletBits - 1)
	waveletModMask = 1<<waveletBits - 1
	wavelet14Max   = 1 << 14
)

func wenc14(a, b uint16) (l, h uint16) {
	as, bs := int32(int16(a)), int32(int16(b))
	return uint16((as + bs) >> 1), uint16(as - bs)
}

func wdec14(l, h uint16) (a, b uint16) {
	ls, hs := int32(int16(l)), int32(int16(h))
	ai := ls + (hs & 1) + (hs >> 1)
	return uint16(ai), uint16(ai - hs)
}

func wenc16(a, b uint16) (l, h uint16) {
	ao := (int32(a) + waveletOffset) & waveletModMask
	m := (ao + int32(b)) >> 1
	d := ao - int32(b)
	if d < 0 {
		m = (m + waveletOffset) & waveletModMask
	}
	return uint16(m), uint16(d & waveletModMask)
}

func wdec16(l, h uint16) (a, b uint16) {
	m, d := int32(l), int32(h)
	bb := (m - (d >> 1)) & waveletModMask
	aa := (d + bb - waveletOffset) & waveletModMask
	return uint16(aa), uint16(bb)
}

// Wav2DEncode transforms the nx by ny samples of data, where consecutive
// samples of a row are ox apart and consecutive rows oy apart. maxValue is
// the largest sample.
func Wav2DEncode(data []uint16, nx, ox, ny, oy int, maxValue uint16) {
	enc := wenc16
	if maxValue < wavelet14Max {
		enc = wenc14
	}
	n := min(nx, ny)
	p, p2 := 1, 2
	for p2 <= n {
		ox1, ox2 := ox*p, ox*p2
		oy1, oy2 := oy*p, oy*p2
		py := 0
		for ey := oy * (ny - p2); py <= ey; py += oy2 {
			px := py
			for ex := py + ox*(nx-p2); px <= ex; px += ox2 {
				p01 := px + ox1
				p10 := px + oy1
				p11 := p10 + ox1
				i00, i01 := enc(data[px], data[p01])
				i10, i11 := enc(data[p10], data[p11])
				data[px], data[p10] = enc(i00, i10)
				data[p01], data[p11] = enc(i01, i11)
			}
			// Odd column.
			if nx&p != 0 {
				p10 := px + oy1
				data[px], data[p10] = enc(data[px], data[p10])
			}
		}
		// Odd line.
		if ny&p != 0 {
			px := py
			for ex := py + ox*(nx-p2); px <= ex; px += ox2 {
				p01 := px + ox1
				data[px], data[p01] = enc(data[px], data[p01])
			}
		}
		p, p2 = p2, p2<<1
	}
}

// Wav2DDecode reverses Wav2DEncode.
func Wav2DDecode(data []uint16, nx, ox, ny, oy int, maxValue uint16) {
	dec := wdec16
	if maxValue < wavelet14Max {
		dec = wdec14
	}
	n := min(nx, ny)
	p := 1
	for p <= n {
		p <<= 1
	}
	p >>= 1
	p2 := p
	p >>= 1
	for p >= 1 {
		ox1, ox2 := ox*p, ox*p2
		oy1, oy2 := oy*p, oy*p2
		py := 0
		for ey := oy * (ny - p2); py <= ey; py += oy2 {
			px := py
			for ex := py + ox*(nx-p2); px <= ex; px += ox2 {
				p01 := px + ox1
				p10 := px + oy1
				p11 := p10 + ox1
				i00, i10 := dec(data[px], data[p10])
				i01, i11 := dec(data[p01], data[p11])
				data[px], data[p01] = dec(i00, i01)
				data[p10], data[p11] = dec(i10, i11)
			}
			if nx&p != 0 {
				p10 := px + oy1
				data[px], data[p10] = dec(data[px], data[p10])
			}
		}
		if ny&p != 0 {
			px := py
			for ex := py + ox*(nx-p2); px <= ex; px += ox2 {
				p01 := px + ox1
				data[px], data[p01] = dec(data[px], data[p01])
			}
		}
		p2, p = p, p>>1
	}
}
