package jp2

// Code block coding: the significance propagation, magnitude refinement
// and cleanup passes over bitplanes, driving an MQ coder.

// Subband orientations.
const (
	bandLL = iota
	bandHL
	bandLH
	bandHH
)

// Sample state flags.
const (
	flagSig = 1 << iota
	flagNeg
	flagVisited
	flagRefined
)

// binaryCoder codes one decision. An encoder writes bit and returns it, a
// decoder ignores bit and returns the decoded value.
type binaryCoder interface {
	code(cx, bit int) int
}

// zcContext maps an orientation and the significance of the eight
// neighbours to a zero coding context.
var zcContext [4][256]uint8

// Neighbour bits in the index of zcContext.
const (
	nbW = 1 << iota
	nbE
	nbN
	nbS
	nbNW
	nbNE
	nbSW
	nbSE
)

func init() {
	for orient := range 4 {
		for nb := range 256 {
			zcContext[orient][nb] = zeroContext(orient, nb)
		}
	}
}

func count(nb int, bits ...int) int {
	n := 0
	for _, b := range bits {
		if nb&b != 0 {
			n++
		}
	}
	return n
}

func zeroContext(orient, nb int) uint8 {
	h := count(nb, nbW, nbE)
	v := count(nb, nbN, nbS)
	d := count(nb, nbNW, nbNE, nbSW, nbSE)
	if orient == bandHH {
		hv := h + v
		switch {
		case d == 0:
			return uint8(min(hv, 2))
		case d == 1:
			return 3 + uint8(min(hv, 2))
		case d == 2:
			return 6 + uint8(min(hv, 1))
		}
		return 8
	}
	if orient == bandHL {
		h, v = v, h
	}
	switch h {
	case 0:
		switch {
		case v == 2:
			return 4
		case v == 1:
			return 3
		case d >= 2:
			return 2
		}
		return uint8(d)
	case 1:
		switch {
		case v >= 1:
			return 7
		case d >= 1:
			return 6
		}
		return 5
	}
	return 8
}

// blockCoder holds the state of one code block. Flags are kept with a one
// sample border so neighbours never need bounds checks.
type blockCoder struct {
	w, h   int
	orient int
	mag    []uint32
	flags  []uint8
	coder  binaryCoder
}

func newBlockCoder(w, h, orient int) *blockCoder {
	return &blockCoder{
		w: w, h: h, orient: orient,
		mag:   make([]uint32, w*h),
		flags: make([]uint8, (w+2)*(h+2)),
	}
}

// fi returns the flag index of sample (x, y).
func (t *blockCoder) fi(x, y int) int { return (y+1)*(t.w+2) + x + 1 }

func (t *blockCoder) neighbours(f int) int {
	s := t.w + 2
	nb := 0
	for i, off := range [8]int{-1, 1, -s, s, -s - 1, -s + 1, s - 1, s + 1} {
		if t.flags[f+off]&flagSig != 0 {
			nb |= 1 << i
		}
	}
	return nb
}

// contribution is 1, -1 or 0 for a significant positive, significant
// negative or insignificant neighbour.
func (t *blockCoder) contribution(f int) int {
	switch t.flags[f] & (flagSig | flagNeg) {
	case flagSig:
		return 1
	case flagSig | flagNeg:
		return -1
	}
	return 0
}

func clampUnit(v int) int { return max(-1, min(1, v)) }

// signContext returns the sign coding context and the bit XORed with the
// sign.
func (t *blockCoder) signContext(f int) (int, int) {
	s := t.w + 2
	h := clampUnit(t.contribution(f-1) + t.contribution(f+1))
	v := clampUnit(t.contribution(f-s) + t.contribution(f+s))
	xor := 0
	if h < 0 || (h == 0 && v < 0) {
		h, v, xor = -h, -v, 1
	}
	if h == 0 {
		return ctxSC + v, xor
	}
	return ctxSC + 3 + v, xor
}

// significant codes the sign of the sample at (x, y), which just became
// significant at bitplane p.
func (t *blockCoder) significant(x, y, p int) {
	f := t.fi(x, y)
	cx, xor := t.signContext(f)
	neg := 0
	if t.flags[f]&flagNeg != 0 {
		neg = 1
	}
	if t.coder.code(cx, neg^xor)^xor == 1 {
		t.flags[f] |= flagNeg
	} else {
		t.flags[f] &^= flagNeg
	}
	t.flags[f] |= flagSig
	t.mag[y*t.w+x] |= 1 << p
}

func (t *blockCoder) bit(x, y, p int) int {
	return int(t.mag[y*t.w+x]>>p) & 1
}

// zeroCode codes whether the insignificant sample at (x, y) becomes
// significant at bitplane p.
func (t *blockCoder) zeroCode(x, y, p int) {
	f := t.fi(x, y)
	cx := ctxZC + int(zcContext[t.orient][t.neighbours(f)])
	if t.coder.code(cx, t.bit(x, y, p)) == 1 {
		t.significant(x, y, p)
	}
}

func (t *blockCoder) stripes(fn func(x, y0, y1 int)) {
	for y0 := 0; y0 < t.h; y0 += 4 {
		y1 := min(y0+4, t.h)
		for x := range t.w {
			fn(x, y0, y1)
		}
	}
}

func (t *blockCoder) significancePass(p int) {
	t.stripes(func(x, y0, y1 int) {
		for y := y0; y < y1; y++ {
			f := t.fi(x, y)
			if t.flags[f]&flagSig != 0 || t.neighbours(f) == 0 {
				continue
			}
			t.zeroCode(x, y, p)
			t.flags[f] |= flagVisited
		}
	})
}

func (t *blockCoder) refinementPass(p int) {
	t.stripes(func(x, y0, y1 int) {
		for y := y0; y < y1; y++ {
			f := t.fi(x, y)
			if t.flags[f]&(flagSig|flagVisited) != flagSig {
				continue
			}
			cx := ctxMR + 2
			if t.flags[f]&flagRefined == 0 {
				cx = ctxMR
				if t.neighbours(f) != 0 {
					cx++
				}
			}
			if t.coder.code(cx, t.bit(x, y, p)) == 1 {
				t.mag[y*t.w+x] |= 1 << p
			}
			t.flags[f] |= flagRefined
		}
	})
}

// runnable reports whether the full stripe column at x can be run-length
// coded: no sample is significant, visited or next to a significant one.
func (t *blockCoder) runnable(x, y0 int) bool {
	for y := y0; y < y0+4; y++ {
		f := t.fi(x, y)
		if t.flags[f]&(flagSig|flagVisited) != 0 || t.neighbours(f) != 0 {
			return false
		}
	}
	return true
}

func (t *blockCoder) cleanupPass(p int) {
	t.stripes(func(x, y0, y1 int) {
		y := y0
		if y1-y0 == 4 && t.runnable(x, y0) {
			first := -1
			for i := 3; i >= 0; i-- {
				if t.bit(x, y0+i, p) == 1 {
					first = i
				}
			}
			run := 0
			if first >= 0 {
				run = 1
			}
			if t.coder.code(ctxRL, run) == 0 {
				return
			}
			first = max(first, 0)
			first = t.coder.code(ctxUNI, first>>1)<<1 | t.coder.code(ctxUNI, first&1)
			y = y0 + first
			t.significant(x, y, p)
			y++
		}
		for ; y < y1; y++ {
			if t.flags[t.fi(x, y)]&(flagSig|flagVisited) != 0 {
				continue
			}
			t.zeroCode(x, y, p)
		}
	})
	for i := range t.flags {
		t.flags[i] &^= flagVisited
	}
}

// run codes k bitplanes, most significant first. The first bitplane has
// only a cleanup pass.
func (t *blockCoder) run(k int) {
	for p := k - 1; p >= 0; p-- {
		if p < k-1 {
			t.significancePass(p)
			t.refinementPass(p)
		}
		t.cleanupPass(p)
	}
}

// numPasses returns the number of coding passes for k bitplanes.
func numPasses(k int) int {
	if k == 0 {
		return 0
	}
	return 3*k - 2
}

// encodeBlock codes the w x h coefficients at coef[off:] with row stride
// stride. It returns the codeword and the number of magnitude bitplanes.
func encodeBlock(coef []int32, off, stride, w, h, orient int) ([]byte, int) {
	t := newBlockCoder(w, h, orient)
	var peak uint32
	for y := range h {
		for x := range w {
			v := coef[off+y*stride+x]
			if v < 0 {
				t.flags[t.fi(x, y)] |= flagNeg
				v = -v
			}
			t.mag[y*w+x] = uint32(v)
			peak |= uint32(v)
		}
	}
	k := bitLen(peak)
	if k == 0 {
		return nil, 0
	}
	e := newMQEncoder()
	t.coder = e
	t.run(k)
	return e.flush(), k
}

// decodeBlock decodes k bitplanes of a code block into coef.
func decodeBlock(data []byte, k int, coef []int32, off, stride, w, h, orient int) {
	t := newBlockCoder(w, h, orient)
	t.coder = newMQDecoder(data)
	t.run(k)
	for y := range h {
		for x := range w {
			v := int32(t.mag[y*w+x])
			if t.flags[t.fi(x, y)]&flagNeg != 0 {
				v = -v
			}
			coef[off+y*stride+x] = v
		}
	}
}

func bitLen(v uint32) int {
	n := 0
	for ; v != 0; v >>= 1 {
		n++
	}
	return n
}
