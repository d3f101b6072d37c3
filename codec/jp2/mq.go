package jp2

// MQ arithmetic coder of ISO/IEC 15444-1 Annex C.

type mqState struct {
	qe         uint32
	nmps, nlps uint8
	swap       bool
}

var mqStates = [47]mqState{
	{0x5601, 1, 1, true},
	{0x3401, 2, 6, false},
	{0x1801, 3, 9, false},
	{0x0ac1, 4, 12, false},
	{0x0521, 5, 29, false},
	{0x0221, 38, 33, false},
	{0x5601, 7, 6, true},
	{0x5401, 8, 14, false},
	{0x4801, 9, 14, false},
	{0x3801, 10, 14, false},
	{0x3001, 11, 17, false},
	{0x2401, 12, 18, false},
	{0x1c01, 13, 20, false},
	{0x1601, 29, 21, false},
	{0x5601, 15, 14, true},
	{0x5401, 16, 14, false},
	{0x5101, 17, 15, false},
	{0x4801, 18, 16, false},
	{0x3801, 19, 17, false},
	{0x3401, 20, 18, false},
	{0x3001, 21, 19, false},
	{0x2801, 22, 19, false},
	{0x2401, 23, 20, false},
	{0x2201, 24, 21, false},
	{0x1c01, 25, 22, false},
	{0x1801, 26, 23, false},
	{0x1601, 27, 24, false},
	{0x1401, 28, 25, false},
	{0x1201, 29, 26, false},
	{0x1101, 30, 27, false},
	{0x0ac1, 31, 28, false},
	{0x09c1, 32, 29, false},
	{0x08a1, 33, 30, false},
	{0x0521, 34, 31, false},
	{0x0441, 35, 32, false},
	{0x02a1, 36, 33, false},
	{0x0221, 37, 34, false},
	{0x0141, 38, 35, false},
	{0x0111, 39, 36, false},
	{0x0085, 40, 37, false},
	{0x0049, 41, 38, false},
	{0x0025, 42, 39, false},
	{0x0015, 43, 40, false},
	{0x0009, 44, 41, false},
	{0x0005, 45, 42, false},
	{0x0001, 45, 43, false},
	{0x5601, 46, 46, false},
}

// Code block contexts: nine for zero coding, five for sign coding, three
// for magnitude refinement, then run length and uniform.
const (
	ctxZC  = 0
	ctxSC  = 9
	ctxMR  = 14
	ctxRL  = 17
	ctxUNI = 18

	numContexts = 19
)

// mqContexts holds the probability state and most probable symbol of
// every context.
type mqContexts struct {
	state [numContexts]uint8
	mps   [numContexts]uint8
}

func (c *mqContexts) reset() {
	*c = mqContexts{}
	c.state[ctxZC] = 4
	c.state[ctxRL] = 3
	c.state[ctxUNI] = 46
}

type mqEncoder struct {
	mqContexts
	a, c uint32
	ct   uint
	// buf[0] is the byte before the first output byte.
	buf []byte
}

func newMQEncoder() *mqEncoder {
	e := &mqEncoder{a: 0x8000, ct: 12, buf: make([]byte, 1, 256)}
	e.reset()
	return e
}

// code writes bit in context cx and returns it.
func (e *mqEncoder) code(cx, bit int) int {
	s := &mqStates[e.state[cx]]
	e.a -= s.qe
	if uint8(bit) == e.mps[cx] {
		if e.a&0x8000 != 0 {
			e.c += s.qe
			return bit
		}
		if e.a < s.qe {
			e.a = s.qe
		} else {
			e.c += s.qe
		}
		e.state[cx] = s.nmps
	} else {
		if e.a < s.qe {
			e.c += s.qe
		} else {
			e.a = s.qe
		}
		if s.swap {
			e.mps[cx] ^= 1
		}
		e.state[cx] = s.nlps
	}
	for e.a&0x8000 == 0 {
		e.a <<= 1
		e.c <<= 1
		e.ct--
		if e.ct == 0 {
			e.byteOut()
		}
	}
	return bit
}

func (e *mqEncoder) byteOut() {
	last := len(e.buf) - 1
	if e.buf[last] == 0xff {
		e.buf = append(e.buf, byte(e.c>>20))
		e.c &= 0xfffff
		e.ct = 7
		return
	}
	if e.c&0x8000000 != 0 {
		e.buf[last]++
		if e.buf[last] == 0xff {
			e.c &= 0x7ffffff
			e.buf = append(e.buf, byte(e.c>>20))
			e.c &= 0xfffff
			e.ct = 7
			return
		}
	}
	e.buf = append(e.buf, byte(e.c>>19))
	e.c &= 0x7ffff
	e.ct = 8
}

// flush terminates the codeword and returns it.
func (e *mqEncoder) flush() []byte {
	t := e.c + e.a
	e.c |= 0xffff
	if e.c >= t {
		e.c -= 0x8000
	}
	e.c <<= e.ct
	e.byteOut()
	e.c <<= e.ct
	e.byteOut()
	out := e.buf[1:]
	if n := len(out); n > 0 && out[n-1] == 0xff {
		out = out[:n-1]
	}
	return out
}

type mqDecoder struct {
	mqContexts
	a, c uint32
	ct   uint
	data []byte
	pos  int
}

func newMQDecoder(data []byte) *mqDecoder {
	d := &mqDecoder{data: data}
	d.reset()
	d.c = uint32(d.at(0)) << 16
	d.byteIn()
	d.c <<= 7
	d.ct -= 7
	d.a = 0x8000
	return d
}

// at returns data[i], reading 0xff past the end.
func (d *mqDecoder) at(i int) byte {
	if i < len(d.data) {
		return d.data[i]
	}
	return 0xff
}

func (d *mqDecoder) byteIn() {
	if d.at(d.pos) == 0xff {
		if d.at(d.pos+1) > 0x8f {
			d.c += 0xff00
			d.ct = 8
			return
		}
		d.pos++
		d.c += uint32(d.at(d.pos)) << 9
		d.ct = 7
		return
	}
	d.pos++
	d.c += uint32(d.at(d.pos)) << 8
	d.ct = 8
}

// code reads a bit in context cx. The bit argument is ignored.
func (d *mqDecoder) code(cx, _ int) int {
	s := &mqStates[d.state[cx]]
	mps := int(d.mps[cx])
	var bit int
	d.a -= s.qe
	if d.c>>16 < d.a {
		if d.a&0x8000 != 0 {
			return mps
		}
		if d.a < s.qe {
			bit = 1 - mps
			if s.swap {
				d.mps[cx] ^= 1
			}
			d.state[cx] = s.nlps
		} else {
			bit = mps
			d.state[cx] = s.nmps
		}
	} else {
		d.c -= d.a << 16
		if d.a < s.qe {
			d.a = s.qe
			bit = mps
			d.state[cx] = s.nmps
		} else {
			d.a = s.qe
			bit = 1 - mps
			if s.swap {
				d.mps[cx] ^= 1
			}
			d.state[cx] = s.nlps
		}
	}
	for d.a&0x8000 == 0 {
		if d.ct == 0 {
			d.byteIn()
		}
		d.a <<= 1
		d.c <<= 1
		d.ct--
	}
	return bit
}
