package jp2

import "github.com/pkg/errors"

// Packet headers: bit-stuffed bit I/O, tag trees and the per code block
// inclusion, zero bitplane, pass count and length fields.

// bitWriter writes packet header bits MSB first. A byte following 0xff
// carries only seven bits.
type bitWriter struct {
	out  []byte
	cur  byte
	free uint
}

func newBitWriter() *bitWriter { return &bitWriter{free: 8} }

func (w *bitWriter) byteOut() {
	w.out = append(w.out, w.cur)
	w.free = 8
	if w.cur == 0xff {
		w.free = 7
	}
	w.cur = 0
}

func (w *bitWriter) put(bit int) {
	if w.free == 0 {
		w.byteOut()
	}
	w.free--
	w.cur |= byte(bit&1) << w.free
}

func (w *bitWriter) putBits(v, n int) {
	for i := n - 1; i >= 0; i-- {
		w.put(v >> i & 1)
	}
}

// finish pads the last byte and returns the header.
func (w *bitWriter) finish() []byte {
	w.byteOut()
	if w.free == 7 {
		w.byteOut()
	}
	return w.out
}

type bitReader struct {
	data []byte
	pos  int
	cur  byte
	left uint
}

func (r *bitReader) byteIn() error {
	if r.pos >= len(r.data) {
		return errors.Wrap(ErrCorrupt, "truncated packet header")
	}
	r.left = 8
	if r.cur == 0xff {
		r.left = 7
	}
	r.cur = r.data[r.pos]
	r.pos++
	return nil
}

func (r *bitReader) bit() (int, error) {
	if r.left == 0 {
		if err := r.byteIn(); err != nil {
			return 0, err
		}
	}
	r.left--
	return int(r.cur>>r.left) & 1, nil
}

func (r *bitReader) bits(n int) (int, error) {
	v := 0
	for range n {
		b, err := r.bit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

// align skips the stuffed byte that follows a final 0xff and returns the
// offset of the packet body.
func (r *bitReader) align() (int, error) {
	if r.cur == 0xff {
		if err := r.byteIn(); err != nil {
			return 0, err
		}
	}
	r.left = 0
	return r.pos, nil
}

// tagTree codes a grid of non-negative values through a quad tree of
// minima. Level 0 holds the leaves.
type tagTree struct {
	levels []tagLevel
}

type tagLevel struct {
	w, h  int
	value []int
	low   []int
	known []bool
}

// unknown is the initial node value of a decoding tree.
const unknown = 999

func newTagTree(w, h int) *tagTree {
	t := &tagTree{}
	for {
		n := w * h
		l := tagLevel{w: w, h: h, value: make([]int, n), low: make([]int, n), known: make([]bool, n)}
		for i := range l.value {
			l.value[i] = unknown
		}
		t.levels = append(t.levels, l)
		if n <= 1 {
			return t
		}
		w, h = (w+1)/2, (h+1)/2
	}
}

// set assigns leaf (x, y), lowering the minima above it.
func (t *tagTree) set(x, y, v int) {
	for k := range t.levels {
		l := &t.levels[k]
		i := y*l.w + x
		if l.value[i] <= v {
			return
		}
		l.value[i] = v
		x, y = x/2, y/2
	}
}

// path returns the node indices from the root down to leaf (x, y).
func (t *tagTree) path(x, y int) []int {
	idx := make([]int, len(t.levels))
	for k := range t.levels {
		idx[k] = y*t.levels[k].w + x
		x, y = x/2, y/2
	}
	return idx
}

func (t *tagTree) encode(w *bitWriter, x, y, threshold int) {
	idx := t.path(x, y)
	low := 0
	for k := len(t.levels) - 1; k >= 0; k-- {
		l := &t.levels[k]
		i := idx[k]
		if low > l.low[i] {
			l.low[i] = low
		} else {
			low = l.low[i]
		}
		for low < threshold {
			if low >= l.value[i] {
				if !l.known[i] {
					w.put(1)
					l.known[i] = true
				}
				break
			}
			w.put(0)
			low++
		}
		l.low[i] = low
	}
}

// decode reads leaf (x, y) up to threshold and reports whether its value
// is below it.
func (t *tagTree) decode(r *bitReader, x, y, threshold int) (bool, error) {
	idx := t.path(x, y)
	low := 0
	for k := len(t.levels) - 1; k >= 0; k-- {
		l := &t.levels[k]
		i := idx[k]
		if low > l.low[i] {
			l.low[i] = low
		} else {
			low = l.low[i]
		}
		for low < threshold && low < l.value[i] {
			b, err := r.bit()
			if err != nil {
				return false, err
			}
			if b == 1 {
				l.value[i] = low
			} else {
				low++
			}
		}
		l.low[i] = low
	}
	return t.levels[0].value[idx[0]] < threshold, nil
}

func putPasses(w *bitWriter, n int) {
	switch {
	case n == 1:
		w.put(0)
	case n == 2:
		w.putBits(2, 2)
	case n <= 5:
		w.putBits(0xc|(n-3), 4)
	case n <= 36:
		w.putBits(0x1e0|(n-6), 9)
	default:
		w.putBits(0xff80|(n-37), 16)
	}
}

func readPasses(r *bitReader) (int, error) {
	if b, err := r.bit(); err != nil || b == 0 {
		return 1, err
	}
	if b, err := r.bit(); err != nil || b == 0 {
		return 2, err
	}
	if v, err := r.bits(2); err != nil || v != 3 {
		return 3 + v, err
	}
	if v, err := r.bits(5); err != nil || v != 31 {
		return 6 + v, err
	}
	v, err := r.bits(7)
	return 37 + v, err
}

func floorLog2(v int) int { return bitLen(uint32(v)) - 1 }

// codeBlock is one code block of a subband, positioned in the component
// plane.
type codeBlock struct {
	x0, y0, w, h int
	k            int
	data         []byte
	lblock       int
}

// subband is a subband of one component with its code blocks and tag
// trees.
type subband struct {
	orient       int
	x0, y0, w, h int
	// mb is the number of magnitude bitplanes the quantization segment
	// allows.
	mb       int
	cbw, cbh int
	blocks   []codeBlock
	incl     *tagTree
	zero     *tagTree
}

func newSubband(orient, x0, y0, w, h, mb int) *subband {
	b := &subband{orient: orient, x0: x0, y0: y0, w: w, h: h, mb: mb}
	b.cbw, b.cbh = (w+blockSize-1)/blockSize, (h+blockSize-1)/blockSize
	for y := 0; y < h; y += blockSize {
		for x := 0; x < w; x += blockSize {
			b.blocks = append(b.blocks, codeBlock{
				x0: x0 + x, y0: y0 + y,
				w: min(blockSize, w-x), h: min(blockSize, h-y),
				lblock: 3,
			})
		}
	}
	b.incl = newTagTree(b.cbw, b.cbh)
	b.zero = newTagTree(b.cbw, b.cbh)
	return b
}

// writePacket writes the single layer packet holding the code blocks of
// bands.
func writePacket(bands []*subband) []byte {
	w := newBitWriter()
	empty := true
	for _, b := range bands {
		for i := range b.blocks {
			cb := &b.blocks[i]
			x, y := i%b.cbw, i/b.cbw
			b.zero.set(x, y, b.mb-cb.k)
			if cb.k > 0 {
				b.incl.set(x, y, 0)
				empty = false
			}
		}
	}
	if empty {
		w.put(0)
		return w.finish()
	}
	w.put(1)
	var body []byte
	for _, b := range bands {
		for i := range b.blocks {
			cb := &b.blocks[i]
			x, y := i%b.cbw, i/b.cbw
			b.incl.encode(w, x, y, 1)
			if cb.k == 0 {
				continue
			}
			b.zero.encode(w, x, y, unknown)
			passes := numPasses(cb.k)
			putPasses(w, passes)
			need := bitLen(uint32(len(cb.data)))
			inc := max(0, need-(cb.lblock+floorLog2(passes)))
			for range inc {
				w.put(1)
			}
			w.put(0)
			cb.lblock += inc
			w.putBits(len(cb.data), cb.lblock+floorLog2(passes))
			body = append(body, cb.data...)
		}
	}
	return append(w.finish(), body...)
}

// readPacket reads the packet for bands at data[pos:], filling in the
// code block bitplanes and codewords, and returns the offset past it.
func readPacket(data []byte, pos int, bands []*subband) (int, error) {
	r := &bitReader{data: data, pos: pos}
	present, err := r.bit()
	if err != nil {
		return 0, err
	}
	if present == 0 {
		return r.align()
	}
	type pending struct {
		cb *codeBlock
		n  int
	}
	var order []pending
	for _, b := range bands {
		for i := range b.blocks {
			cb := &b.blocks[i]
			x, y := i%b.cbw, i/b.cbw
			in, err := b.incl.decode(r, x, y, 1)
			if err != nil {
				return 0, err
			}
			if !in {
				continue
			}
			p := 1
			for {
				below, err := b.zero.decode(r, x, y, p)
				if err != nil {
					return 0, err
				}
				if below {
					break
				}
				if p++; p > b.mb+1 {
					return 0, errors.Wrap(ErrCorrupt, "zero bitplanes")
				}
			}
			cb.k = b.mb + 1 - p
			passes, err := readPasses(r)
			if err != nil {
				return 0, err
			}
			if cb.k <= 0 || passes != numPasses(cb.k) {
				return 0, errors.Wrapf(ErrUnsupported, "%d coding passes for %d bitplanes", passes, cb.k)
			}
			for {
				bit, err := r.bit()
				if err != nil {
					return 0, err
				}
				if bit == 0 {
					break
				}
				cb.lblock++
			}
			n, err := r.bits(cb.lblock + floorLog2(passes))
			if err != nil {
				return 0, err
			}
			order = append(order, pending{cb, n})
		}
	}
	pos, err = r.align()
	if err != nil {
		return 0, err
	}
	for _, p := range order {
		if pos+p.n > len(data) {
			return 0, errors.Wrap(ErrCorrupt, "truncated code block")
		}
		p.cb.data = data[pos : pos+p.n]
		pos += p.n
	}
	return pos, nil
}
