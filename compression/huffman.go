package compression

import (
	"container/heap"
	"encoding/binary"
	"errors"
)

// Huffman coding of 16-bit symbols as used by OpenEXR PIZ. A block is a
// 20-byte header (lowest and highest symbol, table length, bit count, a
// reserved word), the packed code length table and the code bits. Runs of
// a repeated symbol are sent as the symbol, a run pseudo-symbol and an
// 8-bit count.

// Huffman errors
var (
	ErrHuffmanCorrupted = errors.New("compression: corrupted Huffman data")
	ErrHuffmanTooLong   = errors.New("compression: Huffman code too long")
)

const (
	hufEncBits    = 16
	hufEncSize    = 1<<hufEncBits + 1
	hufMaxCodeLen = 58
	hufHeaderLen  = 20

	shortZeroRun    = 59
	longZeroRun     = 63
	shortestLongRun = 2 + longZeroRun - shortZeroRun
	longestLongRun  = 255 + shortestLongRun
)

// A table entry packs a code as code<<6 | length.
func hufLength(code uint64) int  { return int(code & 63) }
func hufCode(code uint64) uint64 { return code >> 6 }

type hufWriter struct {
	out []byte
	c   uint64
	lc  int
	n   int
}

func (w *hufWriter) put(n int, bits uint64) {
	if n > 32 {
		w.put(n-32, bits>>32)
		n, bits = 32, bits&0xffffffff
	}
	w.c = w.c<<n | bits
	w.lc += n
	w.n += n
	for w.lc >= 8 {
		w.lc -= 8
		w.out = append(w.out, byte(w.c>>w.lc))
	}
}

func (w *hufWriter) putCode(code uint64) { w.put(hufLength(code), hufCode(code)) }

func (w *hufWriter) flush() []byte {
	if w.lc > 0 {
		w.out = append(w.out, byte(w.c<<(8-w.lc)))
		w.lc = 0
	}
	return w.out
}

type hufReader struct {
	data []byte
	pos  int
	c    uint64
	lc   int
}

func (r *hufReader) get(n int) (uint64, error) {
	for r.lc < n {
		if r.pos >= len(r.data) {
			return 0, ErrHuffmanCorrupted
		}
		r.c = r.c<<8 | uint64(r.data[r.pos])
		r.pos++
		r.lc += 8
	}
	r.lc -= n
	return r.c >> r.lc & (1<<n - 1), nil
}

// canonicalCodes replaces the code lengths in hcode with canonical codes.
// Shorter codes are numerically higher; codes of one length increase with
// the symbol.
func canonicalCodes(hcode []uint64) {
	var n [hufMaxCodeLen + 1]uint64
	for _, l := range hcode {
		n[l]++
	}
	var c uint64
	for i := hufMaxCodeLen; i > 0; i-- {
		nc := (c + n[i]) >> 1
		n[i] = c
		c = nc
	}
	for i, l := range hcode {
		if l > 0 {
			hcode[i] = l | n[l]<<6
			n[l]++
		}
	}
}

// freqHeap orders symbols by frequency, then by symbol.
type freqHeap struct {
	syms []int
	frq  []uint64
}

func (h *freqHeap) Len() int { return len(h.syms) }
func (h *freqHeap) Less(i, j int) bool {
	a, b := h.syms[i], h.syms[j]
	if h.frq[a] != h.frq[b] {
		return h.frq[a] < h.frq[b]
	}
	return a < b
}
func (h *freqHeap) Swap(i, j int) { h.syms[i], h.syms[j] = h.syms[j], h.syms[i] }
func (h *freqHeap) Push(x any)    { h.syms = append(h.syms, x.(int)) }
func (h *freqHeap) Pop() any {
	x := h.syms[len(h.syms)-1]
	h.syms = h.syms[:len(h.syms)-1]
	return x
}

// buildEncTable turns the symbol frequencies in frq into a code table and
// returns the lowest and highest coded symbols. The highest is the run
// pseudo-symbol appended past the last used symbol.
func buildEncTable(frq []uint64) (codes []uint64, im, iM int, err error) {
	for frq[im] == 0 {
		im++
	}
	h := &freqHeap{frq: frq}
	hlink := make([]int, hufEncSize)
	for i := im; i < hufEncSize; i++ {
		hlink[i] = i
		if frq[i] != 0 {
			h.syms = append(h.syms, i)
			iM = i
		}
	}
	iM++
	frq[iM] = 1
	h.syms = append(h.syms, iM)
	heap.Init(h)

	// Code lengths are the depths of the leaves. Merged subtrees are kept
	// as linked lists so every leaf below a new node gains one bit.
	scode := make([]uint64, hufEncSize)
	for h.Len() > 1 {
		mm := heap.Pop(h).(int)
		m := heap.Pop(h).(int)
		frq[m] += frq[mm]
		heap.Push(h, m)

		for j := m; ; j = hlink[j] {
			scode[j]++
			if scode[j] > hufMaxCodeLen {
				return nil, 0, 0, ErrHuffmanTooLong
			}
			if hlink[j] == j {
				hlink[j] = mm
				break
			}
		}
		for j := mm; ; j = hlink[j] {
			scode[j]++
			if scode[j] > hufMaxCodeLen {
				return nil, 0, 0, ErrHuffmanTooLong
			}
			if hlink[j] == j {
				break
			}
		}
	}
	canonicalCodes(scode)
	return scode, im, iM, nil
}

// packEncTable writes the code lengths of symbols im..iM, six bits each,
// with runs of unused symbols shortened.
func packEncTable(w *hufWriter, hcode []uint64, im, iM int) {
	for ; im <= iM; im++ {
		l := hufLength(hcode[im])
		if l == 0 {
			zerun := 1
			for im < iM && zerun < longestLongRun && hufLength(hcode[im+1]) == 0 {
				im++
				zerun++
			}
			if zerun >= 2 {
				if zerun >= shortestLongRun {
					w.put(6, longZeroRun)
					w.put(8, uint64(zerun-shortestLongRun))
				} else {
					w.put(6, uint64(shortZeroRun+zerun-2))
				}
				continue
			}
		}
		w.put(6, uint64(l))
	}
}

func unpackEncTable(r *hufReader, im, iM int) ([]uint64, error) {
	hcode := make([]uint64, hufEncSize)
	for ; im <= iM; im++ {
		l, err := r.get(6)
		if err != nil {
			return nil, err
		}
		zerun := 0
		switch {
		case l == longZeroRun:
			n, err := r.get(8)
			if err != nil {
				return nil, err
			}
			zerun = int(n) + shortestLongRun
		case l >= shortZeroRun:
			zerun = int(l) - shortZeroRun + 2
		default:
			hcode[im] = l
			continue
		}
		if im+zerun > iM+1 {
			return nil, ErrHuffmanCorrupted
		}
		im += zerun - 1
	}
	canonicalCodes(hcode)
	return hcode, nil
}

// sendRun writes sym followed by run more copies of it, as a run code when
// that is shorter.
func sendRun(w *hufWriter, sym, runCode uint64, run int) {
	if hufLength(sym)+hufLength(runCode)+8 < hufLength(sym)*run {
		w.putCode(sym)
		w.putCode(runCode)
		w.put(8, uint64(run))
		return
	}
	for range run + 1 {
		w.putCode(sym)
	}
}

// HufCompress Huffman codes raw. An empty input compresses to nil.
func HufCompress(raw []uint16) ([]byte, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	frq := make([]uint64, hufEncSize)
	for _, v := range raw {
		frq[v]++
	}
	codes, im, iM, err := buildEncTable(frq)
	if err != nil {
		return nil, err
	}

	table := &hufWriter{}
	packEncTable(table, codes, im, iM)
	tableBytes := table.flush()

	w := &hufWriter{}
	s, run := raw[0], 0
	for _, v := range raw[1:] {
		if v == s && run < 255 {
			run++
			continue
		}
		sendRun(w, codes[s], codes[iM], run)
		s, run = v, 0
	}
	sendRun(w, codes[s], codes[iM], run)
	nBits := w.n
	body := w.flush()

	out := make([]byte, hufHeaderLen, hufHeaderLen+len(tableBytes)+len(body))
	binary.LittleEndian.PutUint32(out[0:], uint32(im))
	binary.LittleEndian.PutUint32(out[4:], uint32(iM))
	binary.LittleEndian.PutUint32(out[8:], uint32(len(tableBytes)))
	binary.LittleEndian.PutUint32(out[12:], uint32(nBits))
	out = append(out, tableBytes...)
	return append(out, body...), nil
}

// hufDecoder resolves canonical codes one length at a time.
type hufDecoder struct {
	first [hufMaxCodeLen + 1]uint64
	syms  [hufMaxCodeLen + 1][]int
}

func newHufDecoder(hcode []uint64) *hufDecoder {
	d := &hufDecoder{}
	for sym, code := range hcode {
		l := hufLength(code)
		if l == 0 {
			continue
		}
		if len(d.syms[l]) == 0 {
			d.first[l] = hufCode(code)
		}
		d.syms[l] = append(d.syms[l], sym)
	}
	return d
}

func (d *hufDecoder) next(r *hufReader, limit int) (int, error) {
	var code uint64
	for l := 1; l <= hufMaxCodeLen; l++ {
		if r.pos*8-r.lc >= limit {
			return 0, ErrHuffmanCorrupted
		}
		b, err := r.get(1)
		if err != nil {
			return 0, err
		}
		code = code<<1 | b
		if code >= d.first[l] && code-d.first[l] < uint64(len(d.syms[l])) {
			return d.syms[l][code-d.first[l]], nil
		}
	}
	return 0, ErrHuffmanCorrupted
}

// HufDecompress decodes a block written by HufCompress into n symbols.
func HufDecompress(data []byte, n int) ([]uint16, error) {
	if len(data) == 0 {
		if n != 0 {
			return nil, ErrHuffmanCorrupted
		}
		return nil, nil
	}
	if len(data) < hufHeaderLen {
		return nil, ErrHuffmanCorrupted
	}
	im := int(binary.LittleEndian.Uint32(data[0:]))
	iM := int(binary.LittleEndian.Uint32(data[4:]))
	tableLen := int(binary.LittleEndian.Uint32(data[8:]))
	nBits := int(binary.LittleEndian.Uint32(data[12:]))
	if im < 0 || im >= hufEncSize || iM < im || iM >= hufEncSize {
		return nil, ErrHuffmanCorrupted
	}
	if tableLen < 0 || hufHeaderLen+tableLen > len(data) {
		return nil, ErrHuffmanCorrupted
	}
	hcode, err := unpackEncTable(&hufReader{data: data[hufHeaderLen : hufHeaderLen+tableLen]}, im, iM)
	if err != nil {
		return nil, err
	}
	body := data[hufHeaderLen+tableLen:]
	if nBits < 0 || (nBits+7)/8 > len(body) {
		return nil, ErrHuffmanCorrupted
	}

	d := newHufDecoder(hcode)
	r := &hufReader{data: body}
	out := make([]uint16, 0, n)
	for r.pos*8-r.lc < nBits {
		sym, err := d.next(r, nBits)
		if err != nil {
			return nil, err
		}
		if sym != iM {
			if len(out) == n {
				return nil, ErrHuffmanCorrupted
			}
			out = append(out, uint16(sym))
			continue
		}
		if r.pos*8-r.lc+8 > nBits {
			return nil, ErrHuffmanCorrupted
		}
		run, err := r.get(8)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 || len(out)+int(run) > n {
			return nil, ErrHuffmanCorrupted
		}
		last := out[len(out)-1]
		for range run {
			out = append(out, last)
		}
	}
	if len(out) != n {
		return nil, ErrHuffmanCorrupted
	}
	return out, nil
}
