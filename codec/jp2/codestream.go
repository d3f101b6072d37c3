package jp2

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Codestream markers
const (
	markerSOC = 0xff4f
	markerSIZ = 0xff51
	markerCOD = 0xff52
	markerCOC = 0xff53
	markerQCD = 0xff5c
	markerQCC = 0xff5d
	markerRGN = 0xff5e
	markerPOC = 0xff5f
	markerPPM = 0xff60
	markerPPT = 0xff61
	markerCOM = 0xff64
	markerSOT = 0xff90
	markerSOD = 0xff93
	markerEOC = 0xffd9
)

// comLatin marks a COM segment holding ISO 8859-15 text.
const comLatin = 1

// Coding parameters. Code blocks are 64x64, the wavelet is the reversible
// 5/3 and there is a single quality layer.
const (
	blockExp  = 6
	blockSize = 1 << blockExp
	maxLevels = 5
	minGuard  = 2
	maxGuard  = 7
	// maxSide keeps every resolution inside one precinct.
	maxSide = 1 << 15
)

// planes holds the unsigned samples of every component of an image.
type planes struct {
	w, h  int
	prec  int
	comps [][]int32
}

// decompositionLevels returns how many wavelet levels fit an image with
// every subband non-empty.
func decompositionLevels(w, h int) int {
	return min(maxLevels, bitLen(uint32(min(w, h)))-1)
}

// gain returns the log2 gain of a subband orientation.
func gain(orient int) int {
	switch orient {
	case bandHL, bandLH:
		return 1
	case bandHH:
		return 2
	}
	return 0
}

// layout returns the subbands of one component grouped by resolution,
// lowest first, in packet order. Exponents are indexed the same way,
// flattened.
func layout(w, h, levels, guard int, exps []int) ([][]*subband, error) {
	if len(exps) != 3*levels+1 {
		return nil, errors.Wrapf(ErrCorrupt, "%d quantization exponents for %d levels", len(exps), levels)
	}
	res := make([][]*subband, levels+1)
	res[0] = []*subband{newSubband(bandLL, 0, 0, levelSize(w, levels), levelSize(h, levels), guard+exps[0]-1)}
	for r := 1; r <= levels; r++ {
		n := levels - r + 1
		lw, lh := levelSize(w, n), levelSize(h, n)
		pw, ph := levelSize(w, n-1), levelSize(h, n-1)
		e := exps[1+3*(r-1):]
		res[r] = []*subband{
			newSubband(bandHL, lw, 0, pw-lw, lh, guard+e[0]-1),
			newSubband(bandLH, 0, lh, lw, ph-lh, guard+e[1]-1),
			newSubband(bandHH, lw, lh, pw-lw, ph-lh, guard+e[2]-1),
		}
	}
	return res, nil
}

func exponents(prec, levels int) []int {
	exps := []int{prec + gain(bandLL)}
	for range levels {
		for _, o := range []int{bandHL, bandLH, bandHH} {
			exps = append(exps, prec+gain(o))
		}
	}
	return exps
}

func segment(dst []byte, marker uint16, body []byte) []byte {
	dst = binary.BigEndian.AppendUint16(dst, marker)
	dst = binary.BigEndian.AppendUint16(dst, uint16(2+len(body)))
	return append(dst, body...)
}

// encodeCodestream codes p losslessly as a single tile codestream. A
// non-empty comment is stored in a COM segment.
func encodeCodestream(p *planes, comment string) ([]byte, error) {
	if p.w > maxSide || p.h > maxSide {
		return nil, errors.Wrapf(ErrUnsupported, "%dx%d image, sides are limited to %d", p.w, p.h, maxSide)
	}
	levels := decompositionLevels(p.w, p.h)
	exps := exponents(p.prec, levels)

	comps := make([][][]*subband, len(p.comps))
	guard := minGuard
	for c, samples := range p.comps {
		coef := make([]int32, len(samples))
		shift := int32(1) << (p.prec - 1)
		for i, v := range samples {
			coef[i] = v - shift
		}
		forwardDWT(coef, p.w, p.h, levels)

		res, err := layout(p.w, p.h, levels, 0, exps)
		if err != nil {
			return nil, err
		}
		for _, bands := range res {
			for _, b := range bands {
				for i := range b.blocks {
					cb := &b.blocks[i]
					cb.data, cb.k = encodeBlock(coef, cb.y0*p.w+cb.x0, p.w, cb.w, cb.h, b.orient)
					// mb holds exponent - 1 until the guard bits are known.
					guard = max(guard, cb.k-b.mb)
				}
			}
		}
		comps[c] = res
	}
	if guard > maxGuard {
		return nil, errors.Wrapf(ErrUnsupported, "coefficients need %d guard bits", guard)
	}

	var tile []byte
	for r := range levels + 1 {
		for _, res := range comps {
			for _, b := range res[r] {
				b.mb += guard
			}
			tile = append(tile, writePacket(res[r])...)
		}
	}

	out := binary.BigEndian.AppendUint16(nil, markerSOC)

	siz := binary.BigEndian.AppendUint16(nil, 0)
	for _, v := range []int{p.w, p.h, 0, 0, p.w, p.h, 0, 0} {
		siz = binary.BigEndian.AppendUint32(siz, uint32(v))
	}
	siz = binary.BigEndian.AppendUint16(siz, uint16(len(p.comps)))
	for range p.comps {
		siz = append(siz, byte(p.prec-1), 1, 1)
	}
	out = segment(out, markerSIZ, siz)

	// Scod 0, LRCP, one layer, no component transform, then the levels,
	// code block size exponents less two, style 0 and the 5/3 wavelet.
	out = segment(out, markerCOD, []byte{0, 0, 0, 1, 0, byte(levels), blockExp - 2, blockExp - 2, 0, 1})

	qcd := []byte{byte(guard << 5)}
	for _, e := range exps {
		qcd = append(qcd, byte(e<<3))
	}
	out = segment(out, markerQCD, qcd)

	if comment != "" {
		if len(comment) > 0xffff-4 {
			comment = comment[:0xffff-4]
		}
		out = segment(out, markerCOM, append([]byte{0, comLatin}, comment...))
	}

	sot := binary.BigEndian.AppendUint16(nil, 0)
	sot = binary.BigEndian.AppendUint32(sot, uint32(12+2+len(tile)))
	sot = append(sot, 0, 1)
	out = segment(out, markerSOT, sot)
	out = binary.BigEndian.AppendUint16(out, markerSOD)
	out = append(out, tile...)
	return binary.BigEndian.AppendUint16(out, markerEOC), nil
}

// header is the part of the main header the pixel decoder needs.
type header struct {
	w, h   int
	precs  []int
	levels int
	guard  int
	exps   []int
	// tile is the packet data of the only tile.
	tile []byte
}

// parseCodestream reads the main header and locates the tile data. Only
// the coding choices encodeCodestream makes are supported.
func parseCodestream(cs []byte) (*header, error) {
	if len(cs) < 4 || binary.BigEndian.Uint16(cs) != markerSOC {
		return nil, errors.Wrap(ErrCorrupt, "missing SOC marker")
	}
	hdr := &header{levels: -1}
	pos := 2
	for {
		if pos+4 > len(cs) {
			return nil, errors.Wrap(ErrCorrupt, "truncated main header")
		}
		marker := binary.BigEndian.Uint16(cs[pos:])
		n := int(binary.BigEndian.Uint16(cs[pos+2:]))
		if n < 2 || pos+2+n > len(cs) {
			return nil, errors.Wrapf(ErrCorrupt, "marker %#04x length %d", marker, n)
		}
		body := cs[pos+4 : pos+2+n]
		switch marker {
		case markerSIZ:
			if err := hdr.parseSIZ(body); err != nil {
				return nil, err
			}
		case markerCOD:
			if err := hdr.parseCOD(body); err != nil {
				return nil, err
			}
		case markerQCD:
			if len(body) < 1 || body[0]&0x1f != 0 {
				return nil, errors.Wrap(ErrUnsupported, "quantized coefficients")
			}
			hdr.guard = int(body[0] >> 5)
			for _, b := range body[1:] {
				hdr.exps = append(hdr.exps, int(b>>3))
			}
		case markerCOC, markerQCC, markerRGN, markerPOC, markerPPM:
			return nil, errors.Wrapf(ErrUnsupported, "marker %#04x", marker)
		case markerSOT:
			return hdr, hdr.parseTile(cs[pos:])
		}
		pos += 2 + n
	}
}

func (hdr *header) parseSIZ(body []byte) error {
	if len(body) < 36 {
		return errors.Wrap(ErrCorrupt, "short SIZ segment")
	}
	u := func(i int) int { return int(binary.BigEndian.Uint32(body[2+4*i:])) }
	if u(2) != 0 || u(3) != 0 || u(6) != 0 || u(7) != 0 || u(4) < u(0) || u(5) < u(1) {
		return errors.Wrap(ErrUnsupported, "image offsets or multiple tiles")
	}
	hdr.w, hdr.h = u(0), u(1)
	nc := int(binary.BigEndian.Uint16(body[34:]))
	if len(body) < 36+3*nc {
		return errors.Wrap(ErrCorrupt, "short SIZ segment")
	}
	for c := range nc {
		s := body[36+3*c:]
		if s[0]&0x80 != 0 || s[1] != 1 || s[2] != 1 {
			return errors.Wrap(ErrUnsupported, "signed or subsampled component")
		}
		hdr.precs = append(hdr.precs, int(s[0]&0x7f)+1)
	}
	return nil
}

func (hdr *header) parseCOD(body []byte) error {
	if len(body) < 10 {
		return errors.Wrap(ErrCorrupt, "short COD segment")
	}
	layers := binary.BigEndian.Uint16(body[2:])
	switch {
	case body[0] != 0:
		return errors.Wrapf(ErrUnsupported, "coding style %#x", body[0])
	case body[1] != 0 || layers != 1:
		return errors.Wrap(ErrUnsupported, "progression order or quality layers")
	case body[4] != 0:
		return errors.Wrap(ErrUnsupported, "component transform")
	case body[6] != blockExp-2 || body[7] != blockExp-2 || body[8] != 0:
		return errors.Wrap(ErrUnsupported, "code block size or style")
	case body[9] != 1:
		return errors.Wrap(ErrUnsupported, "irreversible wavelet")
	}
	hdr.levels = int(body[5])
	return nil
}

// parseTile reads the SOT segment at the start of data and keeps the
// packet data following SOD.
func (hdr *header) parseTile(data []byte) error {
	if len(data) < 12 {
		return errors.Wrap(ErrCorrupt, "short SOT segment")
	}
	if tile := binary.BigEndian.Uint16(data[4:]); tile != 0 || data[11] > 1 {
		return errors.Wrap(ErrUnsupported, "multiple tiles or tile parts")
	}
	end := int(binary.BigEndian.Uint32(data[6:]))
	if end == 0 {
		end = len(data)
		if end >= 2 && binary.BigEndian.Uint16(data[end-2:]) == markerEOC {
			end -= 2
		}
	}
	if end > len(data) {
		return errors.Wrap(ErrCorrupt, "truncated tile")
	}
	for pos := 12; pos+2 <= end; {
		marker := binary.BigEndian.Uint16(data[pos:])
		if marker == markerSOD {
			hdr.tile = data[pos+2 : end]
			return nil
		}
		if marker != markerCOM {
			return errors.Wrapf(ErrUnsupported, "tile-part marker %#04x", marker)
		}
		if pos+4 > end {
			break
		}
		pos += 2 + int(binary.BigEndian.Uint16(data[pos+2:]))
	}
	return errors.Wrap(ErrCorrupt, "missing SOD marker")
}

// decodeCodestream decodes the pixels of a codestream written by
// encodeCodestream.
func decodeCodestream(cs []byte) (*planes, error) {
	hdr, err := parseCodestream(cs)
	if err != nil {
		return nil, err
	}
	if hdr.w == 0 || hdr.h == 0 || len(hdr.precs) == 0 || hdr.levels < 0 {
		return nil, errors.Wrap(ErrCorrupt, "missing SIZ or COD segment")
	}
	p := &planes{w: hdr.w, h: hdr.h, prec: hdr.precs[0]}
	for _, prec := range hdr.precs {
		if prec != p.prec || prec > 16 {
			return nil, errors.Wrapf(ErrUnsupported, "component precisions %v", hdr.precs)
		}
	}

	comps := make([][][]*subband, len(hdr.precs))
	for c := range comps {
		if comps[c], err = layout(hdr.w, hdr.h, hdr.levels, hdr.guard, hdr.exps); err != nil {
			return nil, err
		}
	}
	pos := 0
	for r := range hdr.levels + 1 {
		for _, res := range comps {
			if pos, err = readPacket(hdr.tile, pos, res[r]); err != nil {
				return nil, err
			}
		}
	}

	maxValue := int32(1)<<p.prec - 1
	for _, res := range comps {
		coef := make([]int32, hdr.w*hdr.h)
		for _, bands := range res {
			for _, b := range bands {
				for _, cb := range b.blocks {
					if cb.k > 0 {
						decodeBlock(cb.data, cb.k, coef, cb.y0*hdr.w+cb.x0, hdr.w, cb.w, cb.h, b.orient)
					}
				}
			}
		}
		inverseDWT(coef, hdr.w, hdr.h, hdr.levels)
		shift := int32(1) << (p.prec - 1)
		for i, v := range coef {
			coef[i] = max(0, min(maxValue, v+shift))
		}
		p.comps = append(p.comps, coef)
	}
	return p, nil
}
