// Package source defines the upstream images a writer reads from and a few
// implementations: constant colour, in-memory buffers, decoded files and
// wrappers that change metadata, data window or pixel aspect.
package source

import (
	"encoding/binary"
	"iter"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"

	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/window"
)

// Image is a read-only view of an image at one point in time.
type Image interface {
	DisplayWindow() window.Box
	DataWindow() window.Box
	PixelAspect() float64
	ChannelNames() []string
	Metadata() meta.Metadata
	// Pixels yields the samples of channel over win, rows from top to
	// bottom. Pixels outside the data window are zero. The sequence is
	// finite and may be iterated more than once.
	Pixels(channel string, win window.Box) iter.Seq[float32]
	// ContentFingerprint digests everything that affects the written file:
	// windows, channels, pixels and metadata.
	ContentFingerprint() uint64
}

// Collect reads channel over win into a new slice.
func Collect(img Image, channel string, win window.Box) []float32 {
	out := make([]float32, 0, win.Area())
	for v := range img.Pixels(channel, win) {
		out = append(out, v)
	}
	return out
}

type digest struct {
	d   *xxhash.Digest
	buf []byte
}

func newDigest(kind string) *digest {
	h := &digest{d: xxhash.New()}
	h.str(kind)
	return h
}

func (h *digest) flush() {
	h.d.Write(h.buf)
	h.buf = h.buf[:0]
}

func (h *digest) u64(v uint64) {
	h.buf = binary.LittleEndian.AppendUint64(h.buf, v)
	if len(h.buf) >= 4096 {
		h.flush()
	}
}

func (h *digest) f32(v float32) {
	h.buf = binary.LittleEndian.AppendUint32(h.buf, math.Float32bits(v))
	if len(h.buf) >= 4096 {
		h.flush()
	}
}

func (h *digest) str(s string) {
	h.u64(uint64(len(s)))
	h.buf = append(h.buf, s...)
}

func (h *digest) box(b window.Box) {
	for _, v := range []int{b.Min.X, b.Min.Y, b.Max.X, b.Max.Y} {
		h.u64(uint64(v))
	}
}

func (h *digest) metadata(md meta.Metadata) {
	keys := md.Keys()
	h.u64(uint64(len(keys)))
	for _, k := range keys {
		h.str(k)
		h.str(md[k].Kind().String())
		h.str(md[k].String())
	}
}

func (h *digest) sum() uint64 {
	h.flush()
	return h.d.Sum64()
}

// hashImage digests the common description of an image.
func hashImage(h *digest, img Image) {
	h.box(img.DisplayWindow())
	h.box(img.DataWindow())
	h.u64(math.Float64bits(img.PixelAspect()))
	names := img.ChannelNames()
	h.u64(uint64(len(names)))
	for _, n := range names {
		h.str(n)
	}
	h.metadata(img.Metadata())
}

func sortedNames(names []string) []string {
	out := slices.Clone(names)
	slices.Sort(out)
	return out
}
