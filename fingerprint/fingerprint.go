// Package fingerprint computes the cache digest of an image write: two
// writes with the same fingerprint produce the same file.
package fingerprint

import (
	"encoding/binary"
	"math"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/gkocov/gaffer/meta"
)

// Fingerprint identifies the effective inputs of a write. The zero value is
// NoOp.
type Fingerprint struct {
	sum uint64
	set bool
}

// NoOp is the fingerprint of a write that does nothing because it has no
// path or no upstream image.
var NoOp Fingerprint

// IsNoOp reports whether f is the NoOp fingerprint.
func (f Fingerprint) IsNoOp() bool { return !f.set }

// Sum returns the digest. It is 0 for NoOp.
func (f Fingerprint) Sum() uint64 { return f.sum }

// String returns the digest as 16 hex digits, or "noop".
func (f Fingerprint) String() string {
	if !f.set {
		return "noop"
	}
	s := strconv.FormatUint(f.sum, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}

// Input holds the cache relevant fields of a write.
type Input struct {
	// Path is the output path after substitution.
	Path string
	// Channels is the channel selection, in any order.
	Channels []string
	// Format is the options format name of the target encoder.
	Format string
	// Options are the current values of the format's options.
	Options map[string]meta.Value
	// Upstream is the content digest of the upstream image.
	Upstream uint64
	// Connected reports whether an upstream image exists.
	Connected bool
}

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func (h *hasher) uint(v uint64) {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	h.d.Write(h.buf[:])
}

func (h *hasher) str(s string) {
	h.uint(uint64(len(s)))
	h.d.WriteString(s)
}

func (h *hasher) label(s string) {
	h.d.WriteString(s)
	h.d.Write([]byte{0})
}

func (h *hasher) value(v meta.Value) {
	h.uint(uint64(v.Kind()))
	switch v.Kind() {
	case meta.KindInt:
		i, _ := v.Int()
		h.uint(uint64(i))
	case meta.KindFloat:
		f, _ := v.Float()
		h.uint(math.Float64bits(f))
	case meta.KindString:
		s, _ := v.Str()
		h.str(s)
	case meta.KindIntArray:
		a, _ := v.IntArray()
		h.uint(uint64(len(a)))
		for _, i := range a {
			h.uint(uint64(i))
		}
	case meta.KindFloatArray:
		a, _ := v.FloatArray()
		h.uint(uint64(len(a)))
		for _, f := range a {
			h.uint(math.Float64bits(f))
		}
	case meta.KindStringArray:
		a, _ := v.StringArray()
		h.uint(uint64(len(a)))
		for _, s := range a {
			h.str(s)
		}
	}
}

// Compute returns the fingerprint of in. It returns NoOp when the path is
// empty or no upstream image is connected.
func Compute(in Input) Fingerprint {
	if in.Path == "" || !in.Connected {
		return NoOp
	}

	h := hasher{d: xxhash.New()}

	h.label("path")
	h.str(in.Path)

	h.label("channels")
	channels := slices.Clone(in.Channels)
	slices.Sort(channels)
	channels = slices.Compact(channels)
	h.uint(uint64(len(channels)))
	for _, c := range channels {
		h.str(c)
	}

	h.label("format")
	h.str(in.Format)

	h.label("options")
	names := make([]string, 0, len(in.Options))
	for name := range in.Options {
		names = append(names, name)
	}
	slices.Sort(names)
	h.uint(uint64(len(names)))
	for _, name := range names {
		h.str(name)
		h.value(in.Options[name])
	}

	h.label("upstream")
	h.uint(in.Upstream)

	return Fingerprint{sum: h.d.Sum64(), set: true}
}
