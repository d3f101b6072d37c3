package codec

import (
	"bufio"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/gkocov/gaffer/meta"
)

// Registry maps file extensions to encoders and decoders.
type Registry struct {
	mu       sync.RWMutex
	encoders map[string]Encoder
	decoders map[string]Decoder
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		encoders: make(map[string]Encoder),
		decoders: make(map[string]Decoder),
	}
}

// Register adds enc for every extension it declares. If enc also implements
// Decoder it is registered for reading too.
func (r *Registry) Register(enc Encoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dec, _ := enc.(Decoder)
	for _, ext := range enc.Extensions() {
		r.encoders[ext] = enc
		if dec != nil {
			r.decoders[ext] = dec
		}
	}
}

// Lookup returns the encoder for the extension of path.
func (r *Registry) Lookup(path string) (Encoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	enc, ok := r.encoders[Ext(path)]
	return enc, ok
}

// Extensions returns the registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	exts := make([]string, 0, len(r.encoders))
	for ext := range r.encoders {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Decode reads the file at path with the decoder for its extension.
func (r *Registry) Decode(path string) (*Image, meta.Metadata, error) {
	r.mu.RLock()
	dec, ok := r.decoders[Ext(path)]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNoFormatReader, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	img, md, err := dec.Decode(bufio.NewReader(f))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, md, nil
}
