// Package options holds the per-format settings of an image writer: each
// output format declares named options with a default, a domain of valid
// values and the metadata each value injects into the written file.
package options

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/gkocov/gaffer/meta"
)

// ErrInvalidOption is returned when setting an unknown option or a value
// outside the option's domain.
var ErrInvalidOption = errors.New("options: invalid option")

// Domain describes the values an option accepts.
type Domain struct {
	// Enum lists the accepted values. Empty means Range applies.
	Enum []meta.Value
	// Min and Max bound integer options when Enum is empty.
	Min, Max int64
}

// Contains reports whether v is in the domain.
func (d Domain) Contains(v meta.Value) bool {
	if len(d.Enum) > 0 {
		return slices.ContainsFunc(d.Enum, v.Equal)
	}
	i, ok := v.Int()
	return ok && i >= d.Min && i <= d.Max
}

// String describes the domain.
func (d Domain) String() string {
	if len(d.Enum) > 0 {
		return fmt.Sprint(d.Enum)
	}
	return fmt.Sprintf("%d..%d", d.Min, d.Max)
}

// Option declares a single format option.
type Option struct {
	Name    string
	Default meta.Value
	Domain  Domain
	// Inject maps a value, formatted with meta.Value.String, to the
	// metadata it adds to written files.
	Inject map[string]meta.Metadata
}

// Option names shared by several formats.
const (
	Mode               = "mode"
	Compression        = "compression"
	CompressionLevel   = "compressionLevel"
	CompressionQuality = "compressionQuality"
	DataType           = "dataType"
)

// Output modes
const (
	Scanline int64 = 0
	Tiled    int64 = 1
)

// ModeTargets lists the formats whose mode option follows the writer's
// mode alias.
var ModeTargets = []string{"openexr", "tiff", "field3d", "iff"}

// Registry holds the current option values of every format. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	decls  map[string][]Option
	values map[string]map[string]meta.Value
}

// New returns a registry initialised with the default option table.
func New() *Registry {
	return NewWith(DefaultTable())
}

// NewWith returns a registry for the given declarations, every option at its
// default.
func NewWith(table map[string][]Option) *Registry {
	r := &Registry{
		decls:  make(map[string][]Option, len(table)),
		values: make(map[string]map[string]meta.Value, len(table)),
	}
	for format, opts := range table {
		r.decls[format] = slices.Clone(opts)
		vals := make(map[string]meta.Value, len(opts))
		for _, o := range opts {
			vals[o.Name] = o.Default
		}
		r.values[format] = vals
	}
	return r
}

func (r *Registry) lookup(format, name string) (Option, bool) {
	for _, o := range r.decls[format] {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Get returns the current value of an option.
func (r *Registry) Get(format, name string) (meta.Value, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.values[format][name]
	if !ok {
		return meta.Value{}, fmt.Errorf("%w: unknown option %s.%s", ErrInvalidOption, format, name)
	}
	return v, nil
}

// Set changes the value of an option.
func (r *Registry) Set(format, name string, v meta.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.set(format, name, v)
}

func (r *Registry) set(format, name string, v meta.Value) error {
	o, ok := r.lookup(format, name)
	if !ok {
		return fmt.Errorf("%w: unknown option %s.%s", ErrInvalidOption, format, name)
	}
	if !o.Domain.Contains(v) {
		return fmt.Errorf("%w: %s.%s does not accept %#v (domain %s)", ErrInvalidOption, format, name, v, o.Domain)
	}
	r.values[format][name] = v
	return nil
}

// Reset restores every option to its default.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for format, opts := range r.decls {
		for _, o := range opts {
			r.values[format][o.Name] = o.Default
		}
	}
}

// SetModeAlias sets the mode of every format in ModeTargets. Either all
// targets change or none do.
func (r *Registry) SetModeAlias(v meta.Value) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, format := range ModeTargets {
		o, ok := r.lookup(format, Mode)
		if !ok {
			return fmt.Errorf("%w: %s has no %s option", ErrInvalidOption, format, Mode)
		}
		if !o.Domain.Contains(v) {
			return fmt.Errorf("%w: %s.%s does not accept %#v", ErrInvalidOption, format, Mode, v)
		}
	}
	for _, format := range ModeTargets {
		r.values[format][Mode] = v
	}
	return nil
}

// Values returns a copy of the current values of a format, or nil for an
// unknown format.
func (r *Registry) Values(format string) map[string]meta.Value {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vals, ok := r.values[format]
	if !ok {
		return nil
	}
	return maps.Clone(vals)
}

// Injected returns the metadata injected by the current values of a format.
func (r *Registry) Injected(format string) meta.Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := meta.Metadata{}
	for _, o := range r.decls[format] {
		if md, ok := o.Inject[r.values[format][o.Name].String()]; ok {
			out.Merge(md)
		}
	}
	return out
}

// Formats returns the declared formats in sorted order.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.decls))
}

// Options returns the option declarations of a format.
func (r *Registry) Options(format string) []Option {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.decls[format])
}
