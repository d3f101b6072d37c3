// Package xdr provides bounds-checked binary encoding and decoding helpers
// for the image file formats written by this module.
//
// OpenEXR, TIFF (II) and Targa store multi-byte values little-endian; DPX,
// Maya IFF and TIFF (MM) store them big-endian. Readers and buffers carry
// their byte order so format code can share one set of primitives.
package xdr

import (
	"encoding/binary"
	"errors"
	"math"
)

var (
	// ErrShortBuffer is returned when a read cannot complete because there
	// isn't enough data left in the buffer.
	ErrShortBuffer = errors.New("xdr: buffer too short")

	// ErrNegativeSize is returned when a size parameter is negative.
	ErrNegativeSize = errors.New("xdr: negative size")
)

// ByteOrder is implemented by binary.LittleEndian and binary.BigEndian.
type ByteOrder interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// Reader provides binary reading from a byte slice.
// It maintains a read position and checks bounds on all operations.
type Reader struct {
	data  []byte
	pos   int
	order ByteOrder
}

// NewReader creates a little-endian Reader from a byte slice.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, order: binary.LittleEndian}
}

// NewReaderOrder creates a Reader using the given byte order.
func NewReaderOrder(data []byte, order ByteOrder) *Reader {
	return &Reader{data: data, order: order}
}

// Order returns the reader's byte order.
func (r *Reader) Order() ByteOrder {
	return r.order
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	if r.pos >= len(r.data) {
		return 0
	}
	return len(r.data) - r.pos
}

// Pos returns the current read position.
func (r *Reader) Pos() int {
	return r.pos
}

// SetPos sets the read position. Returns an error if the position is out of bounds.
func (r *Reader) SetPos(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return ErrShortBuffer
	}
	r.pos = pos
	return nil
}

// Skip advances the read position by n bytes.
func (r *Reader) Skip(n int) error {
	if n < 0 {
		return ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return ErrShortBuffer
	}
	r.pos += n
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBytes reads n bytes into a new slice.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// Peek returns the next n bytes without copying or advancing.
func (r *Reader) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrNegativeSize
	}
	if r.pos+n > len(r.data) {
		return nil, ErrShortBuffer
	}
	return r.data[r.pos : r.pos+n], nil
}

// ReadUint16 reads an unsigned 16-bit integer.
func (r *Reader) ReadUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return r.order.Uint16(b), nil
}

// ReadUint32 reads an unsigned 32-bit integer.
func (r *Reader) ReadUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return r.order.Uint32(b), nil
}

// ReadInt32 reads a signed 32-bit integer.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadUint32()
	return int32(v), err
}

// ReadUint64 reads an unsigned 64-bit integer.
func (r *Reader) ReadUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return r.order.Uint64(b), nil
}

// ReadFloat32 reads an IEEE 754 single-precision float.
func (r *Reader) ReadFloat32() (float32, error) {
	v, err := r.ReadUint32()
	return math.Float32frombits(v), err
}

// ReadFloat64 reads an IEEE 754 double-precision float.
func (r *Reader) ReadFloat64() (float64, error) {
	v, err := r.ReadUint64()
	return math.Float64frombits(v), err
}

// ReadString reads a null-terminated string.
func (r *Reader) ReadString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", ErrShortBuffer
}

// ReadStringN reads a fixed-size field of n bytes and returns its
// contents up to the first null byte.
func (r *Reader) ReadStringN(n int) (string, error) {
	b, err := r.take(n)
	if err != nil {
		return "", err
	}
	for i, c := range b {
		if c == 0 {
			return string(b[:i]), nil
		}
	}
	return string(b), nil
}

// Buffer accumulates binary data in a growable slice.
type Buffer struct {
	buf   []byte
	order ByteOrder
}

// NewBuffer creates a little-endian Buffer with the given initial capacity.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity), order: binary.LittleEndian}
}

// NewBufferOrder creates a Buffer using the given byte order.
func NewBufferOrder(capacity int, order ByteOrder) *Buffer {
	return &Buffer{buf: make([]byte, 0, capacity), order: order}
}

// Len returns the number of bytes written.
func (w *Buffer) Len() int {
	return len(w.buf)
}

// Bytes returns the written data.
func (w *Buffer) Bytes() []byte {
	return w.buf
}

// WriteByte appends a single byte.
func (w *Buffer) WriteByte(b byte) {
	w.buf = append(w.buf, b)
}

// WriteBytes appends a byte slice.
func (w *Buffer) WriteBytes(b []byte) {
	w.buf = append(w.buf, b...)
}

// WriteZeros appends n zero bytes.
func (w *Buffer) WriteZeros(n int) {
	for ; n > 0; n-- {
		w.buf = append(w.buf, 0)
	}
}

// WriteUint16 appends an unsigned 16-bit integer.
func (w *Buffer) WriteUint16(v uint16) {
	w.buf = w.order.AppendUint16(w.buf, v)
}

// WriteUint32 appends an unsigned 32-bit integer.
func (w *Buffer) WriteUint32(v uint32) {
	w.buf = w.order.AppendUint32(w.buf, v)
}

// WriteInt32 appends a signed 32-bit integer.
func (w *Buffer) WriteInt32(v int32) {
	w.WriteUint32(uint32(v))
}

// WriteUint64 appends an unsigned 64-bit integer.
func (w *Buffer) WriteUint64(v uint64) {
	w.buf = w.order.AppendUint64(w.buf, v)
}

// WriteFloat32 appends an IEEE 754 single-precision float.
func (w *Buffer) WriteFloat32(v float32) {
	w.WriteUint32(math.Float32bits(v))
}

// WriteFloat64 appends an IEEE 754 double-precision float.
func (w *Buffer) WriteFloat64(v float64) {
	w.WriteUint64(math.Float64bits(v))
}

// WriteString appends a null-terminated string.
func (w *Buffer) WriteString(s string) {
	w.buf = append(w.buf, s...)
	w.buf = append(w.buf, 0)
}

// WriteStringN appends s as a fixed-size field of n bytes, truncating or
// null-padding as needed.
func (w *Buffer) WriteStringN(s string, n int) {
	if len(s) > n {
		s = s[:n]
	}
	w.buf = append(w.buf, s...)
	w.WriteZeros(n - len(s))
}

// PutUint32At overwrites a previously written 32-bit value at offset.
func (w *Buffer) PutUint32At(offset int, v uint32) {
	w.order.PutUint32(w.buf[offset:], v)
}

// PutUint64At overwrites a previously written 64-bit value at offset.
func (w *Buffer) PutUint64At(offset int, v uint64) {
	w.order.PutUint64(w.buf[offset:], v)
}
