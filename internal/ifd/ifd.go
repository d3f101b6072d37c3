// Package ifd reads and writes TIFF image file directories, the tag
// container shared by TIFF files and EXIF blocks.
package ifd

import (
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gkocov/gaffer/internal/xdr"
)

// Errors
var (
	ErrBadHeader    = errors.New("ifd: invalid TIFF header")
	ErrBadDirectory = errors.New("ifd: invalid directory")
)

// Type is the TIFF field type.
type Type uint16

// Field types
const (
	Byte      Type = 1
	ASCII     Type = 2
	Short     Type = 3
	Long      Type = 4
	Rational  Type = 5
	Undefined Type = 7
	Float     Type = 11
)

func (t Type) size() int {
	switch t {
	case Short:
		return 2
	case Long, Float:
		return 4
	case Rational:
		return 8
	default:
		return 1
	}
}

// Tags used by the encoders
const (
	TagNewSubfileType   = 254
	TagImageWidth       = 256
	TagImageLength      = 257
	TagBitsPerSample    = 258
	TagCompression      = 259
	TagPhotometric      = 262
	TagDocumentName     = 269
	TagImageDescription = 270
	TagStripOffsets     = 273
	TagOrientation      = 274
	TagSamplesPerPixel  = 277
	TagRowsPerStrip     = 278
	TagStripByteCounts  = 279
	TagXResolution      = 282
	TagYResolution      = 283
	TagPlanarConfig     = 284
	TagResolutionUnit   = 296
	TagSoftware         = 305
	TagDateTime         = 306
	TagArtist           = 315
	TagHostComputer     = 316
	TagPredictor        = 317
	TagTileWidth        = 322
	TagTileLength       = 323
	TagTileOffsets      = 324
	TagTileByteCounts   = 325
	TagExtraSamples     = 338
	TagSampleFormat     = 339
	TagCopyright        = 33432
)

// Field is one directory entry. Data holds the encoded values in the byte
// order of the directory.
type Field struct {
	Tag   uint16
	Type  Type
	Count uint32
	Data  []byte
}

// Directory is an ordered set of fields.
type Directory struct {
	order  xdr.ByteOrder
	fields []Field
}

// New returns an empty directory using the given byte order.
func New(order xdr.ByteOrder) *Directory {
	return &Directory{order: order}
}

// Order returns the byte order of the directory.
func (d *Directory) Order() xdr.ByteOrder { return d.order }

func (d *Directory) put(f Field) {
	i, found := slices.BinarySearchFunc(d.fields, f.Tag, func(e Field, tag uint16) int {
		return int(e.Tag) - int(tag)
	})
	if found {
		d.fields[i] = f
		return
	}
	d.fields = slices.Insert(d.fields, i, f)
}

// SetShort sets a SHORT field.
func (d *Directory) SetShort(tag uint16, vals ...uint16) {
	var b []byte
	for _, v := range vals {
		b = d.order.AppendUint16(b, v)
	}
	d.put(Field{Tag: tag, Type: Short, Count: uint32(len(vals)), Data: b})
}

// SetLong sets a LONG field.
func (d *Directory) SetLong(tag uint16, vals ...uint32) {
	var b []byte
	for _, v := range vals {
		b = d.order.AppendUint32(b, v)
	}
	d.put(Field{Tag: tag, Type: Long, Count: uint32(len(vals)), Data: b})
}

// SetFloat sets a FLOAT field.
func (d *Directory) SetFloat(tag uint16, vals ...float32) {
	buf := xdr.NewBufferOrder(4*len(vals), d.order)
	for _, v := range vals {
		buf.WriteFloat32(v)
	}
	d.put(Field{Tag: tag, Type: Float, Count: uint32(len(vals)), Data: buf.Bytes()})
}

// SetRational sets a single RATIONAL field.
func (d *Directory) SetRational(tag uint16, num, den uint32) {
	b := d.order.AppendUint32(nil, num)
	b = d.order.AppendUint32(b, den)
	d.put(Field{Tag: tag, Type: Rational, Count: 1, Data: b})
}

// SetASCII sets a null-terminated ASCII field.
func (d *Directory) SetASCII(tag uint16, s string) {
	b := append([]byte(s), 0)
	d.put(Field{Tag: tag, Type: ASCII, Count: uint32(len(b)), Data: b})
}

// Field returns the field with the given tag.
func (d *Directory) Field(tag uint16) (Field, bool) {
	i, found := slices.BinarySearchFunc(d.fields, tag, func(e Field, tag uint16) int {
		return int(e.Tag) - int(tag)
	})
	if !found {
		return Field{}, false
	}
	return d.fields[i], true
}

// Fields returns the fields sorted by tag.
func (d *Directory) Fields() []Field { return slices.Clone(d.fields) }

// Uints returns the values of a BYTE, SHORT or LONG field.
func (d *Directory) Uints(tag uint16) ([]uint32, bool) {
	f, ok := d.Field(tag)
	if !ok {
		return nil, false
	}
	out := make([]uint32, 0, f.Count)
	for i := range int(f.Count) {
		switch f.Type {
		case Byte, Undefined:
			out = append(out, uint32(f.Data[i]))
		case Short:
			out = append(out, uint32(d.order.Uint16(f.Data[2*i:])))
		case Long:
			out = append(out, d.order.Uint32(f.Data[4*i:]))
		default:
			return nil, false
		}
	}
	return out, true
}

// Uint returns the first value of an integer field, or def when absent.
func (d *Directory) Uint(tag uint16, def uint32) uint32 {
	v, ok := d.Uints(tag)
	if !ok || len(v) == 0 {
		return def
	}
	return v[0]
}

// Float returns the first value of a FLOAT or RATIONAL field.
func (d *Directory) Float(tag uint16) (float64, bool) {
	f, ok := d.Field(tag)
	if !ok || f.Count == 0 {
		return 0, false
	}
	r := xdr.NewReaderOrder(f.Data, d.order)
	switch f.Type {
	case Float:
		v, err := r.ReadFloat32()
		return float64(v), err == nil
	case Rational:
		num, _ := r.ReadUint32()
		den, err := r.ReadUint32()
		if err != nil || den == 0 {
			return 0, false
		}
		return float64(num) / float64(den), true
	}
	return 0, false
}

// String returns the value of an ASCII field without the terminator.
func (d *Directory) String(tag uint16) (string, bool) {
	f, ok := d.Field(tag)
	if !ok || f.Type != ASCII {
		return "", false
	}
	s, _, _ := strings.Cut(string(f.Data), "\x00")
	return s, true
}

// Size returns the encoded size of the directory including out-of-line
// values.
func (d *Directory) Size() int {
	n := 2 + 12*len(d.fields) + 4
	for _, f := range d.fields {
		if len(f.Data) > 4 {
			n += len(f.Data) + len(f.Data)&1
		}
	}
	return n
}

// Encode returns the directory encoded for placement at file offset
// offset, followed by its out-of-line values. next is the offset of the
// following directory, or 0.
func (d *Directory) Encode(offset, next uint32) []byte {
	buf := xdr.NewBufferOrder(d.Size(), d.order)
	extra := offset + uint32(2+12*len(d.fields)+4)
	var values []byte

	buf.WriteUint16(uint16(len(d.fields)))
	for _, f := range d.fields {
		buf.WriteUint16(f.Tag)
		buf.WriteUint16(uint16(f.Type))
		buf.WriteUint32(f.Count)
		if len(f.Data) <= 4 {
			buf.WriteBytes(f.Data)
			buf.WriteZeros(4 - len(f.Data))
			continue
		}
		buf.WriteUint32(extra + uint32(len(values)))
		values = append(values, f.Data...)
		if len(f.Data)&1 == 1 {
			values = append(values, 0)
		}
	}
	buf.WriteUint32(next)
	buf.WriteBytes(values)
	return buf.Bytes()
}

// Read decodes the directory at offset within a TIFF stream and returns it
// with the offset of the next directory.
func Read(data []byte, order xdr.ByteOrder, offset uint32) (*Directory, uint32, error) {
	r := xdr.NewReaderOrder(data, order)
	if err := r.SetPos(int(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: offset %d out of range", ErrBadDirectory, offset)
	}
	n, err := r.ReadUint16()
	if err != nil {
		return nil, 0, ErrBadDirectory
	}

	d := New(order)
	for range int(n) {
		tag, _ := r.ReadUint16()
		typ, _ := r.ReadUint16()
		count, _ := r.ReadUint32()
		raw, err := r.ReadBytes(4)
		if err != nil {
			return nil, 0, ErrBadDirectory
		}
		size := int(count) * Type(typ).size()
		if size < 0 || size > len(data) {
			return nil, 0, fmt.Errorf("%w: tag %d too large", ErrBadDirectory, tag)
		}
		f := Field{Tag: tag, Type: Type(typ), Count: count}
		if size <= 4 {
			f.Data = slices.Clone(raw[:size])
		} else {
			off := int(order.Uint32(raw))
			if off < 0 || off+size > len(data) {
				return nil, 0, fmt.Errorf("%w: tag %d value out of range", ErrBadDirectory, tag)
			}
			f.Data = slices.Clone(data[off : off+size])
		}
		d.put(f)
	}
	next, err := r.ReadUint32()
	if err != nil {
		return nil, 0, ErrBadDirectory
	}
	return d, next, nil
}

// Header returns the 8-byte TIFF header pointing at the first directory.
func Header(order xdr.ByteOrder, first uint32) []byte {
	var b []byte
	if order == xdr.ByteOrder(binary.BigEndian) {
		b = []byte("MM")
	} else {
		b = []byte("II")
	}
	b = order.AppendUint16(b, 42)
	return order.AppendUint32(b, first)
}

// ParseHeader decodes a TIFF header.
func ParseHeader(data []byte) (xdr.ByteOrder, uint32, error) {
	if len(data) < 8 {
		return nil, 0, ErrBadHeader
	}
	var order xdr.ByteOrder
	switch string(data[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return nil, 0, ErrBadHeader
	}
	if order.Uint16(data[2:]) != 42 {
		return nil, 0, ErrBadHeader
	}
	return order, order.Uint32(data[4:]), nil
}
