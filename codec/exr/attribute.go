package exr

import (
	"fmt"
	"image"
	"math"

	"github.com/gkocov/gaffer/internal/xdr"
	"github.com/gkocov/gaffer/meta"
)

// AttributeType identifies the type of a header attribute.
type AttributeType string

// Attribute types read and written by this package
const (
	AttrTypeBox2i        AttributeType = "box2i"
	AttrTypeChlist       AttributeType = "chlist"
	AttrTypeCompression  AttributeType = "compression"
	AttrTypeDouble       AttributeType = "double"
	AttrTypeFloat        AttributeType = "float"
	AttrTypeFloatVector  AttributeType = "floatvector"
	AttrTypeInt          AttributeType = "int"
	AttrTypeLineOrder    AttributeType = "lineOrder"
	AttrTypeM33f         AttributeType = "m33f"
	AttrTypeM44f         AttributeType = "m44f"
	AttrTypeString       AttributeType = "string"
	AttrTypeStringVector AttributeType = "stringvector"
	AttrTypeTileDesc     AttributeType = "tiledesc"
	AttrTypeV2f          AttributeType = "v2f"
	AttrTypeV2i          AttributeType = "v2i"
	AttrTypeV3f          AttributeType = "v3f"
	AttrTypeV3i          AttributeType = "v3i"
)

// Attribute is a single header attribute. Value holds raw bytes for types
// this package does not interpret.
type Attribute struct {
	Name  string
	Type  AttributeType
	Value any
}

// Box2i is an inclusive integer box in EXR pixel space.
type Box2i struct {
	MinX, MinY, MaxX, MaxY int32
}

func boxFromRect(r image.Rectangle) Box2i {
	return Box2i{int32(r.Min.X), int32(r.Min.Y), int32(r.Max.X - 1), int32(r.Max.Y - 1)}
}

func (b Box2i) rect() image.Rectangle {
	return image.Rect(int(b.MinX), int(b.MinY), int(b.MaxX)+1, int(b.MaxY)+1)
}

// TileDesc describes the tiling of a tiled part.
type TileDesc struct {
	XSize, YSize uint32
	Mode         uint8
}

func readAttribute(r *xdr.Reader) (*Attribute, error) {
	name, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, nil
	}
	typeName, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	size, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	if size < 0 || int(size) > r.Len() {
		return nil, fmt.Errorf("%w: attribute %q size %d", ErrInvalidHeader, name, size)
	}
	data, _ := r.ReadBytes(int(size))
	v := xdr.NewReader(data)

	attr := &Attribute{Name: name, Type: AttributeType(typeName)}
	switch attr.Type {
	case AttrTypeBox2i:
		var b Box2i
		b.MinX, _ = v.ReadInt32()
		b.MinY, _ = v.ReadInt32()
		b.MaxX, _ = v.ReadInt32()
		b.MaxY, err = v.ReadInt32()
		attr.Value = b
	case AttrTypeChlist:
		attr.Value, err = readChannels(v)
	case AttrTypeCompression, AttrTypeLineOrder:
		attr.Value, err = v.ReadByte()
	case AttrTypeDouble:
		attr.Value, err = v.ReadFloat64()
	case AttrTypeFloat:
		attr.Value, err = v.ReadFloat32()
	case AttrTypeInt:
		attr.Value, err = v.ReadInt32()
	case AttrTypeString:
		attr.Value = string(data)
	case AttrTypeStringVector:
		var ss []string
		for v.Len() > 0 {
			n, e := v.ReadInt32()
			if e != nil {
				err = e
				break
			}
			s, e := v.ReadBytes(int(n))
			if e != nil {
				err = e
				break
			}
			ss = append(ss, string(s))
		}
		attr.Value = ss
	case AttrTypeTileDesc:
		var td TileDesc
		td.XSize, _ = v.ReadUint32()
		td.YSize, _ = v.ReadUint32()
		td.Mode, err = v.ReadByte()
		attr.Value = td
	case AttrTypeV2i, AttrTypeV3i:
		ints := make([]int32, len(data)/4)
		for i := range ints {
			ints[i], err = v.ReadInt32()
		}
		attr.Value = ints
	case AttrTypeFloatVector, AttrTypeV2f, AttrTypeV3f, AttrTypeM33f, AttrTypeM44f:
		fs := make([]float32, len(data)/4)
		for i := range fs {
			fs[i], err = v.ReadFloat32()
		}
		attr.Value = fs
	default:
		attr.Value = data
	}
	if err != nil {
		return nil, fmt.Errorf("%w: attribute %q: %v", ErrInvalidHeader, name, err)
	}
	return attr, nil
}

func writeAttribute(w *xdr.Buffer, attr *Attribute) error {
	v := xdr.NewBuffer(64)
	switch attr.Type {
	case AttrTypeBox2i:
		b := attr.Value.(Box2i)
		v.WriteInt32(b.MinX)
		v.WriteInt32(b.MinY)
		v.WriteInt32(b.MaxX)
		v.WriteInt32(b.MaxY)
	case AttrTypeChlist:
		writeChannels(v, attr.Value.([]channel))
	case AttrTypeCompression, AttrTypeLineOrder:
		v.WriteByte(attr.Value.(byte))
	case AttrTypeDouble:
		v.WriteFloat64(attr.Value.(float64))
	case AttrTypeFloat:
		v.WriteFloat32(attr.Value.(float32))
	case AttrTypeInt:
		v.WriteInt32(attr.Value.(int32))
	case AttrTypeString:
		v.WriteBytes([]byte(attr.Value.(string)))
	case AttrTypeStringVector:
		for _, s := range attr.Value.([]string) {
			v.WriteInt32(int32(len(s)))
			v.WriteBytes([]byte(s))
		}
	case AttrTypeTileDesc:
		td := attr.Value.(TileDesc)
		v.WriteUint32(td.XSize)
		v.WriteUint32(td.YSize)
		v.WriteByte(td.Mode)
	case AttrTypeV2i, AttrTypeV3i:
		for _, i := range attr.Value.([]int32) {
			v.WriteInt32(i)
		}
	case AttrTypeFloatVector, AttrTypeV2f, AttrTypeV3f, AttrTypeM33f, AttrTypeM44f:
		for _, f := range attr.Value.([]float32) {
			v.WriteFloat32(f)
		}
	default:
		raw, ok := attr.Value.([]byte)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAttributeType, attr.Type)
		}
		v.WriteBytes(raw)
	}

	w.WriteString(attr.Name)
	w.WriteString(string(attr.Type))
	w.WriteInt32(int32(v.Len()))
	w.WriteBytes(v.Bytes())
	return nil
}

// Metadata keys stored under a different attribute name.
var attributeNames = map[string]string{
	meta.KeyDateTime:         "capDate",
	meta.KeyImageDescription: "comments",
	meta.KeyCopyright:        "owner",
}

var metadataNames = map[string]string{
	"capDate":  meta.KeyDateTime,
	"comments": meta.KeyImageDescription,
	"owner":    meta.KeyCopyright,
}

// Attributes that describe the file structure and never come from
// metadata.
var reserved = map[string]bool{
	"channels":           true,
	"compression":        true,
	"dataWindow":         true,
	"displayWindow":      true,
	"lineOrder":          true,
	"pixelAspectRatio":   true,
	"screenWindowCenter": true,
	"screenWindowWidth":  true,
	"tiles":              true,
	"type":               true,
	"name":               true,
	"version":            true,
	"chunkCount":         true,
}

// metadataAttribute converts a metadata entry to an attribute. It returns
// false for entries that are not written.
func metadataAttribute(key string, v meta.Value) (*Attribute, bool) {
	if meta.IsHint(key) || key == meta.KeyPixelAspectRatio {
		return nil, false
	}
	name := key
	if n, ok := attributeNames[key]; ok {
		name = n
	}
	if reserved[name] {
		return nil, false
	}

	attr := &Attribute{Name: name}
	switch v.Kind() {
	case meta.KindInt:
		i, _ := v.Int()
		if i < math.MinInt32 || i > math.MaxInt32 {
			attr.Type, attr.Value = AttrTypeDouble, float64(i)
		} else {
			attr.Type, attr.Value = AttrTypeInt, int32(i)
		}
	case meta.KindFloat:
		f, _ := v.Float()
		if float64(float32(f)) == f {
			attr.Type, attr.Value = AttrTypeFloat, float32(f)
		} else {
			attr.Type, attr.Value = AttrTypeDouble, f
		}
	case meta.KindString:
		s, _ := v.Str()
		attr.Type, attr.Value = AttrTypeString, s
	case meta.KindStringArray:
		ss, _ := v.StringArray()
		attr.Type, attr.Value = AttrTypeStringVector, ss
	case meta.KindIntArray:
		is, _ := v.IntArray()
		ints := make([]int32, len(is))
		for i, x := range is {
			ints[i] = int32(x)
		}
		switch len(ints) {
		case 2:
			attr.Type, attr.Value = AttrTypeV2i, ints
		case 3:
			attr.Type, attr.Value = AttrTypeV3i, ints
		default:
			fs := make([]float32, len(is))
			for i, x := range is {
				fs[i] = float32(x)
			}
			attr.Type, attr.Value = AttrTypeFloatVector, fs
		}
	case meta.KindFloatArray:
		fa, _ := v.FloatArray()
		fs := make([]float32, len(fa))
		for i, x := range fa {
			fs[i] = float32(x)
		}
		attr.Type, attr.Value = AttrTypeFloatVector, fs
	default:
		return nil, false
	}
	return attr, true
}

// attributeMetadata converts a non-structural attribute to a metadata
// entry.
func attributeMetadata(attr *Attribute) (string, meta.Value, bool) {
	key := attr.Name
	if k, ok := metadataNames[key]; ok {
		key = k
	}
	switch v := attr.Value.(type) {
	case int32:
		return key, meta.Int(int64(v)), true
	case float32:
		return key, meta.Float(float64(v)), true
	case float64:
		return key, meta.Float(v), true
	case string:
		return key, meta.String(v), true
	case []string:
		return key, meta.Strings(v...), true
	case []int32:
		is := make([]int64, len(v))
		for i, x := range v {
			is[i] = int64(x)
		}
		return key, meta.Ints(is...), true
	case []float32:
		fs := make([]float64, len(v))
		for i, x := range v {
			fs[i] = float64(x)
		}
		return key, meta.Floats(fs...), true
	case Box2i:
		return key, meta.Ints(int64(v.MinX), int64(v.MinY), int64(v.MaxX), int64(v.MaxY)), true
	}
	return "", meta.Value{}, false
}
