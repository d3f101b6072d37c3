package options

import "github.com/gkocov/gaffer/meta"

func enum(vals ...string) Domain {
	d := Domain{Enum: make([]meta.Value, len(vals))}
	for i, v := range vals {
		d.Enum[i] = meta.String(v)
	}
	return d
}

var modeDomain = Domain{Enum: []meta.Value{meta.Int(Scanline), meta.Int(Tiled)}}

func modeOption(def int64) Option {
	return Option{Name: Mode, Default: meta.Int(def), Domain: modeDomain}
}

func bits(n int64) meta.Metadata {
	return meta.Metadata{meta.KeyBitsPerSample: meta.Int(n)}
}

// DefaultTable returns the option declarations of every supported output
// format with their factory defaults.
func DefaultTable() map[string][]Option {
	return map[string][]Option{
		"openexr": {
			modeOption(Scanline),
			{Name: Compression, Default: meta.String("zip"), Domain: enum("none", "zip", "zips", "rle", "piz", "pxr24", "b44", "b44a")},
			{Name: DataType, Default: meta.String("half"), Domain: enum("half", "float")},
		},
		"tiff": {
			modeOption(Scanline),
			{Name: Compression, Default: meta.String("zip"), Domain: enum("none", "lzw", "zip", "deflate", "packbits")},
			{
				Name:    DataType,
				Default: meta.String("uint8"),
				Domain:  enum("uint8", "uint16", "float"),
				Inject: map[string]meta.Metadata{
					"uint8":  bits(8),
					"uint16": bits(16),
					"float":  bits(32),
				},
			},
		},
		"field3d": {
			modeOption(Scanline),
			{Name: DataType, Default: meta.String("float"), Domain: enum("half", "float")},
		},
		"fits": {
			{Name: DataType, Default: meta.String("float"), Domain: enum("uint8", "uint16", "uint32", "float", "double")},
		},
		"iff": {
			modeOption(Tiled),
		},
		"jpeg": {
			{Name: CompressionQuality, Default: meta.Int(98), Domain: Domain{Min: 0, Max: 100}},
		},
		"jpeg2000": {
			{
				Name:    DataType,
				Default: meta.String("uint8"),
				Domain:  enum("uint8", "uint16"),
				Inject: map[string]meta.Metadata{
					"uint8":  bits(8),
					"uint16": bits(16),
				},
			},
		},
		"png": {
			{Name: Compression, Default: meta.String("filtered"), Domain: enum("default", "filtered", "huffman", "rle", "fixed")},
			{Name: CompressionLevel, Default: meta.Int(6), Domain: Domain{Min: 0, Max: 9}},
		},
		"rla": {
			{Name: DataType, Default: meta.String("uint8"), Domain: enum("uint8", "uint16", "float")},
		},
		"sgi": {
			{Name: DataType, Default: meta.String("uint8"), Domain: enum("uint8", "uint16")},
		},
		"targa": {
			{Name: Compression, Default: meta.String("rle"), Domain: enum("none", "rle")},
		},
		"webp": {
			{Name: CompressionQuality, Default: meta.Int(100), Domain: Domain{Min: 0, Max: 100}},
		},
		"dpx": {
			{
				Name:    DataType,
				Default: meta.String("uint10"),
				Domain:  enum("uint8", "uint10", "uint12", "uint16"),
				Inject: map[string]meta.Metadata{
					"uint8":  bits(8),
					"uint10": bits(10),
					"uint12": {meta.KeyBitsPerSample: meta.Int(12), "dpx:Packing": meta.String("Packed")},
					"uint16": bits(16),
				},
			},
		},
	}
}

var extensionFormats = map[string]string{
	"bmp":  "bmp",
	"bw":   "sgi",
	"dpx":  "dpx",
	"exr":  "openexr",
	"f3d":  "field3d",
	"fits": "fits",
	"hdr":  "hdr",
	"iff":  "iff",
	"j2c":  "jpeg2000",
	"j2k":  "jpeg2000",
	"jp2":  "jpeg2000",
	"jpe":  "jpeg",
	"jpeg": "jpeg",
	"jpg":  "jpeg",
	"png":  "png",
	"rgb":  "sgi",
	"rgba": "sgi",
	"rgbe": "hdr",
	"rla":  "rla",
	"sgi":  "sgi",
	"tga":  "targa",
	"tif":  "tiff",
	"tiff": "tiff",
	"tpic": "targa",
	"webp": "webp",
}

// FormatForExtension returns the option set name selected by a lowercase
// file extension, without consulting an encoder registry.
func FormatForExtension(ext string) (string, bool) {
	f, ok := extensionFormats[ext]
	return f, ok
}
