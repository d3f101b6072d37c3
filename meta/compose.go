package meta

import (
	"strings"
	"time"
)

// Standard metadata keys
const (
	KeySoftware         = "Software"
	KeyHostComputer     = "HostComputer"
	KeyArtist           = "Artist"
	KeyDocumentName     = "DocumentName"
	KeyDateTime         = "DateTime"
	KeyPixelAspectRatio = "PixelAspectRatio"
	KeyImageDescription = "ImageDescription"
	KeyCopyright        = "Copyright"
	KeyBitsPerSample    = "oiio:BitsPerSample"

	KeyIPTCOriginatingProgram = "IPTC:OriginatingProgram"
	KeyIPTCCreator            = "IPTC:Creator"
)

// PrefixIPTC marks keys that belong to the IPTC block.
const PrefixIPTC = "IPTC:"

// PrefixHint marks keys that steer encoders and are never written as
// metadata themselves.
const PrefixHint = "oiio:"

// DateTimeLayout is the EXIF date format used for DateTime.
const DateTimeLayout = "2006:01:02 15:04:05"

// Untitled is the DocumentName used when the owning document was never
// saved.
const Untitled = "untitled"

// Product and Version identify the writing application.
const (
	Product = "Gaffer"
	Version = "1.5.0"
)

// SoftwareString returns the Software value for a product version.
func SoftwareString(version string) string {
	return Product + " " + version
}

// Standard holds the attributes a writer injects into every file.
type Standard struct {
	DocumentName string
	HostName     string
	AuthorName   string
	Software     string
	// Time is stored as DateTime unless zero.
	Time time.Time
}

// Compose returns the metadata to write. Later sources override earlier
// ones: upstream metadata, then the standard attributes, then the format's
// injected metadata. When any resulting key is an IPTC key, the IPTC
// originating program and creator are set to Software and Artist.
//
// Neither input map is modified.
func Compose(upstream, injected Metadata, std Standard) Metadata {
	out := upstream.Clone()

	out[KeySoftware] = String(std.Software)
	out[KeyHostComputer] = String(std.HostName)
	out[KeyArtist] = String(std.AuthorName)
	doc := std.DocumentName
	if doc == "" {
		doc = Untitled
	}
	out[KeyDocumentName] = String(doc)
	if !std.Time.IsZero() {
		out[KeyDateTime] = String(std.Time.Format(DateTimeLayout))
	}

	out.Merge(injected)

	for k := range out {
		if strings.HasPrefix(k, PrefixIPTC) {
			out[KeyIPTCOriginatingProgram] = out[KeySoftware]
			out[KeyIPTCCreator] = out[KeyArtist]
			break
		}
	}
	return out
}

// Hints returns the encoder hint entries of m.
func Hints(m Metadata) Metadata {
	out := Metadata{}
	for k, v := range m {
		if strings.HasPrefix(k, PrefixHint) {
			out[k] = v
		}
	}
	return out
}

// IsHint reports whether key is an encoder hint.
func IsHint(key string) bool {
	return strings.HasPrefix(key, PrefixHint)
}
