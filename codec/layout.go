package codec

import (
	"image"
	"math"
)

// Names used by formats that store a fixed channel layout.
const (
	Luminance = "Y"
	Alpha     = "A"
)

// ColorPlanes selects the planes stored by a format with a fixed layout.
// Alpha is the channel named "A". The remaining channels become a single
// gray plane when there is only one of them, otherwise three RGB planes
// where R, G and B are taken by name and empty slots are filled with the
// other channels in storage order. A nil plane reads as zero.
func ColorPlanes(img *Image) (color [][]float32, alpha []float32) {
	var rest []Channel
	for _, c := range img.Channels {
		if c.Name == Alpha {
			alpha = c.Pixels
			continue
		}
		rest = append(rest, c)
	}

	switch len(rest) {
	case 0:
		return nil, alpha
	case 1:
		return [][]float32{rest[0].Pixels}, alpha
	}

	color = make([][]float32, 3)
	used := make([]bool, len(rest))
	for i, name := range []string{"R", "G", "B"} {
		for j, c := range rest {
			if c.Name == name {
				color[i] = c.Pixels
				used[j] = true
			}
		}
	}
	next := 0
	for i := range color {
		if color[i] != nil {
			continue
		}
		for next < len(rest) && (used[next] || isRGB(rest[next].Name)) {
			next++
		}
		if next < len(rest) {
			color[i] = rest[next].Pixels
			used[next] = true
		}
	}
	return color, alpha
}

func isRGB(name string) bool {
	return name == "R" || name == "G" || name == "B"
}

// LayoutNames returns the channel names a fixed-layout reader reports for
// the given number of color planes and alpha.
func LayoutNames(colors int, alpha bool) []string {
	var names []string
	if colors == 1 {
		names = []string{Luminance}
	} else if colors == 3 {
		names = []string{"R", "G", "B"}
	}
	if alpha {
		names = append(names, Alpha)
	}
	return names
}

// Full returns img with its data window expanded to the display window.
// Formats without a data window use it.
func Full(img *Image) *Image {
	if img.Data == img.Display {
		return img
	}
	return img.Expand(img.Display)
}

// Sample returns plane[i], or 0 for a nil plane.
func Sample(plane []float32, i int) float32 {
	if plane == nil {
		return 0
	}
	return plane[i]
}

// Quantize maps v from [0, 1] to an unsigned integer in [0, max], clamping
// and rounding to nearest. NaN maps to 0.
func Quantize(v float32, max uint32) uint32 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return max
	}
	return uint32(math.Round(float64(v) * float64(max)))
}

// Dequantize maps an unsigned integer in [0, max] back to [0, 1].
func Dequantize(q, max uint32) float32 {
	return float32(float64(q) / float64(max))
}

// NewImage returns an image whose display and data windows are both r,
// with zeroed channels of the given names.
func NewImage(r image.Rectangle, names ...string) *Image {
	img := &Image{Display: r, Data: r, PixelAspect: 1}
	for _, n := range names {
		img.Channels = append(img.Channels, Channel{Name: n, Pixels: make([]float32, r.Dx()*r.Dy())})
	}
	return img
}

// Unpremultiply divides a color sample by its alpha for formats that store
// straight alpha. Samples with zero alpha are returned unchanged.
func Unpremultiply(v, a float32) float32 {
	if a <= 0 {
		return v
	}
	return v / a
}
