package window

// Policy selects how a data window that differs from the display window is
// stored. It is a capability of the target format and output mode.
type Policy int

const (
	// Crop stores the part of the data window inside the display window.
	// Used by scanline formats that can record a partial data window.
	Crop Policy = iota
	// Pad stores exactly the display window, filling pixels without data
	// with zero. Used by tiled output and formats with no data window.
	Pad
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case Crop:
		return "crop"
	case Pad:
		return "pad"
	default:
		return "unknown"
	}
}

// Result is the outcome of reconciling a data window.
type Result struct {
	// Source is the region of upstream pixels to read. It never extends
	// outside the display window and may be empty.
	Source Box
	// Target is the data window reported in the file. Pixels of Target not
	// covered by Source are zero.
	Target Box
}

// Reconcile computes which upstream pixels to write and which data window
// to report, given the display and data windows of an image.
//
// Content outside the display window is never written. An empty data
// window, or one that does not overlap the display window, produces an
// empty Source and a Target equal to the display window, because readers
// commonly reject files with a zero-area data window.
func Reconcile(display, data Box, policy Policy) Result {
	if display.IsEmpty() {
		return Result{}
	}

	source := data.Intersect(display)
	if source.IsEmpty() {
		return Result{Target: display}
	}

	if policy == Pad {
		return Result{Source: source, Target: display}
	}
	return Result{Source: source, Target: source}
}
