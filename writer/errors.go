package writer

import (
	"errors"
	"fmt"

	"github.com/gkocov/gaffer/codec"
)

// Error kinds reported by Execute.
var (
	ErrNoFormatWriter  = codec.ErrNoFormatWriter
	ErrWriteOpenFailed = errors.New("writer: could not open file")
	ErrEncoder         = errors.New("writer: encoder failed")
)

// Error describes a failed write. errors.Is matches both Kind and the
// underlying cause.
type Error struct {
	Kind   error
	Path   string
	Format string
	Err    error
}

func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case ErrNoFormatWriter:
		msg = fmt.Sprintf("no writer for %q (extension %q)", e.Path, e.Format)
	case ErrWriteOpenFailed:
		msg = fmt.Sprintf("could not open %q for writing as %s", e.Path, e.Format)
	default:
		msg = fmt.Sprintf("could not write %q as %s", e.Path, e.Format)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "writer: " + msg
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	for _, err := range []error{e.Kind, e.Err} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
