package window

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBoxBasics(t *testing.T) {
	b := NewBox(-7, -2, 23, 25)
	assert.Equal(t, 30, b.Width())
	assert.Equal(t, 27, b.Height())
	assert.Equal(t, 810, b.Area())
	assert.False(t, b.IsEmpty())
	assert.True(t, b.Contains(-7, -2))
	assert.False(t, b.Contains(23, 0))

	empty := NewBox(40, 40, 40, 40)
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 0, empty.Area())
	assert.True(t, b.ContainsBox(empty))
}

func TestIntersectUnion(t *testing.T) {
	a := NewBox(0, 0, 10, 10)
	b := NewBox(5, 5, 20, 20)
	assert.Equal(t, NewBox(5, 5, 10, 10), a.Intersect(b))
	assert.Equal(t, NewBox(0, 0, 20, 20), a.Union(b))

	disjoint := NewBox(50, 50, 60, 60)
	assert.Equal(t, Box{}, a.Intersect(disjoint))
	assert.Equal(t, a, Box{}.Union(a))
}

func TestFileSpaceConversion(t *testing.T) {
	display := NewBox(-20, -15, 30, 15)

	// The display window maps onto itself.
	assert.Equal(t, image.Rect(-20, -15, 30, 15), ToFile(display, display))

	// The bottom row in system space is the last row in file space.
	bottom := NewBox(0, -15, 10, -14)
	assert.Equal(t, image.Rect(0, 14, 10, 15), ToFile(display, bottom))

	for _, b := range []Box{bottom, NewBox(-5, 0, 5, 12), NewBox(-20, -15, -19, -14)} {
		assert.Equal(t, b, FromFile(display, ToFile(display, b)), "round trip of %v", b)
	}
	assert.Equal(t, image.Rectangle{}, ToFile(display, Box{}))
}

func TestReconcile(t *testing.T) {
	display := NewBox(0, 0, 100, 100)

	tests := []struct {
		name   string
		data   Box
		policy Policy
		want   Result
	}{
		{
			name:   "inside crop keeps data window",
			data:   NewBox(10, 20, 60, 70),
			policy: Crop,
			want:   Result{Source: NewBox(10, 20, 60, 70), Target: NewBox(10, 20, 60, 70)},
		},
		{
			name:   "inside pad expands to display",
			data:   NewBox(10, 20, 60, 70),
			policy: Pad,
			want:   Result{Source: NewBox(10, 20, 60, 70), Target: display},
		},
		{
			name:   "overscan is cropped",
			data:   NewBox(-50, -50, 150, 80),
			policy: Crop,
			want:   Result{Source: NewBox(0, 0, 100, 80), Target: NewBox(0, 0, 100, 80)},
		},
		{
			name:   "overscan padded",
			data:   NewBox(-50, -50, 150, 80),
			policy: Pad,
			want:   Result{Source: NewBox(0, 0, 100, 80), Target: display},
		},
		{
			name:   "empty data window",
			data:   NewBox(40, 40, 40, 40),
			policy: Crop,
			want:   Result{Target: display},
		},
		{
			name:   "disjoint data window",
			data:   NewBox(200, 200, 300, 300),
			policy: Crop,
			want:   Result{Target: display},
		},
		{
			name:   "equal windows",
			data:   display,
			policy: Crop,
			want:   Result{Source: display, Target: display},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Reconcile(display, tt.data, tt.policy))
		})
	}
}

func TestReconcileEmptyDisplay(t *testing.T) {
	assert.Equal(t, Result{}, Reconcile(Box{}, NewBox(0, 0, 10, 10), Pad))
}
