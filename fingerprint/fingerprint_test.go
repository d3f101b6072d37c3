package fingerprint

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gkocov/gaffer/meta"
)

func baseInput() Input {
	return Input{
		Path:     "/tmp/test.0001.exr",
		Channels: []string{"R", "G", "B", "A"},
		Format:   "openexr",
		Options: map[string]meta.Value{
			"mode":        meta.Int(0),
			"compression": meta.String("zip"),
			"dataType":    meta.String("half"),
		},
		Upstream:  0xfeedface,
		Connected: true,
	}
}

func TestNoOp(t *testing.T) {
	assert.True(t, NoOp.IsNoOp())
	assert.Equal(t, "noop", NoOp.String())

	in := baseInput()
	in.Path = ""
	assert.Equal(t, NoOp, Compute(in))

	in = baseInput()
	in.Connected = false
	assert.Equal(t, NoOp, Compute(in))

	// Connecting an upstream image while the path stays empty keeps NoOp.
	in = Input{Connected: true, Upstream: 1}
	assert.Equal(t, NoOp, Compute(in))

	assert.False(t, Compute(baseInput()).IsNoOp())
}

func TestDeterministic(t *testing.T) {
	assert.Equal(t, Compute(baseInput()), Compute(baseInput()))
	assert.Len(t, Compute(baseInput()).String(), 16)
}

func TestOrderIndependent(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.Channels = []string{"A", "B", "G", "R"}
	assert.Equal(t, Compute(a), Compute(b))

	b.Channels = []string{"A", "B", "G", "R", "R"}
	assert.Equal(t, Compute(a), Compute(b))
}

func TestSensitivity(t *testing.T) {
	base := Compute(baseInput())

	tests := []struct {
		name   string
		modify func(*Input)
	}{
		{"path", func(in *Input) { in.Path = "/tmp/test.0002.exr" }},
		{"channels", func(in *Input) { in.Channels = []string{"R", "B"} }},
		{"format", func(in *Input) { in.Format = "tiff" }},
		{"mode", func(in *Input) { in.Options["mode"] = meta.Int(1) }},
		{"compression", func(in *Input) { in.Options["compression"] = meta.String("rle") }},
		{"option kind", func(in *Input) { in.Options["mode"] = meta.String("0") }},
		{"extra option", func(in *Input) { in.Options["x"] = meta.Int(0) }},
		{"upstream", func(in *Input) { in.Upstream++ }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.modify(&in)
			got := Compute(in)
			assert.NotEqual(t, base, got)
			assert.False(t, got.IsNoOp())
		})
	}
}

func TestFieldBoundaries(t *testing.T) {
	a := baseInput()
	a.Channels = []string{"RG", "B"}
	b := baseInput()
	b.Channels = []string{"R", "GB"}
	assert.NotEqual(t, Compute(a), Compute(b))
}

func TestConcurrent(t *testing.T) {
	want := Compute(baseInput())
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, want, Compute(baseInput()))
		}()
	}
	wg.Wait()
}
