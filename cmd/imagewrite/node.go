package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gkocov/gaffer/codec/all"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/source"
	"github.com/gkocov/gaffer/subst"
	"github.com/gkocov/gaffer/window"
	"github.com/gkocov/gaffer/writer"
)

// addNodeFlags declares the flags shared by write and hash.
func addNodeFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input", "i", "", "Input image file")
	f.String("color", "0,0,0,1", "Constant input colour as r,g,b,a")
	f.String("size", "1920x1080", "Constant input size as WxH")
	f.StringP("output", "o", "", "Output file, may reference # frame runs and $variables")
	f.StringSliceP("channels", "c", []string{writer.AllChannels}, "Channel patterns to write")
	f.StringArray("option", nil, "Format option as format.name=value")
	f.Int64("write-mode", -1, "Set the mode of every format (0 scanline, 1 tiled)")
	f.Float64("frame", 1, "Frame number")
	f.StringArray("var", nil, "Context variable as name=value")
	f.String("document", "", "Saved document path recorded as DocumentName")
	f.StringArray("meta", nil, "Upstream metadata entry as key=value")
	f.String("crop", "", "Crop the input data window to x0,y0,x1,y1")
	f.Float64("aspect", 0, "Override the input pixel aspect ratio")
	_ = cmd.MarkFlagRequired("output")
}

// nodeFromFlags builds a writer node and evaluation context from the flags
// declared by addNodeFlags.
func nodeFromFlags(cmd *cobra.Command) (*writer.Node, subst.Context, error) {
	f := cmd.Flags()
	n := writer.New(all.Default())
	n.FileName, _ = f.GetString("output")
	n.Channels, _ = f.GetStringSlice("channels")
	n.Document, _ = f.GetString("document")

	in, err := inputFromFlags(cmd, n)
	if err != nil {
		return nil, subst.Context{}, err
	}
	n.In = in

	if mode, _ := f.GetInt64("write-mode"); mode >= 0 {
		if err := n.SetWriteMode(mode); err != nil {
			return nil, subst.Context{}, err
		}
	}
	opts, _ := f.GetStringArray("option")
	for _, o := range opts {
		key, value, ok := strings.Cut(o, "=")
		format, name, ok2 := strings.Cut(key, ".")
		if !ok || !ok2 {
			return nil, subst.Context{}, fmt.Errorf("option %q is not format.name=value", o)
		}
		if err := n.Options.Set(format, name, meta.Parse(value)); err != nil {
			return nil, subst.Context{}, err
		}
	}

	sc := subst.Context{}
	sc.Frame, _ = f.GetFloat64("frame")
	vars, _ := f.GetStringArray("var")
	for _, v := range vars {
		name, value, ok := strings.Cut(v, "=")
		if !ok {
			return nil, subst.Context{}, fmt.Errorf("variable %q is not name=value", v)
		}
		sc = sc.With(name, value)
	}
	return n, sc, nil
}

func inputFromFlags(cmd *cobra.Command, n *writer.Node) (source.Image, error) {
	f := cmd.Flags()
	var in source.Image
	if path, _ := f.GetString("input"); path != "" {
		buf, err := source.FromFile(n.Encoders, path)
		if err != nil {
			return nil, err
		}
		in = buf
	} else {
		c, err := constantFromFlags(cmd)
		if err != nil {
			return nil, err
		}
		in = c
	}

	if s, _ := f.GetString("crop"); s != "" {
		v, err := parseInts(s, 4)
		if err != nil {
			return nil, fmt.Errorf("crop: %w", err)
		}
		in = &source.Crop{Image: in, Area: window.NewBox(v[0], v[1], v[2], v[3])}
	}
	if a, _ := f.GetFloat64("aspect"); a > 0 {
		in = &source.Reformat{Image: in, Aspect: a}
	}
	entries, _ := f.GetStringArray("meta")
	if len(entries) > 0 {
		set := meta.Metadata{}
		for _, e := range entries {
			k, v, ok := strings.Cut(e, "=")
			if !ok {
				return nil, fmt.Errorf("metadata %q is not key=value", e)
			}
			set[k] = meta.Parse(v)
		}
		in = &source.WithMetadata{Image: in, Set: set}
	}
	return in, nil
}

func constantFromFlags(cmd *cobra.Command) (*source.Constant, error) {
	colorFlag, _ := cmd.Flags().GetString("color")
	sizeFlag, _ := cmd.Flags().GetString("size")

	parts := strings.Split(colorFlag, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("color %q is not r,g,b,a", colorFlag)
	}
	var rgba [4]float32
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("color: %w", err)
		}
		rgba[i] = float32(v)
	}

	w, h, ok := strings.Cut(sizeFlag, "x")
	if !ok {
		return nil, fmt.Errorf("size %q is not WxH", sizeFlag)
	}
	v, err := parseInts(w+","+h, 2)
	if err != nil {
		return nil, fmt.Errorf("size: %w", err)
	}
	return source.NewConstant(window.NewBox(0, 0, v[0], v[1]), rgba[0], rgba[1], rgba[2], rgba[3]), nil
}

func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("%q needs %d comma separated integers", s, n)
	}
	out := make([]int, n)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
