// Package writer implements the image writer node: it resolves what a write
// depends on, fingerprints it for caching and performs the write through
// the encoder registered for the file extension.
package writer

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/fingerprint"
	"github.com/gkocov/gaffer/meta"
	"github.com/gkocov/gaffer/options"
	"github.com/gkocov/gaffer/source"
	"github.com/gkocov/gaffer/subst"
	"github.com/gkocov/gaffer/window"
)

// AllChannels is the default channel pattern.
const AllChannels = "*"

// Node holds the state of one image writer.
type Node struct {
	// FileName may contain frame and variable references, see subst.
	FileName string
	// Channels holds space separated glob patterns selecting upstream
	// channels.
	Channels []string
	Options  *options.Registry
	// Document is the path of the saved document owning the node, or ""
	// when it was never saved.
	Document    string
	In          source.Image
	Encoders    *codec.Registry
	Environment Environment
	Logger      *slog.Logger
}

// New returns a node writing with encoders, all channels selected and
// default options.
func New(encoders *codec.Registry) *Node {
	return &Node{
		Channels:    []string{AllChannels},
		Options:     options.New(),
		Encoders:    encoders,
		Environment: DefaultEnvironment(),
	}
}

func (n *Node) logger() *slog.Logger {
	if n.Logger == nil {
		return slog.Default()
	}
	return n.Logger
}

// SetWriteMode sets the mode option of every format that has one.
func (n *Node) SetWriteMode(mode int64) error {
	return n.Options.SetModeAlias(meta.Int(mode))
}

// Request is the effective input of one write.
type Request struct {
	Path     string
	Channels []string
	// Format is the option set name selected by the extension of Path, or
	// "" when the extension names no known format. A registered encoder
	// decides it; otherwise options.FormatForExtension does.
	Format   string
	Options  map[string]meta.Value
	Injected meta.Metadata
	Document string
	In       source.Image
}

// Request resolves the node state in the context sc.
func (n *Node) Request(sc subst.Context) Request {
	req := Request{
		Path:     subst.Substitute(n.FileName, sc),
		Document: n.Document,
		In:       n.In,
	}
	if n.Encoders != nil {
		if enc, ok := n.Encoders.Lookup(req.Path); ok {
			req.Format = enc.Format()
		}
	}
	if req.Format == "" {
		req.Format, _ = options.FormatForExtension(codec.Ext(req.Path))
	}
	if req.Format != "" && n.Options != nil {
		req.Options = n.Options.Values(req.Format)
		req.Injected = n.Options.Injected(req.Format)
	}
	if n.In != nil {
		req.Channels = MatchChannels(n.In.ChannelNames(), n.Channels)
	}
	return req
}

// Hash fingerprints the write the node would perform in sc.
func (n *Node) Hash(sc subst.Context) fingerprint.Fingerprint {
	return n.Request(sc).Fingerprint()
}

// Fingerprint digests everything the written file depends on.
func (r Request) Fingerprint() fingerprint.Fingerprint {
	in := fingerprint.Input{
		Path:      r.Path,
		Channels:  r.Channels,
		Format:    r.Format,
		Options:   r.Options,
		Connected: r.In != nil,
	}
	if r.In != nil {
		in.Upstream = r.In.ContentFingerprint()
	}
	return fingerprint.Compute(in)
}

// MatchChannels returns the names matching any of patterns, in
// codec.SortChannels order. Each pattern string may hold several space
// separated glob patterns.
func MatchChannels(names, patterns []string) []string {
	var globs []string
	for _, p := range patterns {
		globs = append(globs, strings.Fields(p)...)
	}
	var out []string
	for _, name := range names {
		for _, g := range globs {
			if ok, _ := path.Match(g, name); ok {
				out = append(out, name)
				break
			}
		}
	}
	codec.SortChannels(out)
	return slices.Compact(out)
}

// Write resolves the node in sc and executes the write.
func (n *Node) Write(ctx context.Context, sc subst.Context) error {
	return n.Execute(ctx, n.Request(sc))
}

// Execute writes req. Requests without a path or upstream image do
// nothing. Pixels are gathered before the destination is opened, so a
// cancelled context leaves no file behind; a failed encode may leave a
// partial file.
func (n *Node) Execute(ctx context.Context, req Request) error {
	if req.Path == "" || req.In == nil {
		return nil
	}
	var enc codec.Encoder
	if n.Encoders != nil {
		enc, _ = n.Encoders.Lookup(req.Path)
	}
	if enc == nil {
		return &Error{Kind: ErrNoFormatWriter, Path: req.Path, Format: codec.Ext(req.Path)}
	}
	format := enc.Format()
	// Hand-built requests may leave the option set to the node.
	if req.Options == nil && n.Options != nil {
		req.Options = n.Options.Values(format)
		if req.Injected == nil {
			req.Injected = n.Options.Injected(format)
		}
	}

	img, err := n.fileImage(ctx, req, enc.Policy(req.Options))
	if err != nil {
		return err
	}
	md := meta.Compose(req.In.Metadata(), req.Injected, meta.Standard{
		DocumentName: req.Document,
		HostName:     n.Environment.HostName,
		AuthorName:   n.Environment.UserName,
		Software:     meta.SoftwareString(meta.Version),
		Time:         n.Environment.now(),
	})

	if err := os.MkdirAll(filepath.Dir(req.Path), 0o777); err != nil {
		return &Error{Kind: ErrWriteOpenFailed, Path: req.Path, Format: format, Err: err}
	}
	f, err := os.Create(req.Path)
	if err != nil {
		return &Error{Kind: ErrWriteOpenFailed, Path: req.Path, Format: format, Err: err}
	}
	bw := bufio.NewWriter(f)
	err = enc.Encode(bw, img, md, req.Options)
	if err == nil {
		err = bw.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &Error{Kind: ErrEncoder, Path: req.Path, Format: format, Err: err}
	}

	n.logger().Debug("wrote image",
		"path", req.Path,
		"format", format,
		"channels", req.Channels,
		"display", img.Display,
		"data", img.Data)
	return nil
}

// fileImage gathers the selected channels over the reconciled window and
// converts the windows to file space.
func (n *Node) fileImage(ctx context.Context, req Request, policy window.Policy) (*codec.Image, error) {
	in := req.In
	display := in.DisplayWindow()
	if display.IsEmpty() {
		return nil, &Error{Kind: ErrEncoder, Path: req.Path, Format: req.Format,
			Err: fmt.Errorf("%w: empty display window", codec.ErrInvalidImage)}
	}
	target := window.Reconcile(display, in.DataWindow(), policy).Target

	img := &codec.Image{
		Display:     window.ToFile(display, display),
		Data:        window.ToFile(display, target),
		PixelAspect: in.PixelAspect(),
	}
	for _, name := range req.Channels {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("writer: %s: %w", req.Path, err)
		}
		img.Channels = append(img.Channels, codec.Channel{
			Name:   name,
			Pixels: source.Collect(in, name, target),
		})
	}
	return img, nil
}
