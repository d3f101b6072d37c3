package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gkocov/gaffer/codec"
	"github.com/gkocov/gaffer/codec/all"
	"github.com/gkocov/gaffer/options"
)

func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Write the input image to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, sc, err := nodeFromFlags(cmd)
			if err != nil {
				return err
			}
			req := n.Request(sc)
			if err := n.Execute(cmd.Context(), req); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", req.Fingerprint(), req.Path)
			return nil
		},
	}
	addNodeFlags(cmd)
	return cmd
}

func newHashCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the fingerprint of the write without performing it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, sc, err := nodeFromFlags(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n.Hash(sc))
			return nil
		},
	}
	addNodeFlags(cmd)
	return cmd
}

func newOptionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "options [format...]",
		Short: "List format options and their defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := options.New()
			formats := args
			if len(formats) == 0 {
				formats = reg.Formats()
			}
			for _, format := range formats {
				opts := reg.Options(format)
				if opts == nil {
					return fmt.Errorf("%w: unknown format %q", options.ErrInvalidOption, format)
				}
				for _, o := range opts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s.%s = %s  %s\n", format, o.Name, o.Default, o.Domain)
				}
			}
			return nil
		},
	}
}

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>...",
		Short: "Decode files and print their windows, channels and metadata",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := all.Default()
			out := cmd.OutOrStdout()
			for _, path := range args {
				img, md, err := reg.Decode(path)
				if err != nil {
					return err
				}
				enc, _ := reg.Lookup(path)
				fmt.Fprintf(out, "%s: %s\n", path, formatName(enc))
				fmt.Fprintf(out, "  display window: %v\n", img.Display)
				fmt.Fprintf(out, "  data window:    %v\n", img.Data)
				fmt.Fprintf(out, "  pixel aspect:   %g\n", img.Aspect())
				fmt.Fprintf(out, "  channels:       %v\n", img.ChannelNames())
				for _, k := range md.Keys() {
					fmt.Fprintf(out, "  %s: %s\n", k, md[k])
				}
			}
			return nil
		},
	}
}

func formatName(enc codec.Encoder) string {
	if enc == nil {
		return "unknown"
	}
	return enc.Format()
}
