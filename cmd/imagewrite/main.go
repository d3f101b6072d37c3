// imagewrite writes images the way the writer node does and inspects the
// results.
//
// Usage:
//
//	imagewrite write [flags] -o <file>
//	imagewrite hash [flags] -o <file>
//	imagewrite options [format]
//	imagewrite info <file> [<file> ...]
//
// The input is either a file (-i) or a constant colour (--color, --size).
// Paths may reference the frame with # runs and variables with $name.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gkocov/gaffer/meta"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imagewrite",
		Short:         "Write and inspect images with the gaffer image writer",
		Version:       meta.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	root.AddCommand(newWriteCmd(), newHashCmd(), newOptionsCmd(), newInfoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("imagewrite failed", "err", err)
		os.Exit(1)
	}
}
