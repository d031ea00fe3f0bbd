package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dlr-wf/go-crackmnist/crackmnist/crackmnisttest"
)

func newSynthCommand(a *app) *cobra.Command {
	var (
		pixels     int
		size       string
		train      int
		val        int
		test       int
		compressed bool
		legacy     bool
	)
	cmd := &cobra.Command{
		Use:   "synth <dir>",
		Short: "Write a small synthetic variant for trying the tool offline",
		Long: `Writes a synthetic variant file and experiments_metadata.json to <dir>.
Use it as --root with --download=false, for example:

  crackmnist synth /tmp/cm
  crackmnist sample --root /tmp/cm --download=false --index 3
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.man.ValidPixels(pixels) || !a.man.ValidSize(size) {
				return errors.Errorf("synth: no variant %d_%s", pixels, size)
			}
			fx, err := crackmnisttest.Write(args[0], crackmnisttest.Options{
				Pixels:     pixels,
				Size:       size,
				Samples:    map[string]int{"train": train, "val": val, "test": test},
				Compressed: compressed,
				Legacy:     legacy,
			})
			if err != nil {
				return errors.Wrap(err, "synth")
			}
			fmt.Fprintln(a.stdout, fx.Path)
			fmt.Fprintln(a.stdout, fx.MetadataPath)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntVar(&pixels, "pixels", 28, "resolution")
	flags.StringVar(&size, "size", "S", "size")
	flags.IntVar(&train, "train", 16, "training samples")
	flags.IntVar(&val, "val", 8, "validation samples")
	flags.IntVar(&test, "test", 8, "test samples")
	flags.BoolVar(&compressed, "compressed", true, "chunk and deflate images and masks")
	flags.BoolVar(&legacy, "legacy", false, "write the oldest HDF5 format, as h5py does by default")
	return cmd
}
