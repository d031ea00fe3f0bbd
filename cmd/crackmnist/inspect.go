package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dlr-wf/go-crackmnist/hdf5"
)

func newInspectCommand(a *app) *cobra.Command {
	var mmap bool
	cmd := &cobra.Command{
		Use:   "inspect <file.h5>",
		Short: "List the datasets of an HDF5 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := hdf5.Open(args[0], hdf5.WithMmap(mmap), hdf5.WithLogger(a.log))
			if err != nil {
				return errors.Wrap(err, "inspect")
			}
			defer f.Close()

			fmt.Fprintf(a.stdout, "%s (superblock v%d)\n", args[0], f.Version())
			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.AppendHeader(table.Row{"Path", "Type", "Shape", "Datatype", "Bytes"})
			var total uint64
			err = hdf5.Walk(f, func(path string, obj any, err error) error {
				if err != nil {
					t.AppendRow(table.Row{path, "error", err.Error(), "", ""})
					return nil
				}
				switch o := obj.(type) {
				case *hdf5.Group:
					t.AppendRow(table.Row{path, "group", "", "", ""})
				case *hdf5.Dataset:
					dt := o.Datatype()
					n := uint64(dt.Size)
					for _, d := range o.Shape() {
						n *= d
					}
					total += n
					t.AppendRow(table.Row{path, "dataset", fmt.Sprint(o.Shape()), dt.String, humanize.Bytes(n)})
				}
				return nil
			})
			if err != nil {
				return errors.Wrap(err, "walking "+args[0])
			}
			t.AppendFooter(table.Row{"", "", "", "total", humanize.Bytes(total)})
			t.Style().Format.Footer = text.FormatDefault
			t.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&mmap, "mmap", true, "memory-map the file")
	return cmd
}
