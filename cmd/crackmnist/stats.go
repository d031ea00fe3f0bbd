package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dlr-wf/go-crackmnist/crackmnist"
	"github.com/dlr-wf/go-crackmnist/transforms"
)

const statsBatch = 256

func newStatsCommand(a *app) *cobra.Command {
	var (
		d     datasetFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the per-channel mean and standard deviation of the images",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.open(cmd, &d)
			if err != nil {
				return err
			}
			defer ds.Close()

			n := ds.Len()
			if limit > 0 && limit < n {
				n = limit
			}
			if n == 0 {
				return errors.New("stats: split has no samples")
			}
			var acc transforms.Accumulator
			for lo := 0; lo < n; lo += statsBatch {
				b, err := ds.GetBatch(crackmnist.Range(lo, min(lo+statsBatch, n)))
				if err != nil {
					return errors.Wrap(err, "stats")
				}
				if err := acc.Add(b.Images...); err != nil {
					return errors.Wrap(err, "stats")
				}
			}
			mean, std := acc.MeanStd()

			fmt.Fprintf(a.stdout, "%s split, %s of %s samples\n", d.split, humanize.Comma(int64(n)), humanize.Comma(int64(ds.Len())))
			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.AppendHeader(table.Row{"Channel", "Mean", "Std"})
			names := []string{"u_x", "u_y"}
			for c := range mean {
				name := fmt.Sprint(c)
				if c < len(names) {
					name = names[c]
				}
				t.AppendRow(table.Row{name, fmt.Sprintf("%.6g", mean[c]), fmt.Sprintf("%.6g", std[c])})
			}
			t.Render()
			return nil
		},
	}
	d.register(cmd.Flags())
	cmd.Flags().IntVar(&limit, "limit", 0, "use at most this many samples, 0 for all")
	return cmd
}
