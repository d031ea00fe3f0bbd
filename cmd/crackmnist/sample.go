package main

import (
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dlr-wf/go-crackmnist/crackmnist"
)

// datasetFlags selects one split of one variant.
type datasetFlags struct {
	split    string
	pixels   int
	size     string
	task     string
	download bool
}

func (d *datasetFlags) register(flags *pflag.FlagSet) {
	flags.StringVar(&d.split, "split", "train", "split: train, val or test")
	flags.IntVar(&d.pixels, "pixels", 28, "resolution: 28, 64, 128 or 256")
	flags.StringVar(&d.size, "size", "S", "size: S, M or L")
	flags.StringVar(&d.task, "task", crackmnist.TaskSegmentation, "task: crack_tip_segmentation or SIF_regression")
	flags.BoolVar(&d.download, "download", true, "download missing files")
}

func (a *app) open(cmd *cobra.Command, d *datasetFlags, opts ...crackmnist.Option) (*crackmnist.Dataset, error) {
	f, err := a.fetcher()
	if err != nil {
		return nil, err
	}
	opts = append([]crackmnist.Option{
		crackmnist.WithRoot(a.root),
		crackmnist.WithPixels(d.pixels),
		crackmnist.WithSize(d.size),
		crackmnist.WithTask(d.task),
		crackmnist.WithManifest(a.man),
		crackmnist.WithFetcher(f),
		crackmnist.WithLogger(a.log),
		crackmnist.WithDownload(d.download),
	}, opts...)
	ds, err := crackmnist.New(contextOf(cmd), d.split, opts...)
	return ds, errors.Wrap(err, "opening dataset")
}

type sampleReport struct {
	Index        int                     `json:"index"`
	Split        string                  `json:"split"`
	Task         string                  `json:"task"`
	Samples      int                     `json:"samples"`
	ImageShape   []int                   `json:"image_shape"`
	TargetShape  []int                   `json:"target_shape"`
	Target       []float32               `json:"target,omitempty"`
	Force        float64                 `json:"force"`
	Augmentation crackmnist.Augmentation `json:"augmentation"`
	Metadata     crackmnist.Record       `json:"metadata"`
}

func newSampleCommand(a *app) *cobra.Command {
	var (
		d     datasetFlags
		index int
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Print one sample's shapes, force, augmentation and metadata as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.open(cmd, &d)
			if err != nil {
				return err
			}
			defer ds.Close()

			s, err := ds.Get(index)
			if err != nil {
				return errors.Wrapf(err, "sample %d", index)
			}
			r := sampleReport{
				Index:       index,
				Split:       ds.Split(),
				Task:        ds.Task(),
				Samples:     ds.Len(),
				ImageShape:  s.Image.Shape,
				TargetShape: s.Target.Shape,
			}
			if d.task == crackmnist.TaskRegression {
				r.Target = s.Target.Data
			}
			if r.Force, err = ds.Force(index); err != nil {
				return err
			}
			if r.Augmentation, err = ds.Augmentation(index); err != nil {
				return err
			}
			if r.Metadata, err = ds.Metadata(index); err != nil {
				return err
			}
			enc := json.NewEncoder(a.stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
	d.register(cmd.Flags())
	cmd.Flags().IntVar(&index, "index", 0, "sample index")
	return cmd
}
