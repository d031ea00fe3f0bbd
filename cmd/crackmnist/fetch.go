package main

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/dlr-wf/go-crackmnist/fetch"
	"github.com/dlr-wf/go-crackmnist/registry"
)

func newFetchCommand(a *app) *cobra.Command {
	var (
		pixels      []string
		sizes       []string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download variant files and the experiment metadata",
		Long: `Downloads every requested variant that is not yet present under --root,
together with experiments_metadata.json. Unpublished variants are skipped.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := a.keys(pixels, sizes)
			if err != nil {
				return err
			}
			md := a.man.Metadata()
			reqs := []fetch.Request{{URL: md.URL, Dest: filepath.Join(a.root, md.Filename), MD5: md.MD5}}
			for _, k := range keys {
				v, err := a.man.Variant(k.Pixels, k.Size)
				if err != nil {
					return err
				}
				if !v.Available {
					a.log.Warn("variant not published, skipping", "file", v.Filename)
					continue
				}
				reqs = append(reqs, fetch.Request{URL: v.URL, Dest: filepath.Join(a.root, v.Filename), MD5: v.MD5})
			}

			f, err := a.fetcher()
			if err != nil {
				return err
			}
			if err := fetch.EnsureAll(contextOf(cmd), f, reqs, concurrency); err != nil {
				return errors.Wrap(err, "fetch")
			}

			t := table.NewWriter()
			t.SetOutputMirror(a.stdout)
			t.AppendHeader(table.Row{"File", "Size"})
			for _, r := range reqs {
				fi, err := os.Stat(r.Dest)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{r.Dest, humanize.Bytes(uint64(fi.Size()))})
			}
			t.Render()
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&pixels, "pixels", []string{"28"}, "resolutions to fetch, repeatable")
	flags.StringSliceVar(&sizes, "size", []string{"S"}, "sizes to fetch, repeatable")
	flags.IntVar(&concurrency, "concurrency", 2, "parallel downloads")
	return cmd
}

// keys returns every combination of the given resolutions and sizes.
func (a *app) keys(pixels, sizes []string) ([]registry.Key, error) {
	var keys []registry.Key
	for _, ps := range pixels {
		p, err := strconv.Atoi(ps)
		if err != nil || !a.man.ValidPixels(p) {
			return nil, errors.Errorf("pixels %q is not available, use one of %v", ps, a.man.Pixels)
		}
		for _, s := range sizes {
			if !a.man.ValidSize(s) {
				return nil, errors.Errorf("size %q is not available, use one of %v", s, a.man.Sizes)
			}
			keys = append(keys, registry.Key{Pixels: p, Size: s})
		}
	}
	return keys, nil
}
