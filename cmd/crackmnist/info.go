package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/table"
	"github.com/jedib0t/go-pretty/text"
	"github.com/spf13/cobra"
)

func newInfoCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show the variants, their availability and sample counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m := a.man
			fmt.Fprintf(a.stdout, "%s: %s\n", m.Name, m.Description)
			fmt.Fprintf(a.stdout, "homepage: %s\n", m.Homepage)
			fmt.Fprintf(a.stdout, "tasks:    %s\n", strings.Join(m.Tasks, ", "))
			fmt.Fprintf(a.stdout, "root:     %s\n\n", a.root)

			vt := table.NewWriter()
			vt.SetOutputMirror(a.stdout)
			vt.AppendHeader(table.Row{"Pixels", "Size", "File", "Available", "MD5", "URL"})
			for _, v := range m.Variants() {
				vt.AppendRow(table.Row{v.Pixels, v.Size, v.Filename, yesNo(v.Available), v.MD5, v.URL})
			}
			md := m.Metadata()
			vt.AppendFooter(table.Row{"", "", md.Filename, "", md.MD5, md.URL})
			// File names and URLs must stay usable as printed.
			vt.Style().Format.Footer = text.FormatDefault
			vt.Render()
			fmt.Fprintln(a.stdout)

			st := table.NewWriter()
			st.SetOutputMirror(a.stdout)
			header := table.Row{"Split"}
			for _, s := range m.Sizes {
				header = append(header, s)
			}
			st.AppendHeader(header)
			for _, split := range m.Splits {
				row := table.Row{split}
				for _, s := range m.Sizes {
					n, _ := m.SampleCount(split, s)
					row = append(row, humanize.Comma(int64(n)))
				}
				st.AppendRow(row)
			}
			st.Render()
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
