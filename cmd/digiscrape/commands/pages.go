package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pagesCmd)
}

var pagesCmd = &cobra.Command{
	Use:   "pages <url>",
	Short: "Resolves the session of a book and prints its page count.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())

		v, s, err := openVolume(cmd.Context(), e, args[0], nil)
		if err != nil {
			return err
		}
		count, err := s.PageCount(cmd.Context())
		if err != nil {
			return err
		}
		resolved, err := v.Session(cmd.Context())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Entry", "Viewer", "Pages"})
		t.AppendRow(table.Row{v.Url().String(), resolved.URL().String(), count})
		t.Render()
		return nil
	},
}
