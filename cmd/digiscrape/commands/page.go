package commands

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	pageOutput *string
	pageSvg    *string
)

func init() {
	pageOutput = pageCmd.Flags().StringP("output", "o", "page.pdf", "The pdf file to write.")
	pageSvg = pageCmd.Flags().String("svg", "", "Also write the assembled svg to this file.")
	rootCmd.AddCommand(pageCmd)
}

func parsePage(raw string) (uint16, error) {
	n, err := strconv.ParseUint(raw, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid page %q: %w", raw, err)
	}
	return uint16(n), nil
}

var pageCmd = &cobra.Command{
	Use:   "page <url> <page> [-o page.pdf] [--svg page.svg]",
	Short: "Downloads a single page as pdf.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		page, err := parsePage(args[1])
		if err != nil {
			return err
		}

		var observer func(uint16, string)
		var svgErr error
		if *pageSvg != "" {
			observer = func(_ uint16, svg string) {
				svgErr = os.WriteFile(*pageSvg, []byte(svg), 0644)
			}
		}

		_, s, err := openVolume(cmd.Context(), e, args[0], observer)
		if err != nil {
			return err
		}
		pdf, err := s.FetchPage(cmd.Context(), page)
		if svgErr != nil {
			slog.Warn("failed to write svg", "path", *pageSvg, "err", svgErr)
		}
		if err != nil {
			return err
		}

		err = os.WriteFile(*pageOutput, pdf, 0644)
		if err != nil {
			return err
		}
		slog.Info("wrote page", "page", page, "path", *pageOutput, "bytes", len(pdf))
		return nil
	},
}
