package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/concertview/concertview/internal/layouts"
)

func newSuggestCommand() *cobra.Command {
	var (
		count  int
		style  string
		ids    []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "Print a suggested layout for a number of feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if count == 0 && len(ids) > 0 {
				count = len(ids)
			}
			layout, desc, err := layouts.Suggest(count, style, ids)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Layout      interface{} `json:"layout"`
					Description string      `json:"description"`
				}{layout, desc})
			}

			rows := make([][]string, len(layout.Slots))
			for i, s := range layout.Slots {
				rows[i] = []string{
					strconv.Itoa(i),
					s.FeedID,
					coord(s.X),
					coord(s.Y),
					coord(s.Width),
					coord(s.Height),
					strconv.Itoa(s.ZIndex),
				}
			}
			fmt.Fprintln(out, layout.Name)
			fmt.Fprintln(out, renderTable(
				[]string{"Slot", "Feed", "X", "Y", "Width", "Height", "Z"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintln(out, desc)
			return nil
		},
	}

	cmd.Flags().IntVarP(&count, "feeds", "n", 0, "Number of feeds to arrange (1-64)")
	cmd.Flags().StringVarP(&style, "style", "s", layouts.StyleGrid, "Layout style: "+strings.Join(layouts.Styles, ", "))
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "Feed ids to place, in order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the layout as JSON")
	return cmd
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
