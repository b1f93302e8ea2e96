package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newSearchCommand(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find stored chunks by meaning (needs index.enabled)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			if !a.retriever.SearchEnabled() {
				return fmt.Errorf("search index is disabled; set index.enabled and index.database_url")
			}

			matches, err := a.retriever.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "No matches.")
				return nil
			}

			rows := make([][]string, 0, len(matches))
			for _, m := range matches {
				rows = append(rows, []string{
					m.Path,
					strconv.Itoa(m.ChunkIndex),
					strconv.FormatFloat(m.Distance, 'f', 3, 64),
					truncate(m.Text, 70),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Path", "Chunk", "Distance", "Text"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of matches")
	return cmd
}
