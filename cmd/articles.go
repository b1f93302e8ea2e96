package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/xhad/readaloud/internal/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored articles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			summaries, err := a.retriever.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(out, "No articles stored yet.")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				chunks := "?"
				if record, err := a.retriever.Metadata(s.Path); err == nil {
					chunks = strconv.Itoa(len(record.Chunks))
				}
				rows = append(rows, []string{s.Title, s.Path, chunks})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Title", "Path", "Chunks"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight},
			))
			return nil
		},
	}
}

func newShowCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <title-or-path>",
		Short: "Show an article's chunks and audio files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			record, err := a.retriever.Metadata(args[0])
			if err != nil {
				return err
			}
			printArticle(cmd.OutOrStdout(), record)
			return nil
		},
	}
}

func printArticle(out io.Writer, record *models.Article) {
	color.New(color.FgCyan, color.Bold).Fprintln(out, record.Title)
	fmt.Fprintf(out, "URL:       %s\n", record.URL)
	fmt.Fprintf(out, "Path:      %s\n", record.Path)
	if record.PublishDate != nil {
		if t, ok := parsePublishDate(*record.PublishDate); ok {
			fmt.Fprintf(out, "Published: %s (%s)\n", t.Format("2006-01-02"), humanize.Time(t))
		} else {
			fmt.Fprintf(out, "Published: %s\n", *record.PublishDate)
		}
	}

	var total uint64
	rows := make([][]string, 0, len(record.Chunks))
	for i, c := range record.Chunks {
		size := "missing"
		if info, err := os.Stat(filepath.FromSlash(c.AudioPath)); err == nil {
			size = humanize.Bytes(uint64(info.Size()))
			total += uint64(info.Size())
		}
		rows = append(rows, []string{strconv.Itoa(i), truncate(c.Text, 60), c.AudioPath, size})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"#", "Text", "Audio", "Size"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
	))
	fmt.Fprintf(out, "%d chunks, %s of audio\n", len(record.Chunks), humanize.Bytes(total))
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}

var publishDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parsePublishDate accepts the date shapes found in stored records.
func parsePublishDate(value string) (time.Time, bool) {
	for _, layout := range publishDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
