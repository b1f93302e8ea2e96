package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/xhad/readaloud/pkg/pipeline"
)

func newConvertCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <url>",
		Short: "Convert one article into audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, opts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			display := newConvertDisplay(cmd.ErrOrStderr())

			conv, err := a.converter(nil)
			if err != nil {
				return err
			}

			color.New(color.FgBlue).Fprintf(out, "\nConverting %s\n", args[0])
			record, err := conv.Convert(ctx, args[0], display.update)
			display.finish()
			if err != nil {
				return err
			}

			color.New(color.FgGreen).Fprintf(out, "\n✓ Stored %q as %s (%d chunks)\n", record.Title, record.Path, len(record.Chunks))
			return nil
		},
	}
}

// convertDisplay renders conversion progress: a spinner while fetching, then
// a bar over the chunks. Off a terminal it prints one line per stage.
type convertDisplay struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	spinner *progressbar.ProgressBar
	bar     *progressbar.ProgressBar
}

func newConvertDisplay(w io.Writer) *convertDisplay {
	d := &convertDisplay{w: w, tty: isTerminal(w)}
	if d.tty {
		d.spinner = getSpinner(w, "Fetching article...")
	}
	return d
}

func (d *convertDisplay) update(p pipeline.Progress) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch p.Stage {
	case pipeline.StageFetched:
		if d.spinner != nil {
			d.spinner.Finish()
			d.spinner = nil
		}
		if !d.tty {
			fmt.Fprintln(d.w, "fetched article")
		}
	case pipeline.StageSegmented:
		if d.tty && p.Total > 0 {
			d.bar = getProgressBar(d.w, p.Total, "Synthesizing audio")
		} else if !d.tty {
			fmt.Fprintf(d.w, "split into %d chunks\n", p.Total)
		}
	case pipeline.StageSynthesized:
		if d.bar != nil {
			d.bar.Set(p.Done)
		} else if !d.tty {
			fmt.Fprintf(d.w, "synthesized %d/%d\n", p.Done, p.Total)
		}
	case pipeline.StageStored:
		if !d.tty {
			fmt.Fprintln(d.w, "stored article")
		}
	}
}

func (d *convertDisplay) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.spinner != nil {
		d.spinner.Finish()
		d.spinner = nil
	}
	if d.bar != nil {
		d.bar.Finish()
		d.bar = nil
	}
}
