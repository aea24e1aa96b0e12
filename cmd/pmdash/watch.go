package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/render"
	"github.com/logflow/pmdash/pkg/session"
	"github.com/logflow/pmdash/pkg/storage"
	"github.com/logflow/pmdash/pkg/tui"
	"github.com/logflow/pmdash/pkg/watch"
)

var (
	watchInput    string
	watchOutput   string
	watchFormat   string
	watchDebounce time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-analyze a local event log whenever it changes",
	Long: `Watch a local event log and render every view again after each save.
Each change replaces the previous analysis, like a fresh upload.

Examples:
  pmdash watch -i events.csv
  pmdash watch -i events.xlsx --format dot -o flow.dot`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVarP(&watchInput, "input", "i", "", "Local event log to watch (required)")
	watchCmd.Flags().StringVarP(&watchOutput, "output", "o", storage.Stdio, "Output destination, rewritten on each change")
	watchCmd.Flags().StringVarP(&watchFormat, "format", "f", render.NameTerminal, "Output format ("+strings.Join(render.Names(), ", ")+")")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before re-analyzing")
	watchCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	rd, err := render.ByName(watchFormat, cfg.Render)
	if err != nil {
		return err
	}

	a, err := newAnalyzer(metrics.NewNoop())
	if err != nil {
		return err
	}
	defer a.Engine().Close()

	sess := session.New(a, loaderOptions(watchInput))
	printer := tui.NewPrinter(os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	emit := func(b *analysis.Bundle) {
		printer.LoadReport(b, tui.Report{Source: watchInput})
		if err := writeRendered(ctx, rd, b); err != nil {
			printer.Error(err)
		}
	}
	reload := watch.Reload(sess, emit)

	if err := reload(ctx, watchInput); err != nil {
		return err
	}

	w, err := watch.NewWatcher(watchDebounce)
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Watch(watchInput); err != nil {
		return err
	}
	w.OnChange = reload
	w.OnError = func(path string, err error) {
		printer.Error(err)
	}

	printer.Status("watching %s (Ctrl+C to stop)", watchInput)
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func writeRendered(ctx context.Context, rd render.Renderer, b *analysis.Bundle) error {
	out, err := store.Create(ctx, watchOutput)
	if err != nil {
		return err
	}
	if err := rd.Render(ctx, out, b); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
