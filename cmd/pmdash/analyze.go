package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/render"
	"github.com/logflow/pmdash/pkg/storage"
	"github.com/logflow/pmdash/pkg/tui"
)

var (
	inputPath  string
	outputPath string
	formatFlag string
	noProgress bool
	quiet      bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze an event log and render the views",
	Long: `Load an event log, compute every view and render it.

Inputs and outputs may be local paths, s3://bucket/key URIs or "-" for
stdin/stdout. HTTP(S) URLs can be read.

Output formats:
  terminal  Tables and a bar chart (default)
  dot       Graphviz process flow diagram
  graph     Force-directed graph JSON (nodes and links)
  json      All views plus a raw data preview
  parquet   The validated event table

Examples:
  pmdash analyze -i events.csv
  pmdash analyze -i events.xlsx --format dot -o flow.dot
  pmdash analyze -i s3://logs/2024/events.csv --format json -o s3://reports/views.json
  cat events.csv | pmdash analyze -i - --format graph
  pmdash analyze -i events.csv --engine duckdb --case-col CaseKey`,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&inputPath, "input", "i", "", "Input event log (path, s3:// URI, URL or '-' for stdin)")
	analyzeCmd.Flags().StringVarP(&outputPath, "output", "o", storage.Stdio, "Output destination (path, s3:// URI or '-' for stdout)")
	analyzeCmd.Flags().StringVarP(&formatFlag, "format", "f", render.NameTerminal, "Output format ("+strings.Join(render.Names(), ", ")+")")
	analyzeCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Hide the read progress bar")
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress the load report")
	analyzeCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rd, err := render.ByName(formatFlag, cfg.Render)
	if err != nil {
		return err
	}

	a, err := newAnalyzer(metrics.NewNoop())
	if err != nil {
		return err
	}
	defer a.Engine().Close()

	obj, err := store.Open(ctx, inputPath)
	if err != nil {
		return err
	}
	defer obj.Close()

	var r io.Reader = obj
	var pr *tui.ProgressReader
	if !noProgress && obj.Size > 0 {
		pr = tui.NewProgressReader(obj, os.Stderr, obj.Size, "reading "+obj.Name)
		r = pr
	}

	start := time.Now()
	b, err := a.Run(ctx, inputPath, r, loaderOptions(obj.Name))
	if pr != nil {
		pr.Close()
	}
	if err != nil {
		return err
	}
	if !quiet {
		tui.NewPrinter(os.Stderr).LoadReport(b, tui.Report{
			Source:    inputPath,
			InputSize: obj.Size,
			Duration:  time.Since(start),
		})
	}

	out, err := store.Create(ctx, outputPath)
	if err != nil {
		return err
	}
	if err := rd.Render(ctx, out, b); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return lferrors.Wrap(err, lferrors.CodeWriteFailed, fmt.Sprintf("failed to write %s", outputPath))
	}
	return nil
}
