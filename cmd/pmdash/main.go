// pmdash - Process mining dashboard for tabular event logs.
// Loads CSV and Excel logs and reports case durations, activity
// frequencies, the average completion time and activity transitions.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/config"
	"github.com/logflow/pmdash/pkg/engine"
	lferrors "github.com/logflow/pmdash/pkg/errors"
	"github.com/logflow/pmdash/pkg/eventlog"
	"github.com/logflow/pmdash/pkg/logger"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/storage"
	"github.com/logflow/pmdash/pkg/telemetry"
	"github.com/logflow/pmdash/pkg/tui"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile string
	verbose    bool
	engineFlag string

	caseCol         string
	activityCol     string
	startCol        string
	endCol          string
	delimiter       string
	timestampLayout string
	dateOrder       string
	sheet           string
)

// Loaded in PersistentPreRunE.
var (
	manager           *config.Manager
	cfg               *config.Config
	store             *storage.Store
	shutdownTelemetry func(context.Context) error
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if lferrors.GetCode(err) == lferrors.CodeUnknown {
			fmt.Fprintln(os.Stderr, "Error:", err)
		} else {
			tui.NewPrinter(os.Stderr).Error(err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pmdash",
	Short: "pmdash - Process mining dashboard for event logs",
	Long: `pmdash analyzes tabular event logs (CSV, XLSX) with the columns
"Case ID", "Activity Name", "Start Time" and "End Time".

It reports case durations, activity frequencies, the average process
completion time and activity-to-activity transitions, either once in the
terminal or continuously through an HTTP API.`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry != nil {
			return shutdownTelemetry(context.Background())
		}
		return nil
	},
}

func init() {
	tui.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Config file (default: ~/.pmdash/config.yaml, ./.pmdash.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&engineFlag, "engine", "", "Aggregation engine ("+strings.Join(engine.Names(), ", ")+")")

	// Loader flags
	pf.StringVar(&caseCol, "case-col", "", `Case ID column name (default "Case ID")`)
	pf.StringVar(&activityCol, "activity-col", "", `Activity column name (default "Activity Name")`)
	pf.StringVar(&startCol, "start-col", "", `Start timestamp column name (default "Start Time")`)
	pf.StringVar(&endCol, "end-col", "", `End timestamp column name (default "End Time")`)
	pf.StringVar(&delimiter, "delimiter", "", "CSV field delimiter (auto-detected if not specified)")
	pf.StringVar(&timestampLayout, "timestamp-layout", "", "Timestamp layout (Go time layout) tried before the built-in ones")
	pf.StringVar(&dateOrder, "date-order", "", "Resolve ambiguous dates: auto, dmy or mdy")
	pf.StringVar(&sheet, "sheet", "", "Workbook sheet (default: first sheet)")
}

// setup loads configuration, applies flag overrides and starts logging
// and tracing.
func setup(cmd *cobra.Command, args []string) error {
	m := config.NewManager().WithFile(configFile)
	if err := m.Load(); err != nil {
		return err
	}
	manager = m
	cfg = m.Get()
	applyFlags(cmd)
	if _, err := cfg.Loader.Options(); err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Logging.File, cfg.Logging.Console); err != nil {
		return err
	}
	for _, p := range m.GetPaths() {
		logger.Debugf("loaded config %s", p)
	}

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	shutdownTelemetry = shutdown

	store = storage.New(cfg.Storage.S3)
	return nil
}

// applyFlags overrides config values with flags the user set.
func applyFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}

	set("engine", &cfg.Engine.Default, engineFlag)
	set("case-col", &cfg.Loader.Columns.CaseID, caseCol)
	set("activity-col", &cfg.Loader.Columns.Activity, activityCol)
	set("start-col", &cfg.Loader.Columns.StartTime, startCol)
	set("end-col", &cfg.Loader.Columns.EndTime, endCol)
	set("delimiter", &cfg.Loader.Delimiter, delimiter)
	set("timestamp-layout", &cfg.Loader.TimestampLayout, timestampLayout)
	set("date-order", &cfg.Loader.DateOrder, dateOrder)
	set("sheet", &cfg.Loader.Sheet, sheet)
}

// newAnalyzer builds an analyzer on the configured engine.
func newAnalyzer(rec metrics.Recorder) (*analysis.Analyzer, error) {
	e, err := engine.New(cfg.Engine.Default)
	if err != nil {
		return nil, err
	}
	return analysis.New(analysis.WithEngine(e), analysis.WithMetrics(rec)), nil
}

// loaderOptions returns the eventlog options, using name to pick the
// input format when the config leaves it open.
func loaderOptions(name string) eventlog.Options {
	opts, _ := cfg.Loader.Options()
	if opts.Format == eventlog.FormatUnknown {
		opts.Format = eventlog.ParseFormat(strings.TrimPrefix(filepath.Ext(name), "."))
	}
	return opts
}
