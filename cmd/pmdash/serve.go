package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/config"
	"github.com/logflow/pmdash/pkg/logger"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/server"
	"github.com/logflow/pmdash/pkg/session"
	"github.com/logflow/pmdash/pkg/watch"
)

var (
	servePort  int
	serveHost  string
	serveWatch string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start a local HTTP server holding one analysis session.

The server provides:
  - POST   /api/upload               upload a CSV/XLSX log (multipart "file")
  - GET    /api/log?limit=N          raw data preview
  - GET    /api/views/{view}         case-durations, activities, average,
                                     transitions, summary, variants, endpoints
  - GET    /api/render/{name}        terminal, dot, graph, json, parquet
  - GET    /api/events               session changes as Server-Sent Events
  - DELETE /api/session              drop the loaded log
  - GET    /metrics                  Prometheus metrics

Examples:
  pmdash serve                          # Start on default port (8080)
  pmdash serve --port 3000              # Start on custom port
  pmdash serve --host 0.0.0.0           # Listen on all interfaces
  pmdash serve --watch events.csv       # Preload and reload on change`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (default from config, 8080)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default from config, localhost)")
	serveCmd.Flags().StringVar(&serveWatch, "watch", "", "Load this file at startup and reload it when it changes")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = servePort
	}
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serveHost
	}
	maxUpload, err := config.ParseSize(cfg.Server.MaxUploadSize)
	if err != nil {
		return err
	}

	prom := metrics.NewPrometheus()
	a, err := newAnalyzer(prom)
	if err != nil {
		return err
	}
	defer a.Engine().Close()

	opts, _ := cfg.Loader.Options()
	srv := server.New(session.New(a, opts), server.Options{
		MaxUploadSize:  maxUpload,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Render:         cfg.Render,
		Metrics:        prom,
		MetricsHandler: prom.Handler(),
	})
	defer srv.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var w *watch.Watcher
	if serveWatch != "" {
		if w, err = preload(ctx, srv, serveWatch); err != nil {
			return err
		}
		defer w.Close()
	}

	addr := cfg.Server.Addr()
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	printBanner(listener.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := httpServer.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Infof("shutting down")
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if w != nil {
		g.Go(func() error {
			if err := w.Run(gctx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	return g.Wait()
}

// preload loads path into the server session and returns a watcher that
// reloads it on change.
func preload(ctx context.Context, srv *server.Server, path string) (*watch.Watcher, error) {
	reload := watch.Reload(srv, func(b *analysis.Bundle) {
		logger.Infof("loaded %s: %d events, %d cases", b.Source, b.Summary.Events, b.Summary.Cases)
	})
	if err := reload(ctx, path); err != nil {
		return nil, err
	}

	w, err := watch.NewWatcher(0)
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		w.Close()
		return nil, err
	}
	w.OnChange = reload
	w.OnError = func(path string, err error) {
		logger.Warnf("reload %s failed: %v", path, err)
	}
	return w, nil
}

func printBanner(addr string) {
	url := "http://" + addr
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "  ╭─────────────────────────────────────╮")
	fmt.Fprintln(os.Stderr, "  │         PMDASH SERVER               │")
	fmt.Fprintln(os.Stderr, "  ├─────────────────────────────────────┤")
	fmt.Fprintf(os.Stderr, "  │  Local:   %-25s │\n", url)
	fmt.Fprintln(os.Stderr, "  │                                     │")
	fmt.Fprintln(os.Stderr, "  │  Press Ctrl+C to stop               │")
	fmt.Fprintln(os.Stderr, "  ╰─────────────────────────────────────╯")
	fmt.Fprintln(os.Stderr)
}
