// Package server provides the HTTP API for the dashboard.
package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/logflow/pmdash/pkg/analysis"
	"github.com/logflow/pmdash/pkg/logger"
	"github.com/logflow/pmdash/pkg/metrics"
	"github.com/logflow/pmdash/pkg/render"
	"github.com/logflow/pmdash/pkg/session"
)

// DefaultMaxUploadSize caps upload bodies when Options leaves it unset.
const DefaultMaxUploadSize = 500 << 20

// Options configures a Server.
type Options struct {
	// MaxUploadSize bounds the request body of /api/upload in bytes.
	MaxUploadSize int64
	// CORSOrigins lists allowed origins. "*" allows any.
	CORSOrigins []string
	// Render bounds the renderer output.
	Render render.Options
	// Metrics records request counts. Nil discards them.
	Metrics metrics.Recorder
	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
	// Logger for request logging. Nil uses the default logger.
	Logger *logger.Logger
}

// Server handles HTTP requests for one session.
type Server struct {
	session *session.Session
	opts    Options
	log     *logger.Logger
	metrics metrics.Recorder
	router  *mux.Router
	events  *Broker
}

// New creates a new HTTP server over sess.
func New(sess *session.Session, opts Options) *Server {
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = DefaultMaxUploadSize
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		session: sess,
		opts:    opts,
		log:     opts.Logger,
		metrics: opts.Metrics,
		router:  mux.NewRouter(),
		events:  NewBroker(),
	}
	if s.log == nil {
		s.log = logger.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.NewNoop()
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures HTTP handlers.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.instrument)

	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/upload", s.handleUpload).Methods("POST")
	api.HandleFunc("/session", s.handleSession).Methods("GET")
	api.HandleFunc("/session", s.handleClear).Methods("DELETE")
	api.HandleFunc("/log", s.handleLog).Methods("GET")
	api.HandleFunc("/views/{view}", s.handleView).Methods("GET")
	api.HandleFunc("/render/{name}", s.handleRender).Methods("GET")
	api.HandleFunc("/events", s.events.Handler(s.currentEvent)).Methods("GET")

	if s.opts.MetricsHandler != nil {
		s.router.Handle("/metrics", s.opts.MetricsHandler).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Not found", http.StatusNotFound)
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	s.router.ServeHTTP(w, r)
}

func (s *Server) allowOrigin(origin string) string {
	for _, o := range s.opts.CORSOrigins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// Load analyzes content into the session and notifies event subscribers.
// Uploads and file watchers both go through here.
func (s *Server) Load(ctx context.Context, name string, content []byte) (*analysis.Bundle, error) {
	b, err := s.session.Load(ctx, name, content)
	if err != nil {
		s.events.Publish(Event{Event: EventError, Data: errorBody(err)})
		return nil, err
	}
	s.events.Publish(Event{Event: EventLoaded, Data: newBundleInfo(b)})
	return b, nil
}

// Clear drops the session bundle and notifies event subscribers.
func (s *Server) Clear() {
	s.session.Clear()
	s.events.Publish(Event{Event: EventCleared})
}

// Close disconnects event subscribers.
func (s *Server) Close() error {
	s.events.Close()
	return nil
}

func (s *Server) currentEvent() *Event {
	b, ok := s.session.Current()
	if !ok {
		return &Event{Event: EventCleared}
	}
	return &Event{Event: EventLoaded, Data: newBundleInfo(b)}
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps event streams working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// instrument logs each request outcome and counts it by route and status.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.metrics.Counter(metrics.MetricRequestsTotal, 1, map[string]string{
			metrics.TagRoute:  route,
			metrics.TagStatus: strconv.Itoa(rec.status),
		})

		elapsed := time.Since(start).Round(time.Microsecond)
		if rec.status >= 500 {
			s.log.Errorf("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
		} else {
			s.log.Infof("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed)
		}
	})
}
