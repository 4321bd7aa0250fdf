// Package httpd is the HTTP control surface: an HTML panel, a JSON description
// of the interface, per path reads and writes, note requests and a
// server-sent events stream of every change.
package httpd

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Masterminds/sprig"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vsariola/polyhost/params"
	"github.com/vsariola/polyhost/surface"
)

//go:embed templates/*.html
var templateFS embed.FS

type (
	Config struct {
		// Port is the TCP port to listen on; 0 picks a free one.
		Port   int
		Name   string
		Logger *slog.Logger
	}

	// Surface is an HTTP control surface.
	Surface struct {
		config    Config
		logger    *slog.Logger
		tree      *params.Tree
		sink      surface.NoteSink
		router    *chi.Mux
		templates *template.Template
		listener  net.Listener
		quit      chan struct{}
		quitOnce  sync.Once
	}

	// Param is the JSON and template view of one parameter.
	Param struct {
		Path    string  `json:"path"`
		Label   string  `json:"label"`
		Kind    string  `json:"kind"`
		Min     float64 `json:"min"`
		Max     float64 `json:"max"`
		Default float64 `json:"init"`
		Step    float64 `json:"step"`
		MIDI    int     `json:"midi,omitempty"`
		Value   float64 `json:"value"`
	}

	// UI is the JSON description of the whole interface.
	UI struct {
		Name   string  `json:"name"`
		Params []Param `json:"params"`
	}

	// Change is the JSON view of a written value.
	Change struct {
		Path  string  `json:"path"`
		Value float64 `json:"value"`
	}

	// ValueRequest is the body of a parameter write.
	ValueRequest struct {
		Value *float64 `json:"value"`
	}

	// NoteRequest is the body of a note request. With All set, every note is
	// released.
	NoteRequest struct {
		Note     int  `json:"note"`
		Velocity int  `json:"velocity"`
		On       bool `json:"on"`
		All      bool `json:"all"`
	}
)

const (
	DefaultPort     = 5510
	eventsQueue     = 64
	shutdownTimeout = 5 * time.Second
	// continuous sliders of the panel have this many steps
	panelResolution = 1000
)

func New(c Config) *Surface {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return &Surface{
		config: c,
		logger: c.Logger.With("surface", "httpd"),
		quit:   make(chan struct{}),
	}
}

func (s *Surface) Kind() surface.Kind { return surface.KindHTTP }

func (s *Surface) AttachNoteSink(sink surface.NoteSink) { s.sink = sink }

// BuildFrom sets up the routes and binds the listening socket.
func (s *Surface) BuildFrom(tree *params.Tree) error {
	s.tree = tree
	tmpl, err := template.New("panel").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return fmt.Errorf("httpd: parsing templates: %w", err)
	}
	s.templates = tmpl
	s.setupRoutes()
	l, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("httpd: listening on port %d: %w", s.config.Port, err)
	}
	s.listener = l
	s.logger.Info("listening", "addr", l.Addr().String())
	return nil
}

func (s *Surface) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handlePanel)
	r.Get("/JSON", s.handleJSON)
	r.Get("/params/*", s.handleGetParam)
	r.Put("/params/*", s.handleSetParam)
	r.Post("/params/*", s.handleSetParam)
	r.Post("/notes", s.handleNotes)
	r.Get("/events", s.handleEvents)
	s.router = r
}

// Handler is the router of the surface, valid after BuildFrom.
func (s *Surface) Handler() http.Handler { return s.router }

// Addr is the address the surface listens on, valid after BuildFrom.
func (s *Surface) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Surface) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Debug("request",
				"id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start))
		}()
		next.ServeHTTP(ww, r)
	})
}

func (s *Surface) ui() UI {
	ui := UI{Name: s.config.Name, Params: make([]Param, s.tree.Len())}
	for i, d := range s.tree.Descriptors() {
		step := d.Step
		if d.Kind == params.Continuous {
			step = (d.Max - d.Min) / panelResolution
		}
		ui.Params[i] = Param{
			Path:    d.Path,
			Label:   d.Label,
			Kind:    d.Kind.String(),
			Min:     d.Min,
			Max:     d.Max,
			Default: d.Default,
			Step:    step,
			MIDI:    max(d.MIDI, 0),
			Value:   s.tree.ValueAt(i),
		}
	}
	return ui
}

func (s *Surface) handlePanel(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, "panel.html", s.ui()); err != nil {
		s.logger.Error("rendering panel", "err", err)
	}
}

func (s *Surface) handleJSON(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ui())
}

func (s *Surface) handleGetParam(w http.ResponseWriter, r *http.Request) {
	path := "/" + chi.URLParam(r, "*")
	if q := r.URL.Query().Get("value"); q != "" {
		v, err := strconv.ParseFloat(q, 64)
		if err != nil {
			http.Error(w, "value is not a number", http.StatusBadRequest)
			return
		}
		s.write(w, path, v)
		return
	}
	v, err := s.tree.Read(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, Change{Path: path, Value: v})
}

func (s *Surface) handleSetParam(w http.ResponseWriter, r *http.Request) {
	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		http.Error(w, `expected {"value": number}`, http.StatusBadRequest)
		return
	}
	s.write(w, "/"+chi.URLParam(r, "*"), *req.Value)
}

func (s *Surface) write(w http.ResponseWriter, path string, v float64) {
	applied, err := s.tree.Write(path, v)
	switch {
	case errors.Is(err, params.ErrUnknownPath):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		writeJSON(w, http.StatusOK, Change{Path: path, Value: applied})
	}
}

func (s *Surface) handleNotes(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Note < 0 || req.Note > 127 || req.Velocity < 0 || req.Velocity > 127 {
		http.Error(w, "note and velocity must be within 0..127", http.StatusBadRequest)
		return
	}
	if s.sink == nil {
		http.Error(w, "no note sink attached", http.StatusServiceUnavailable)
		return
	}
	var ok bool
	switch {
	case req.All:
		ok = s.sink.AllNotesOff()
	case req.On && req.Velocity > 0:
		ok = s.sink.NoteOn(byte(req.Note), byte(req.Velocity))
	default:
		ok = s.sink.NoteOff(byte(req.Note))
	}
	if !ok {
		http.Error(w, "note queue full", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleEvents streams every change of the tree as a server-sent event.
// Changes are dropped if the client cannot keep up.
func (s *Surface) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	changes := make(chan params.Change, eventsQueue)
	cancel := s.tree.Subscribe(func(c params.Change) { params.TrySend(changes, c) })
	defer cancel()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.quit:
			return
		case c := <-changes:
			b, err := json.Marshal(Change{Path: c.Path, Value: c.Value})
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Surface) Run(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("httpd: Run called before BuildFrom")
	}
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(s.listener) }()
	select {
	case err := <-errc:
		return fmt.Errorf("httpd: %w", err)
	case <-ctx.Done():
	}
	s.quitOnce.Do(func() { close(s.quit) })
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("shutdown error", "err", err)
	}
	return nil
}

func (s *Surface) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
