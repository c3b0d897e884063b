// Package api serves the agent's local status API: state snapshots,
// notification events over SSE, the device and command directories, the
// notification history and prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/joygram/flowOSD-sub000/internal/command"
	"github.com/joygram/flowOSD-sub000/internal/device"
	"github.com/joygram/flowOSD-sub000/internal/hotkey"
	"github.com/joygram/flowOSD-sub000/internal/hub"
	"github.com/joygram/flowOSD-sub000/internal/keys"
	"github.com/joygram/flowOSD-sub000/internal/stream"
)

// Deps are the parts of the agent the API reads from. Nil members switch
// the matching route off (404) except Exec, which defaults to running
// commands inline.
type Deps struct {
	Hub      *hub.Hub
	Devices  *device.Directory
	Model    any
	Commands *command.Directory
	Hotkeys  *hotkey.Dispatcher
	Keys     *keys.Reader
	// Bind persists a hotkey binding; the dispatcher follows the settings.
	Bind     func(key string, b hotkey.Binding) error
	Gatherer prometheus.Gatherer
	// Exec serializes command invocations with the rest of the agent.
	Exec stream.Executor
}

type Server struct {
	deps   Deps
	log    zerolog.Logger
	router chi.Router
}

func New(deps Deps, log zerolog.Logger) *Server {
	s := &Server{deps: deps, log: log.With().Str("component", "api").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/events", s.handleEvents)
	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/devices", s.handleDevices)
		r.Get("/commands", s.handleCommands)
		r.Post("/commands/{name}", s.handleInvoke)
		r.Get("/hotkeys", s.handleHotkeys)
		r.Put("/hotkeys/{key}", s.handleBind)
		r.Get("/history", s.handleHistory)
		r.Get("/diagnostics/raw", s.handleRawReport)
	})
	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled. Request contexts derive from
// ctx, so open event streams end with it.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("[HTTP] listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.log.Warn().Msg("[HTTP] connections still open at shutdown, closing")
		_ = srv.Close()
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("[HTTP] request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusNotFound, "no state")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Hub.Snapshot())
}

func (s *Server) handleDevices(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		Model   any            `json:"model,omitempty"`
		Devices []device.Entry `json:"devices"`
	}{Model: s.deps.Model, Devices: []device.Entry{}}
	if s.deps.Devices != nil {
		resp.Devices = s.deps.Devices.Entries()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commands == nil {
		writeJSON(w, http.StatusOK, []command.Info{})
		return
	}
	if r.URL.Query().Get("all") == "true" {
		writeJSON(w, http.StatusOK, s.deps.Commands.All())
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Commands.List())
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commands == nil {
		writeError(w, http.StatusNotFound, "no commands")
		return
	}
	name := chi.URLParam(r, "name")
	param := r.URL.Query().Get("param")

	done := make(chan error, 1)
	run := func() { done <- s.deps.Commands.Invoke(name, param) }
	if s.deps.Exec != nil {
		s.deps.Exec.Post(run)
	} else {
		run()
	}

	var err error
	select {
	case err = <-done:
	case <-r.Context().Done():
		return
	}
	switch {
	case errors.Is(err, command.ErrUnknown):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.log.Warn().Err(err).Str("command", name).Msg("[HTTP] command failed")
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.log.Info().Str("command", name).Str("param", param).Msg("[HTTP] command invoked")
		writeJSON(w, http.StatusOK, map[string]string{"command": name, "status": "ok"})
	}
}

func (s *Server) handleHotkeys(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hotkeys == nil {
		writeJSON(w, http.StatusOK, []hotkey.Entry{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Hotkeys.Bound())
}

func (s *Server) handleBind(w http.ResponseWriter, r *http.Request) {
	if s.deps.Bind == nil {
		writeError(w, http.StatusNotFound, "hotkeys are read-only")
		return
	}
	key := chi.URLParam(r, "key")
	if _, ok := keys.ParseCode(key); !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown key %q", key))
		return
	}
	var b hotkey.Binding
	if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
		writeError(w, http.StatusBadRequest, "invalid binding")
		return
	}
	if err := s.deps.Bind(key, b); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("[HTTP] hotkey not saved")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Hub == nil {
		writeError(w, http.StatusNotFound, "no history")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Hub.Journal().History(r.URL.Query().Get("range")))
}

func (s *Server) handleRawReport(w http.ResponseWriter, r *http.Request) {
	if s.deps.Keys == nil {
		writeError(w, http.StatusNotFound, "no key reader")
		return
	}
	report, ok := s.deps.Keys.LastReport()
	if !ok {
		writeError(w, http.StatusNotFound, "no input report yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"length": len(report),
		"hex":    keys.HexDump(report),
	})
}
