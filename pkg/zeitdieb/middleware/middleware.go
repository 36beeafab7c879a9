// Package middleware profiles HTTP requests that ask for it.
//
// A request carrying an X-Zeitdieb header is measured with a StopWatch that
// traces the listed targets. Handlers reach the StopWatch through the
// request context:
//
//	f := zeitdieb.FromContext(r.Context()).Enter()
//	defer f.Exit()
package middleware

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"zeitdieb.dev/pkg/zeitdieb/pkg/zeitdieb"
)

// Request headers.
const (
	HeaderTargets = "X-Zeitdieb"
	HeaderFormat  = "X-Zeitdieb-Format"
)

// Config configures the middleware.
type Config struct {
	// Format is used when a request has no X-Zeitdieb-Format header.
	Format string
	// Output receives each rendered report. When nil, reports are logged.
	Output io.Writer
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// StopWatch options applied to every request's StopWatch.
	StopWatch []zeitdieb.Option
}

type handler struct {
	next http.Handler
	cfg  Config
	log  *slog.Logger
}

// New wraps next.
func New(next http.Handler, cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &handler{next: next, cfg: cfg, log: logger}
}

// Wrap returns New as a chainable middleware.
func Wrap(cfg Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return New(next, cfg)
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	header := strings.TrimSpace(r.Header.Get(HeaderTargets))
	if header == "" {
		h.next.ServeHTTP(w, r)
		return
	}

	sel, err := zeitdieb.ParseTargets(header)
	if err != nil {
		h.log.Warn("ignoring invalid zeitdieb targets", "header", header, "error", err)
	}

	if sel.Empty() {
		h.next.ServeHTTP(w, r)
		return
	}

	opts := append([]zeitdieb.Option{}, h.cfg.StopWatch...)
	opts = append(opts, zeitdieb.WithTargets(sel))
	sw := zeitdieb.New(opts...)

	if err := sw.Start(); err != nil {
		h.log.Error("failed to start stopwatch", "error", err)
		h.next.ServeHTTP(w, r)

		return
	}

	defer h.report(r, sw)

	h.next.ServeHTTP(w, r.WithContext(zeitdieb.NewContext(r.Context(), sw)))
}

// report finishes sw and writes its report. It runs deferred, so a
// panicking handler still uninstalls the tracer.
func (h *handler) report(r *http.Request, sw *zeitdieb.StopWatch) {
	if err := sw.Finish(); err != nil {
		h.log.Error("failed to finish stopwatch", "error", err)
		return
	}

	format := r.Header.Get(HeaderFormat)
	if strings.TrimSpace(format) == "" {
		format = h.cfg.Format
	}

	out, err := sw.Render(format)
	if err != nil {
		h.log.Warn("invalid zeitdieb format", "format", format, "error", err)
		return
	}

	if out == "" {
		return
	}

	if h.cfg.Output == nil {
		h.log.Info("zeitdieb report", "method", r.Method, "path", r.URL.Path, "targets", sw.Targets().String(), "report", out)
		return
	}

	if _, err := fmt.Fprintln(h.cfg.Output, out); err != nil {
		h.log.Error("failed to write zeitdieb report", "error", err)
	}
}
