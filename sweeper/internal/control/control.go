// Package control is the HTTP surface of a running engine: JSON commands and
// state under /api, a websocket notification stream, Prometheus metrics and
// an MCP endpoint. Every transport funnels into the same Engine.Dispatch.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/feedsweep/shield"
	"github.com/hazyhaar/feedsweep/sweeper/internal/journal"
	"github.com/hazyhaar/feedsweep/sweeper/internal/session"
	"github.com/hazyhaar/feedsweep/sweeper/message"
)

// Engine is what the control surface drives.
type Engine interface {
	Dispatch(ctx context.Context, c message.Command) (session.Config, error)
	Status() session.Status
	RegisterMCP(srv *mcp.Server)
}

// Journal serves GET /api/journal.
type Journal interface {
	Recent(ctx context.Context, f journal.Filter) ([]journal.Entry, error)
}

// Config configures the handler.
type Config struct {
	// Notifications serves GET /api/notifications (usually a notify.Hub).
	Notifications http.Handler
	Journal       Journal
	// RateLimit caps /api requests per client and minute (0 = unlimited).
	RateLimit int
	Version   string
	Logger    *slog.Logger
}

type handler struct {
	eng     Engine
	journal Journal
	logger  *slog.Logger
}

// NewHandler builds the router.
func NewHandler(eng Engine, cfg Config) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	h := &handler{eng: eng, journal: cfg.Journal, logger: cfg.Logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(cfg.Logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimit > 0 {
			r.Use(shield.NewRateLimiter(cfg.RateLimit, cfg.RateLimit, cfg.Logger).Middleware)
		}
		r.Post("/commands", h.command)
		r.Get("/state", h.state)
		if cfg.Notifications != nil {
			r.Handle("/notifications", cfg.Notifications)
		}
		if cfg.Journal != nil {
			r.Get("/journal", h.recent)
		}
	})

	srv := mcp.NewServer(&mcp.Implementation{Name: "feedsweep", Version: cfg.Version}, nil)
	eng.RegisterMCP(srv)
	r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

	return r
}

func (h *handler) command(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	c, err := message.Decode(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := h.eng.Dispatch(r.Context(), c); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, message.ErrUnknownCommand) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.eng.Status())
}

func (h *handler) state(w http.ResponseWriter, r *http.Request) {
	st := h.eng.Status()
	if r.URL.Query().Get("suppressions") == "false" {
		st.Suppressions = nil
	}
	writeJSON(w, http.StatusOK, st)
}

// recent lists journal entries. Query: limit, transport, status.
func (h *handler) recent(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := journal.Filter{Transport: q.Get("transport"), Status: q.Get("status")}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("control: limit %q out of range", v))
			return
		}
		f.Limit = n
	}
	entries, err := h.journal.Recent(r.Context(), f)
	if err != nil {
		h.logger.Error("control: journal", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("control: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("control: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("control: shutdown", "error", err)
	}
	logger.Info("control: stopped")
	return nil
}
