package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/feedsweep/idgen"
	"github.com/hazyhaar/feedsweep/kit"
)

var requestIDs = idgen.Prefixed("req_", idgen.Default)

// RequestID assigns an id to each request (or keeps a client-supplied
// X-Request-ID) and injects it into the context, the response headers and
// a per-request structured logger. The call context is tagged with
// transport "http".
func RequestID(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" {
				id = requestIDs()
			}
			w.Header().Set("X-Request-ID", id)

			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")

			l := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", ExtractIP(r),
			)
			ctx = context.WithValue(ctx, LoggerKey, l)
			l.Debug("shield: request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
