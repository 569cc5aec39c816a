package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/ledgerline/ledgerline/internal/shared"
	"github.com/ledgerline/ledgerline/internal/tenant"
)

type workspaceContextKey struct{}

func contextWithWorkspace(ctx context.Context, w *tenant.Workspace) context.Context {
	return context.WithValue(ctx, workspaceContextKey{}, w)
}

func workspaceFromContext(ctx context.Context) *tenant.Workspace {
	w, _ := ctx.Value(workspaceContextKey{}).(*tenant.Workspace)
	return w
}

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger     *slog.Logger
	Config     *Config
	Sessions   *shared.SessionManager
	Workspaces *tenant.Manager
}

// MiddlewareStack installs the base middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	limit, window := 300, time.Minute
	if cfg.Config != nil {
		if cfg.Config.AppRequestTimeout > 0 {
			timeout = cfg.Config.AppRequestTimeout
		}
		if cfg.Config.RateLimit > 0 {
			limit = cfg.Config.RateLimit
		}
		if cfg.Config.RateLimitWindow > 0 {
			window = cfg.Config.RateLimitWindow
		}
	}

	return []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		httprate.LimitByIP(limit, window),
		secureMiddleware.Handler,
	}
}

// requireSession resolves the bearer token to a session and its workspace,
// rejecting requests that carry neither.
func requireSession(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := shared.BearerToken(r)
			sess, err := cfg.Sessions.Get(r.Context(), token)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					writeError(w, shared.ErrInvalidCredentials)
					return
				}
				cfg.Logger.Error("load session", slog.Any("error", err))
				writeError(w, err)
				return
			}
			ws, ok := cfg.Workspaces.Get(sess.ID)
			if !ok {
				// Session outlived its workspace (e.g. process restart);
				// treat as signed out.
				writeError(w, shared.ErrInvalidCredentials)
				return
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			ctx = contextWithWorkspace(ctx, ws)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
