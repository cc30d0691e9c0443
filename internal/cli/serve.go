package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/mihaimyh/golease/internal/config"
	"github.com/mihaimyh/golease/internal/httputil"
	"github.com/mihaimyh/golease/internal/logger"
	httpmw "github.com/mihaimyh/golease/middleware/http"
	"github.com/mihaimyh/golease/pkg/api"
	"github.com/mihaimyh/golease/pkg/golease"
)

func newServeCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = cfg.HTTPAddr
			}
			limit, _ := cmd.Flags().GetInt("rate-limit")

			return withApp(cmd, cfg, func(ctx context.Context, a *app) error {
				router, err := newRouter(a.manager, a.registry, limit)
				if err != nil {
					return err
				}
				return serve(ctx, addr, router)
			})
		},
	}
	cmd.Flags().String("addr", "", "Listen address (default: HTTP_ADDR)")
	cmd.Flags().Int("rate-limit", 120, "Requests per minute per client IP (0 disables)")
	return cmd
}

// newRouter mounts the API behind the request middleware and exposes the
// registry under /metrics.
func newRouter(manager *golease.Manager, registry *prometheus.Registry, limit int) (http.Handler, error) {
	handler, err := api.NewHandler(api.Config{
		Manager: manager,
		Logger:  logger.Component("api"),
	})
	if err != nil {
		return nil, err
	}

	mwConfig := httpmw.Config{Logger: logger.Component("http")}
	if limit > 0 {
		mwConfig.Limiter = httputil.NewRateLimiter(limit, time.Minute)
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Group(func(r chi.Router) {
		r.Use(httpmw.Middleware(mwConfig))
		r.Mount("/", handler.Routes())
	})
	return r, nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	log := logger.WithComponent("serve")
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
