package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/credcore/httpauth"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the reference HTTP server (health, metrics, /v1/me)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, c.settings)
			if err != nil {
				return err
			}
			defer a.Close()

			return a.serve(ctx)
		},
	}
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(httpauth.RequestContext)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpauth.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Use(httpauth.RequireFull(a.engine))
		r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
			p, _ := httpauth.PrincipalFromContext(r.Context())
			httpauth.WriteJSON(w, http.StatusOK, map[string]any{
				"account_id": p.AccountID,
				"email":      p.Email,
				"role":       p.Role,
				"expires_at": p.ExpiresAt,
			})
		})
	})
	return r
}

func (a *app) serve(ctx context.Context) error {
	hs := a.settings.HTTP
	srv := &http.Server{
		Addr:         hs.Addr,
		Handler:      a.router(),
		ReadTimeout:  hs.ReadTimeout,
		WriteTimeout: hs.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("http listening", zap.String("addr", hs.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), hs.ShutdownTimeout)
		defer cancel()
		a.log.Info("http shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
