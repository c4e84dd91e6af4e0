package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cluvo-ai/cluvo/internal/api"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for analyses, interviews and canvases",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		return startServer(ctx, buildRouter(env), resolvePort(servePort, cfg.Server.Port))
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// buildRouter exposes env over HTTP. A nil env serves only /health.
func buildRouter(env *appEnv) http.Handler {
	d := api.Deps{}
	if cfg != nil {
		d.CORSOrigins = cfg.Server.CORSOrigins
		d.SyncTimeout = time.Duration(cfg.Server.SyncTimeoutSecs) * time.Second
	}
	if env != nil {
		d.Store = env.Store
		if env.Pipeline != nil {
			d.Analyses = env.Pipeline
		}
		if env.Interviews != nil {
			d.Interviews = env.Interviews
		}
		if env.Canvas != nil {
			d.Canvases = env.Canvas
		}
	}
	return api.NewRouter(d)
}

// resolvePort prefers the --port flag over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

// startServer serves handler on port until ctx is cancelled, then drains
// in-flight requests.
func startServer(ctx context.Context, handler http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	<-done
	return nil
}
