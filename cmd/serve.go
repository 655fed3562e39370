package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"patchtriage/internal/bootstrap"
	"patchtriage/internal/bootstrap/logging"
	"patchtriage/internal/errs"
	"patchtriage/internal/transport/httpapi"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the triage JSON API",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		addr, _ := cmd.Flags().GetString("addr")
		addr = strings.TrimSpace(addr)
		if addr == "" {
			addr = app.Config.HTTP.Addr
		}

		server := &http.Server{
			Addr:              addr,
			Handler:           httpapi.NewRouter(app.Triage, app.Users),
			ReadHeaderTimeout: 10 * time.Second,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
		return runServer(ctx, server, app.Config.HTTP.ShutdownTimeout)
	}),
}

// runServer blocks until SIGINT/SIGTERM or a listener failure, then drains
// in-flight requests for at most shutdownTimeout.
func runServer(ctx context.Context, server *http.Server, shutdownTimeout time.Duration) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()
	logging.Info(ctx, "triage api server started", slog.String("addr", server.Addr))

	select {
	case <-sigCtx.Done():
		logging.Info(ctx, "shutting down triage api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown triage api")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		logging.Error(ctx, "triage api server failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "serve triage api")
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: http.addr)")
}
