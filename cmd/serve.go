package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"todoapi/internal/bootstrap"
	"todoapi/internal/bootstrap/logging"
	"todoapi/internal/errs"
	"todoapi/internal/usecase/todo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the todo HTTP API",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *todo.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		migrate, _ := cmd.Flags().GetBool("migrate")
		if migrate {
			if err := app.InitSchema(ctx); err != nil {
				return errs.Wrap(err, "initialize schema")
			}
		}

		addr := app.Config.HTTP.Addr
		if flagAddr, _ := cmd.Flags().GetString("addr"); flagAddr != "" {
			addr = flagAddr
		}

		server := &http.Server{
			Addr:        addr,
			Handler:     app.Handler,
			ReadTimeout: app.Config.HTTP.ReadTimeout,
			BaseContext: func(_ net.Listener) context.Context { return ctx },
		}

		sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logging.Info(ctx, "http server started", slog.String("addr", addr))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error(ctx, "http server failed", slog.Any("err", errs.Loggable(err)))
				return errs.Wrap(err, "serve http")
			}
			return nil
		case <-sigCtx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), app.Config.HTTP.ShutdownTimeout)
		defer cancel()
		logging.Info(ctx, "http server shutting down")
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errs.Wrap(err, "shutdown http server")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (overrides http.addr)")
	serveCmd.Flags().Bool("migrate", false, "Run schema migration before serving")
}
