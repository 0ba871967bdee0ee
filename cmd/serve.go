package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/postal-cli/internal/api"
	"github.com/sells-group/postal-cli/internal/enrich"
)

const shutdownTimeout = 10 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the postal code lookup HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := api.NewServer(st, enrich.New(st, newCTTClient()), api.Options{ListShape: listShape()})

		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
		if err != nil {
			return eris.Wrap(err, "server listen")
		}

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("list_shape", listShape()),
		)
		return serve(ctx, ln, srv.Router())
	},
}

// serve runs an HTTP server on ln until ctx is done, then shuts it down
// gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	})

	return g.Wait()
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
