package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/conductor"
	"github.com/GoCodeAlone/conductor/events"
)

// NewRunCommand creates the command that starts the manifest components and
// serves their state until interrupted.
func NewRunCommand() *cobra.Command {
	var manifestPath, addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the components of a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			zl, err := newLogger(cmd, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runManifest(cmd.Context(), manifestPath, addr, zl)
		},
	}

	cmd.Flags().StringVarP(&manifestPath, "manifest", "m", "", "Path to the YAML or TOML manifest")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address of the status server")
	_ = cmd.MarkFlagRequired("manifest")

	return cmd
}

func runManifest(parent context.Context, manifestPath, addr string, zl zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	m, err := LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	m.Controller.HandleSignals = true

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	logger := conductor.NewZerologLogger(zl)

	var exitCode atomic.Int32
	ctrl, err := conductor.NewController(m.Controller,
		conductor.WithLogger(logger),
		conductor.WithExitFunc(func(code int) {
			exitCode.Store(int32(code))
			cancel()
		}),
	)
	if err != nil {
		return err
	}

	observer := events.CloudEventObserver(logger, func(_ context.Context, ce cloudevents.Event) error {
		entry := zl.Debug().Str("type", ce.Type()).Str("id", ce.ID())
		if data := ce.Data(); len(data) > 0 {
			entry = entry.RawJSON("data", data)
		}
		entry.Msg("Lifecycle event")
		return nil
	})
	if err := ctrl.Events().Observe("conductord-log", observer); err != nil {
		return err
	}

	if err := ctrl.Start(ctx, m.Descriptors(logger)); err != nil {
		logger.Error("Start failed", "error", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(ctrl),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		defer ctrl.RecoverCritical()
		logger.Info("Status server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		logger.Error("Status server failed", "error", runErr)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), m.Controller.ShutdownTimeout)
	defer stopCancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		logger.Error("Stop failed", "error", err)
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		logger.Warn("Status server shutdown failed", "error", err)
	}

	if runErr != nil {
		return runErr
	}
	if code := exitCode.Load(); code != 0 {
		return fmt.Errorf("conductor exited with code %d", code)
	}
	return nil
}
