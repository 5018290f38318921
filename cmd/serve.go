package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/armchr/testgen/internal/bootstrap"
	"github.com/armchr/testgen/internal/controller"
	"github.com/armchr/testgen/internal/handler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withContainer(ctx, "stdout", bootstrap.Options{}, func(sc *bootstrap.ServiceContainer, logger *zap.Logger) error {
		cfg := sc.Config
		testGenController := controller.NewTestGenController(sc.Service, logger)
		router := handler.SetupRouter(testGenController, cfg, logger)

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.App.Port),
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Starting server", zap.Int("port", cfg.App.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				logger.Error("Failed to start server", zap.Error(err))
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		return nil
	})
}
