package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcparts/partsdb/app"
	"github.com/pcparts/partsdb/app/catalog"
	"github.com/pcparts/partsdb/app/categories"
	"github.com/pcparts/partsdb/app/imports"
	"github.com/pcparts/partsdb/models"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd(global *globalFlags) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog and import API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), global, port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "Listen port (default from config)")
	return cmd
}

func runServe(ctx context.Context, global *globalFlags, port string) error {
	e, err := setup(global)
	if err != nil {
		return err
	}
	defer e.close()
	if port != "" {
		e.cfg.HTTP.Port = port
	}

	shutdownTelemetry, err := e.telemetry(ctx)
	if err != nil {
		return err
	}
	defer shutdownTelemetry()

	reg, err := e.registry()
	if err != nil {
		return err
	}

	db, closeDB, err := e.database()
	if err != nil {
		return err
	}
	defer closeDB()

	imp, release, err := e.importer(ctx, db, reg)
	if err != nil {
		return err
	}
	defer release()

	products := models.NewProductsRepository(db)
	router := app.NewRouter(app.Handlers{
		Catalog:    catalog.NewCatalogHandler(products),
		Categories: categories.NewCategoryHandler(reg, products),
		Imports:    imports.NewImportHandler(imp, models.NewImportRunsRepository(db), e.log),
	}, e.log)

	srv := &http.Server{
		Addr:         ":" + e.cfg.HTTP.Port,
		Handler:      router,
		ReadTimeout:  e.cfg.HTTP.ReadTimeout,
		WriteTimeout: e.cfg.HTTP.WriteTimeout,
		IdleTimeout:  e.cfg.HTTP.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		e.log.Info("Starting HTTP server",
			zap.String("addr", srv.Addr),
			zap.Strings("categories", reg.Categories()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-quit:
		e.log.Info("Shutting down server...", zap.String("signal", sig.String()))
	case <-ctx.Done():
		e.log.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	e.log.Info("Server exited")
	return nil
}
