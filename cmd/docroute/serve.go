package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/karsov/docroute/internal/api"
	"github.com/karsov/docroute/internal/queue"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the docroute server (HTTP API, job worker, MCP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd)
	},
}

func init() {
	serveCmd.Flags().String("data-dir", "", "override storage data directory")
	serveCmd.Flags().String("output-dir", "", "override export output directory")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
}

func runServer(cmd *cobra.Command) error {
	fmt.Fprintf(os.Stderr, "docroute version %s\n", version)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	p := buildPipeline(store, cfg.Output.Dir)

	handler := api.NewAppHandler(api.AppDeps{
		Store: store,
		Token: cfg.Server.Token,
	})
	if cfg.Server.Token == "" {
		printWarning("no API token configured, endpoints are unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Job worker: drains queued process_document jobs.
	poll := time.Duration(cfg.Worker.PollIntervalMS) * time.Millisecond
	worker := queue.NewWorker(store, p, poll)
	g.Go(func() error {
		worker.Run(gCtx)
		return nil
	})

	// Optional MCP server over stdio.
	if withMCP, _ := cmd.Flags().GetBool("mcp"); withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Store:     store,
			Processor: p,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("mcp stdio server: %w", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	// HTTP server plus its shutdown watcher.
	g.Go(func() error {
		slog.Info("docroute listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Fprintln(os.Stderr, "shutting down...")
	return nil
}
