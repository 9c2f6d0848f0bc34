package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"leadcaller/config"
	"leadcaller/server"
	"leadcaller/services"
	"leadcaller/utils"
)

var (
	cfg    *config.Config
	logger *utils.Logger

	servePort   int
	scrapeTotal int
)

var rootCmd = &cobra.Command{
	Use:   "leadcaller",
	Short: "Map-search lead discovery with automated qualification calls",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()

		l, err := utils.NewLogger(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the search, webhook and qualified-lead HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := server.New(a.campaign, a.correlator, a.qualified, a.dispatcher, cfg.Server.AllowedOrigins, logger)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Z().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Z().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [search term]",
	Short: "Scrape and store leads for a search term without placing a call",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		term := strings.Join(args, " ")
		logger.Info("=== Lead scrape starting: %q ===", term)
		logger.Info("Config: total %d | max scrolls %d | field timeout %s | visit interval %s",
			cfg.Scrape.Total, cfg.Scrape.MaxScrolls, cfg.Scrape.FieldTimeout, cfg.Scrape.VisitInterval)

		res, err := a.campaign.Scrape(ctx, term, scrapeTotal)
		if err != nil {
			return err
		}

		ds := res.Dataset
		if a.postgres != nil {
			if dbDataset, err := a.postgres.FetchAll(ctx); err != nil {
				logger.Warn("Failed to read leads back from PostgreSQL: %v", err)
			} else {
				ds = dbDataset
			}
		}

		insights := services.NewInsightService(logger)
		insights.Print(os.Stdout, term, insights.Generate(ds))

		fmt.Printf("  Done. %s pagination | CSV → %s\n\n", res.PageStatus, a.datasets.Path())
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	scrapeCmd.Flags().IntVar(&scrapeTotal, "total", 0, "number of listings to collect (default from config)")
	rootCmd.AddCommand(serveCmd, scrapeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
