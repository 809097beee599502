package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vantagecrm/hookd/internal/api"
	"github.com/vantagecrm/hookd/internal/config"
	"github.com/vantagecrm/hookd/internal/dispatch"
	"github.com/vantagecrm/hookd/internal/events"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/ratelimit"
	"github.com/vantagecrm/hookd/internal/render"
	"github.com/vantagecrm/hookd/internal/storage"
	"github.com/vantagecrm/hookd/internal/usage"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "hookd",
		Short: "VantageCRM Hookd — webhook event delivery and API rate limiting",
	}

	var configPath string
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(serveCmd(&configPath))
	rootCmd.AddCommand(migrateCmd(&configPath))
	rootCmd.AddCommand(accountCmd(&configPath))
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(statsCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the Hookd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("database migrations completed")

			renderer := render.NewTemplateRenderer()
			dispatcher := dispatch.NewDispatcher(store, renderer, log)
			executor := dispatch.NewExecutor(cfg.Dispatch.Timeout)
			worker := dispatch.NewWorker(store, executor, renderer, log)
			pool := dispatch.NewPool(store, worker, cfg.Dispatch.Workers, cfg.Dispatch.PollInterval, log)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			limiter := ratelimit.NewLimiter(store, limitRules(cfg.RateLimit), cfg.RateLimit.DefaultLimit, models.RatePeriod(cfg.RateLimit.DefaultPeriod), log)

			agg := usage.NewAggregator(store, log)
			scheduler := usage.NewScheduler(agg, log)
			if err := scheduler.Start(ctx); err != nil {
				return fmt.Errorf("failed to start usage scheduler: %w", err)
			}

			server := api.NewServer(cfg.Server, store, dispatcher, limiter, agg, log)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server error")
				}
			}()

			log.Info().
				Str("version", version).
				Int("port", cfg.Server.Port).
				Int("workers", cfg.Dispatch.Workers).
				Str("storage", cfg.Storage.Driver).
				Msg("Hookd is running")

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Info().Msg("shutting down...")

			if err := server.Shutdown(10 * time.Second); err != nil {
				log.Error().Err(err).Msg("server shutdown error")
			}

			scheduler.Stop()
			pool.Stop()

			log.Info().Msg("Hookd stopped")
			return nil
		},
	}
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			log := setupLogger(cfg.Logging)

			store, err := setupStorage(cfg.Storage, log)
			if err != nil {
				return fmt.Errorf("failed to setup storage: %w", err)
			}
			defer store.Close()

			if err := store.Migrate(context.Background()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Msg("migrations completed successfully")
			return nil
		},
	}
}

func accountCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new account",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			if name == "" {
				return fmt.Errorf("--name is required")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			now := time.Now().UTC()
			acc := &models.Account{
				ID:        models.NewID("acc"),
				Name:      name,
				APIKey:    models.NewAPIKey(),
				CreatedAt: now,
				UpdatedAt: now,
			}

			if err := store.CreateAccount(context.Background(), acc); err != nil {
				return fmt.Errorf("failed to create account: %w", err)
			}

			out, _ := json.MarshalIndent(acc, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	createCmd.Flags().String("name", "", "account name")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			accs, err := store.ListAccounts(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if len(accs) == 0 {
				fmt.Println("No accounts found.")
				return nil
			}

			for _, acc := range accs {
				fmt.Printf("  %s  %s  (created %s)\n", acc.ID, acc.Name, acc.CreatedAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	cmd.AddCommand(createCmd, listCmd)
	return cmd
}

func eventsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "events",
		Short: "Print the event catalog",
		Run: func(cmd *cobra.Command, args []string) {
			for _, d := range events.All() {
				fmt.Printf("  %-28s %s\n", d.Name, d.Description)
			}
		},
	}
}

func statsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show webhook delivery stats for an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return fmt.Errorf("usage: hookd stats <account_id>")
			}

			store, cleanup, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := store.GetWebhookStats(context.Background(), args[0])
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			out, _ := json.MarshalIndent(stats, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Hookd v%s\n", version)
		},
	}
}

func limitRules(cfg config.RateLimitConfig) []ratelimit.Rule {
	rules := make([]ratelimit.Rule, 0, len(cfg.Rules))
	for _, r := range cfg.Rules {
		rules = append(rules, ratelimit.Rule{
			Endpoint: r.Endpoint,
			Limit:    r.Limit,
			Period:   models.RatePeriod(r.Period),
		})
	}
	return rules
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func setupStorage(cfg config.StorageConfig, log zerolog.Logger) (storage.Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		log.Info().Str("path", cfg.SQLite.Path).Msg("using SQLite storage")
		return storage.NewSQLite(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Driver)
	}
}

func storeFromConfig(configPath string) (storage.Storage, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	log := setupLogger(cfg.Logging)
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, func() { store.Close() }, nil
}
