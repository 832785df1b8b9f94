// File: cmd/enricher/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/evm-address-enricher/internal/config"
	"github.com/smartdevs17/evm-address-enricher/internal/connection"
	"github.com/smartdevs17/evm-address-enricher/internal/enricher"
	"github.com/smartdevs17/evm-address-enricher/internal/explorer"
	"github.com/smartdevs17/evm-address-enricher/internal/metrics"
	"github.com/smartdevs17/evm-address-enricher/internal/models"
	"github.com/smartdevs17/evm-address-enricher/internal/server"
	"github.com/smartdevs17/evm-address-enricher/internal/storage"
	"github.com/smartdevs17/evm-address-enricher/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

var (
	configPath string
	logLevel   string
)

// Application represents the main application
type Application struct {
	config   *config.Config
	logger   *logrus.Entry
	metrics  *metrics.Manager
	storage  storage.Storage
	explorer *explorer.Client
	node     *connection.NodeClient
	enricher *enricher.Enricher
	server   *server.HTTPServer
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.ComponentLogger("app")
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initializeSources(); err != nil {
		return fmt.Errorf("failed to initialize explorer: %w", err)
	}

	var code enricher.CodeSource = app.explorer
	if app.node != nil {
		code = app.node
	}

	var err error
	app.enricher, err = enricher.NewEnricher(
		&enricher.EnricherConfig{RequestDelay: app.config.Explorer.RequestDelay},
		app.storage,
		code,
		app.explorer,
		app.metrics,
	)
	if err != nil {
		return fmt.Errorf("failed to create enricher: %w", err)
	}

	if app.config.Server.Enabled {
		if err := app.initializeServer(); err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
	}

	return nil
}

// initializeStorage connects to the database and creates the addresses table
func (app *Application) initializeStorage() error {
	app.logger.WithFields(logrus.Fields{
		"type": app.config.Storage.Type,
		"dsn":  app.config.Storage.RedactedDSN(),
	}).Info("Connecting to database")

	store, err := storage.NewStorage(&app.config.Storage)
	if err != nil {
		return err
	}
	if err := store.Connect(); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		return err
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics)
	return nil
}

// initializeSources creates the explorer client and, if configured, the RPC node client
func (app *Application) initializeSources() error {
	var err error
	app.explorer, err = explorer.NewClient(&explorer.ClientConfig{
		BaseURL:        app.config.Explorer.BaseURL,
		APIKey:         app.config.Explorer.APIKey,
		RequestTimeout: app.config.Explorer.RequestTimeout,
	}, app.metrics)
	if err != nil {
		return err
	}

	if app.config.RPC.NodeURL == "" {
		return nil
	}
	app.node, err = connection.NewNodeClient(&connection.NodeConfig{
		NodeURL:        app.config.RPC.NodeURL,
		RequestTimeout: app.config.RPC.RequestTimeout,
	}, app.metrics)
	if err != nil {
		return err
	}
	app.logger.Info("Using RPC node for bytecode lookups")
	return nil
}

// initializeServer creates the status server
func (app *Application) initializeServer() error {
	var err error
	app.server, err = server.NewHTTPServer(&server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		Version:       AppVersion,
	}, app.storage, app.enricher, app.metrics)
	return err
}

// Run performs one enrichment run
func (app *Application) Run(ctx context.Context) (*models.RunStats, error) {
	if app.server != nil {
		if err := app.server.Start(); err != nil {
			return nil, err
		}
	}
	return app.enricher.Run(ctx)
}

// Close releases every component that was initialized
func (app *Application) Close() {
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}
	if app.node != nil {
		app.node.Close()
	}
	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close storage")
		}
	}
}

// loadConfig loads the configuration and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// rootCmd runs the enrichment when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "evm-address-enricher",
	Short:         "Enrich trace addresses with contract data from a block explorer",
	Version:       AppVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runEnricher,
}

func runEnricher(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := NewApplication(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = app.Run(ctx)
	return err
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("EVM Address Enricher %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("Explorer: %s\n", cfg.Explorer.BaseURL)
		fmt.Printf("Database: %s (%s)\n", cfg.Storage.Type, cfg.Storage.RedactedDSN())
		if cfg.RPC.NodeURL != "" {
			fmt.Printf("RPC node: %s\n", cfg.RPC.NodeURL)
		}
		return nil
	},
}

// testCmd checks connectivity without writing anything
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test database and explorer connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.File); err != nil {
			return err
		}
		ctx := cmd.Context()

		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&cfg.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		fmt.Printf("Testing explorer at %s...\n", cfg.Explorer.BaseURL)
		client, err := explorer.NewClient(&explorer.ClientConfig{
			BaseURL:        cfg.Explorer.BaseURL,
			APIKey:         cfg.Explorer.APIKey,
			RequestTimeout: cfg.Explorer.RequestTimeout,
		}, nil)
		if err != nil {
			return err
		}
		if _, err := client.GetCode(ctx, common.Address{}); err != nil {
			return fmt.Errorf("explorer eth_getCode failed: %w", err)
		}
		fmt.Println("✓ Explorer reachable")

		if cfg.RPC.NodeURL != "" {
			fmt.Printf("Testing RPC node...\n")
			node, err := connection.NewNodeClient(&connection.NodeConfig{
				NodeURL:        cfg.RPC.NodeURL,
				RequestTimeout: cfg.RPC.RequestTimeout,
			}, nil)
			if err != nil {
				return err
			}
			defer node.Close()
			chainID, err := node.HealthCheck(ctx)
			if err != nil {
				return fmt.Errorf("RPC node health check failed: %w", err)
			}
			fmt.Printf("✓ RPC node reachable (chain ID %d)\n", chainID)
		}

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
