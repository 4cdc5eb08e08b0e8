package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/viant/warden"
)

var (
	version    = "0.1.0"
	logger     = slog.Default()
	configPath string
	verbose    bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "warden",
		Short:        "Warden: approval and audit gate for agentic operations",
		Long:         "Warden classifies operation requests by risk, auto-approves them by rule or holds them for a human decision, executes approved ones exactly once and keeps a hash-chained audit trail.",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.warden/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(submitCmd())
	root.AddCommand(decideCmd())
	root.AddCommand(getCmd())
	root.AddCommand(pendingCmd())
	root.AddCommand(trailCmd())
	root.AddCommand(verifyCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(recoverCmd())
	root.AddCommand(reportCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(kindsCmd())
	root.AddCommand(serveCmd())
	return root
}

func defaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// loadConfig reads the config file, if any, with WARDEN_* environment overrides.
func loadConfig() (*warden.Config, error) {
	v := viper.New()
	setDefaults(v, warden.DefaultConfig())
	v.SetEnvPrefix("WARDEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %v: %w", configPath, err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(defaultHome())
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}
	config := &warden.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	logger.Debug("config_loaded", "file", v.ConfigFileUsed(), "store", config.Store.Vendor, "audit", config.AuditVendor())
	return config, nil
}

// setDefaults registers every key so that environment overrides apply on Unmarshal.
func setDefaults(v *viper.Viper, config *warden.Config) {
	home := defaultHome()
	v.SetDefault("store.vendor", warden.StoreFS)
	v.SetDefault("store.baseURL", home)
	v.SetDefault("store.dsn", "")
	v.SetDefault("audit.vendor", "")
	v.SetDefault("audit.baseURL", "")
	v.SetDefault("audit.dsn", "")
	v.SetDefault("audit.retries", config.Audit.Retries)
	v.SetDefault("audit.retryDelay", config.Audit.RetryDelay)
	v.SetDefault("approval.strict", false)
	v.SetDefault("classification.file", "")
	v.SetDefault("rules.file", "")
	v.SetDefault("execution.workers", 0)
	v.SetDefault("execution.maxRetries", config.Execution.MaxRetries)
	v.SetDefault("execution.retryDelay", config.Execution.RetryDelay)
	v.SetDefault("events.vendor", warden.EventsNone)
	v.SetDefault("events.baseURL", filepath.Join(home, "events"))
	v.SetDefault("workspace.baseURL", config.Workspace.BaseURL)
	v.SetDefault("workspace.vscodeBinary", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service", config.Tracing.Service)
	v.SetDefault("tracing.version", version)
	v.SetDefault("tracing.outputFile", "")
}

// withService runs fn against a service built from the loaded config.
func withService(ctx context.Context, mutate func(config *warden.Config), fn func(ctx context.Context, srv *warden.Service) error) (err error) {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if mutate != nil {
		mutate(config)
	}
	srv, err := warden.New(ctx, warden.WithConfig(config), warden.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		if sErr := srv.Shutdown(context.Background()); sErr != nil && err == nil {
			err = sErr
		}
	}()
	return fn(ctx, srv)
}

// inline executes approved requests before the command returns.
func inline(config *warden.Config) {
	config.Execution.Workers = 0
}

func printJSON(cmd *cobra.Command, value interface{}) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
