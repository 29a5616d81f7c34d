package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"expensewise/internal/backend"
	"expensewise/internal/cli"
	"expensewise/internal/config"
	applog "expensewise/internal/log"
)

var (
	cfgFile string
	logger  *applog.Logger
	rootCmd = &cobra.Command{
		Use:   "expensewise-cli",
		Short: "Administer an ExpenseWise installation",
		Long: `expensewise-cli manages the ExpenseWise document store: schema migrations,
user accounts, and read-only spending summaries per user.

Settings come from flags, EXPENSEWISE_* environment variables, an optional
config file, and finally the same environment the server reads.`,
		PersistentPreRunE: initConfig,
		SilenceUsage:      true,
	}
)

// Viper keys mapped onto config.Config fields.
var settingKeys = []string{
	"backend", "sqlite_db_path", "mongo_uri", "mongo_database", "data_directory",
	"timezone", "filter_policy", "week_start", "log_level", "log_format",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./expensewise.yaml)")
	rootCmd.PersistentFlags().String("backend", "", "data backend (memory, sqlite, mongo)")
	rootCmd.PersistentFlags().String("sqlite-db-path", "", "SQLite database file")
	rootCmd.PersistentFlags().String("mongo-uri", "", "MongoDB connection URI")
	rootCmd.PersistentFlags().String("mongo-database", "", "MongoDB database name")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")

	_ = viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("sqlite_db_path", rootCmd.PersistentFlags().Lookup("sqlite-db-path"))
	_ = viper.BindPFlag("mongo_uri", rootCmd.PersistentFlags().Lookup("mongo-uri"))
	_ = viper.BindPFlag("mongo_database", rootCmd.PersistentFlags().Lookup("mongo-database"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(usersCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(categoriesCmd())
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(_ *cobra.Command, _ []string) error {
	cli.LoadEnvFile()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("expensewise")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("EXPENSEWISE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	for _, key := range settingKeys {
		_ = viper.BindEnv(key)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	level := applog.ParseLevel(viper.GetString("log_level"))
	logger = applog.New(applog.Config{
		Level:     level,
		Component: "cli",
		Handler:   applog.NewHandler(os.Stderr, viper.GetString("log_format"), level),
	})
	applog.SetDefault(logger)
	return nil
}

// loadConfig reads the server environment and applies CLI overrides on top.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	overrides := map[string]*string{
		"backend":        &cfg.DataBackend,
		"sqlite_db_path": &cfg.SQLiteDBPath,
		"mongo_uri":      &cfg.MongoURI,
		"mongo_database": &cfg.MongoDatabase,
		"data_directory": &cfg.DataDirectory,
		"timezone":       &cfg.Timezone,
		"filter_policy":  &cfg.FilterPolicy,
		"week_start":     &cfg.WeekStart,
	}
	for key, field := range overrides {
		if v := viper.GetString(key); v != "" {
			*field = v
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openBackend opens the configured store; callers must run Cleanup.
func openBackend(ctx context.Context) (*config.Config, *backend.BackendResult, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, res, nil
}
