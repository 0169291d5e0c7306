// cmd/tools/chatopsctl/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"infra-chatops/internal/bootstrap"
	"infra-chatops/internal/common/config"
	"infra-chatops/internal/common/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "chatopsctl",
	Short:         "Operate and test the infra-chatops catalogs and workflows",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (defaults to configs/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

func newLogger() logger.Logger {
	return logger.NewStructured(logLevel, "console")
}

// loadAll reads the config and every catalog.
func loadAll() (*config.Config, *bootstrap.Catalogs, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cats, err := bootstrap.LoadCatalogs(cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cats, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
