package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/menta2k/undertone-analyzer/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "undertone",
	Short: "Estimate skin undertone from facial photos",
	Long: `Undertone analyzes a facial photo, samples the skin color around the
detected face and classifies it as warm, cool or neutral. It recommends
matching products from a catalog and can serve the analysis over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/undertone-analyzer/config.json)")
	rootCmd.PersistentFlags().String("detector", "", "Face detector backend: pigo, ollama, llamacpp or none (default none; pigo needs a facefinder cascade at detector.model_path)")
	rootCmd.PersistentFlags().String("model", "", "Vision model name for the ollama and llamacpp backends")
	rootCmd.PersistentFlags().String("url", "", "Server URL for the ollama and llamacpp backends")
	rootCmd.PersistentFlags().String("catalog", "", "Product catalog YAML file")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the config file and environment, then applies flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := mustGetString(cmd, "config")
	if path == "" {
		path = config.GetConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if v := mustGetString(cmd, "detector"); v != "" {
		cfg.Detector.Backend = v
	}
	if v := mustGetString(cmd, "model"); v != "" {
		cfg.Detector.Model = v
	}
	if v := mustGetString(cmd, "url"); v != "" {
		cfg.Detector.URL = v
	}
	if v := mustGetString(cmd, "catalog"); v != "" {
		cfg.Catalog.Path = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
