package main

import (
	"fmt"
	"os"

	"faceauth-go/config"
	"faceauth-go/internal/logger"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	cfg        *config.Config
	closeLog   = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "faceauth",
	Short: "Face-based authentication",
	Long: `faceauth registers reference faces per identity, trains a recognizer from
them and authenticates people by comparing camera frames against the
registered identities. It runs as an HTTP service or as a command line tool.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		closeLog, err = logger.Init(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if err := closeLog(); err != nil {
			log.Warnf("Logdatei konnte nicht geschlossen werden: %v", err)
		}
	},
}

// Execute führt das Root-Kommando aus
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to the YAML configuration file")
}

func initEnv() {
	// .env ist optional
	_ = godotenv.Load()
}
