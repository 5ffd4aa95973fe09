package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/davicafu/doorbell/internal/config"
	"github.com/davicafu/doorbell/pkg/logger"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "doorbell",
	Short:         "Doorbell event service: image and button-press ingestion with live fan-out",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.LogLevel); err != nil {
			return err
		}
		log = logger.Logger()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync() // flush buffers al salir
		}
	},
	// sin subcomando arranca el servidor
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, purgeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
