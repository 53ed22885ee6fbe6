package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"GasMonitorAPI/internal/app"
	"GasMonitorAPI/internal/config"
	"GasMonitorAPI/internal/logger"
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
	appLog    *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:           "gasmonitor",
	Short:         "Gas exposure monitoring pipeline",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		log, err := logger.New(cfg.Logging.Logger())
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}
		appLog = log
		appHandle = app.New(cfg, log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLog != nil {
			appLog.Close()
		}
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
