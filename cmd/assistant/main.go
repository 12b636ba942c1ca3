package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/config"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
)

var (
	envFile  string
	logLevel string
	timeout  time.Duration

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Emotion-aware voice assistant",
	Long: `Talk to the assistant from a terminal.

Available subcommands:
  talk  - interactive session, press Enter to speak or type a message
  say   - send one text message and print the reply
  probe - exercise the speech backends directly`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for a single exchange")

	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(probeCmd)
}

// setup 加载 .env 与配置并创建 logger。
func setup(*cobra.Command, []string) error {
	envErr := godotenv.Load(envFile)

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger, err = logging.New(cfg.Log)
	if err != nil {
		return err
	}
	zap.ReplaceGlobals(logger)

	if envErr != nil {
		logger.Debug("no dotenv file loaded", zap.String("path", envFile), zap.Error(envErr))
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
