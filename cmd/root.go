package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KONFeature/wordforge/internal/config"
	"github.com/KONFeature/wordforge/internal/logging"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "wordforge",
	Short: "WordForge desktop host",
	Long: `WordForge links this machine to WordPress sites running the WordForge plugin,
keeps each site's OpenCode configuration in sync, and supervises the local
OpenCode server the sites talk to.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configFile)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/wordforge/config.yaml)")
}

func Execute() error {
	// Silence usage and errors to avoid cluttering output with Cobra defaults
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func newLogger() (*zap.SugaredLogger, error) {
	return logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
