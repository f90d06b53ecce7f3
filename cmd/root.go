package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"adstoryboard/pkg/config"
)

var (
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "adstoryboard",
	Short: "Generate ad storyboards from a product photo",
	Long: `Adstoryboard turns a product photo and a short description into a
six-scene ad storyboard: a visual description, voice-over and backsound for
every scene, plus a generated image that keeps the original product.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogger()
	}
}

func Execute() error {
	return rootCmd.Execute()
}

func setupLogger() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.LoadFrom(cmd.Context(), configPath)
}
