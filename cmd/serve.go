package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"adstoryboard/internal/app"
	"adstoryboard/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the storyboard HTTP and websocket API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	if err := service.HealthCheck(ctx); err != nil {
		return err
	}

	return server.New(service).ListenAndServe(ctx)
}
