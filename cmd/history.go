package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"adstoryboard/internal/app"
	"adstoryboard/internal/storage"
	"adstoryboard/pkg/config"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List stored storyboards",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of storyboards to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// History only reads the sink, so no backend credential is needed.
	cfg.Backend = config.BackendFake
	cfg.ScriptBackend = config.BackendFake

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	manifests, err := service.Sink().List(ctx)
	if err != nil {
		return fmt.Errorf("list storyboards: %w", err)
	}
	if len(manifests) == 0 {
		fmt.Println(infoStyle.Render("No storyboards yet"))
		return nil
	}

	if historyLimit > 0 && len(manifests) > historyLimit {
		manifests = manifests[:historyLimit]
	}
	for _, m := range manifests {
		fmt.Printf("%s  %s  %d/6  %s\n",
			m.CreatedAt.Local().Format("2006-01-02 15:04"),
			statusLabel(m.Status),
			len(m.Scenes),
			labelStyle.Render(m.ID),
		)
	}
	return nil
}

func statusLabel(s storage.Status) string {
	switch s {
	case storage.StatusComplete:
		return successStyle.Render(fmt.Sprintf("%-8s", s))
	case storage.StatusFailed:
		return errorStyle.Render(fmt.Sprintf("%-8s", s))
	default:
		return warnStyle.Render(fmt.Sprintf("%-8s", s))
	}
}
