package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"adstoryboard/internal/storyboard"
)

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "List the available creative options",
	Run: func(cmd *cobra.Command, args []string) {
		catalog := storyboard.DefaultCatalog()
		printOptions("Vibes (--vibe)", catalog.Vibes)
		printOptions("Lighting (--lighting)", catalog.Lightings)
		printOptions("Content types (--content-type)", catalog.ContentTypes)
	},
}

func init() {
	rootCmd.AddCommand(optionsCmd)
}

func printOptions(title string, options []storyboard.Option) {
	fmt.Println(titleStyle.Render(title))
	for _, o := range options {
		fmt.Printf("  %-18s %s\n", o.ID, labelStyle.Render(o.Label))
	}
	fmt.Println()
}
