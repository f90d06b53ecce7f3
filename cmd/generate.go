package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"adstoryboard/internal/app"
	"adstoryboard/internal/storage"
	"adstoryboard/internal/storyboard"
)

var (
	genImage       string
	genDescription string
	genVibe        string
	genLighting    string
	genContentType string
	genBackend     string
	genInteractive bool
	genNoSave      bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a storyboard from a product photo",
	Long: `Generate a six-scene ad storyboard. Scenes are printed as soon as their
image is ready and saved to the configured output.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		if genInteractive {
			return nil
		}
		if genImage == "" || genDescription == "" {
			return errors.New("please provide --image and --description, or use --interactive")
		}
		return nil
	},
	RunE: runGenerate,
}

func init() {
	def := storyboard.DefaultSelection()

	generateCmd.Flags().StringVarP(&genImage, "image", "i", "", "Path to the product photo")
	generateCmd.Flags().StringVarP(&genDescription, "description", "d", "", "Product description")
	generateCmd.Flags().StringVar(&genVibe, "vibe", def.Vibe, "Vibe option id")
	generateCmd.Flags().StringVar(&genLighting, "lighting", def.Lighting, "Lighting option id")
	generateCmd.Flags().StringVar(&genContentType, "content-type", def.ContentType, "Content type option id")
	generateCmd.Flags().StringVar(&genBackend, "backend", "", "Override backend (gemini, fake)")
	generateCmd.Flags().BoolVar(&genInteractive, "interactive", false, "Fill in the request with a form")
	generateCmd.Flags().BoolVar(&genNoSave, "no-save", false, "Do not persist the storyboard")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if genBackend != "" {
		cfg.OverrideBackend(genBackend)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if genInteractive {
		if err := runGenerateForm(); err != nil {
			return err
		}
	}

	image, err := os.ReadFile(genImage)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	service, err := app.BuildService(ctx, cfg, app.BuildOptions{NoSave: genNoSave})
	if err != nil {
		return err
	}
	defer func() { _ = service.Close() }()

	pipeline := app.NewPipeline(service)

	fmt.Println(titleStyle.Render("🎬 Generating storyboard"))

	result, err := pipeline.Generate(ctx, app.GenerateRequest{
		Description: genDescription,
		Selection: storyboard.Selection{
			Vibe:        genVibe,
			Lighting:    genLighting,
			ContentType: genContentType,
		},
		Image: image,
	}, func(scene storyboard.Scene) {
		fmt.Println(renderSceneCard(scene, ""))
	})

	if result == nil {
		fmt.Println(errorStyle.Render(storyboard.UserMessage(err, cfg.Generation.Locale)))
		return err
	}

	if sink, ok := service.Sink().(*storage.LocalSink); ok {
		fmt.Println(infoStyle.Render("Saved to " + sink.Path(result.Manifest.ID)))
	} else if service.Sink() != nil {
		fmt.Println(infoStyle.Render("Saved as " + result.Manifest.ID))
	}

	if err != nil {
		fmt.Println(errorStyle.Render(result.Message))
		return err
	}

	fmt.Println(successStyle.Render(fmt.Sprintf("✓ %d scenes generated", len(result.Scenes))))
	return nil
}

func runGenerateForm() error {
	catalog := storyboard.DefaultCatalog()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Product photo").
				Description("Path to a JPEG, PNG or WebP file").
				Value(&genImage).
				Validate(func(s string) error {
					if _, err := os.Stat(s); err != nil {
						return fmt.Errorf("file not found")
					}
					return nil
				}),
			huh.NewText().
				Title("Product description").
				Placeholder("Kemeja flanel katun, nyaman untuk sehari-hari").
				Value(&genDescription).
				Validate(required("Description")),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Vibe").
				Options(formOptions(catalog.Vibes)...).
				Value(&genVibe),
			huh.NewSelect[string]().
				Title("Lighting").
				Options(formOptions(catalog.Lightings)...).
				Value(&genLighting),
			huh.NewSelect[string]().
				Title("Content type").
				Options(formOptions(catalog.ContentTypes)...).
				Value(&genContentType),
		),
	)

	return form.Run()
}

func formOptions(options []storyboard.Option) []huh.Option[string] {
	out := make([]huh.Option[string], len(options))
	for i, o := range options {
		out[i] = huh.NewOption(o.Label, o.ID)
	}
	return out
}
