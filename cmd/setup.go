package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/spf13/cobra"

	"adstoryboard/internal/gemini"
	"adstoryboard/pkg/config"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard for Adstoryboard",
	Long:  `Configure API keys, verify them, and create the output directory.`,
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	fmt.Println(titleStyle.Render("🎬 Adstoryboard Setup"))

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"Creating directories", createDirectories},
		{"Configuring environment", configureEnv},
	}

	for _, step := range steps {
		if err := step.fn(cmd.Context()); err != nil {
			return fmt.Errorf("%s: %w", strings.ToLower(step.name), err)
		}
	}

	return nil
}

// createDirectories creates the output.dir that generate will write to.
func createDirectories(ctx context.Context) error {
	dir := "output"
	if cfg, err := config.LoadFrom(ctx, configPath); err == nil {
		dir = cfg.Output.Dir
	}
	return ensureOutputDir(dir)
}

func ensureOutputDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	fmt.Println(successStyle.Render("✓ Created output directory " + dir))
	return nil
}

func configureEnv(ctx context.Context) error {
	if _, err := os.Stat(".env"); err == nil {
		var overwrite bool
		if err := huh.NewConfirm().
			Title("Found existing .env file").
			Description("Overwrite?").
			Value(&overwrite).
			Run(); err != nil {
			return err
		}
		if !overwrite {
			fmt.Println(infoStyle.Render("Kept existing .env"))
			return nil
		}
	}

	env := make(map[string]string)

	if err := configureGeminiKey(ctx, env); err != nil {
		return err
	}
	if err := configureGroqKey(env); err != nil {
		return err
	}
	if err := configureBucket(env); err != nil {
		return err
	}

	return writeEnvFile(env)
}

func configureGeminiKey(ctx context.Context, env map[string]string) error {
	var key string
	if err := huh.NewInput().
		Title("Gemini API Key").
		Description("https://aistudio.google.com/apikey").
		EchoMode(huh.EchoModePassword).
		Value(&key).
		Validate(required("Gemini API Key")).
		Run(); err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	env["GEMINI_API_KEY"] = key

	err := runWithSpinner("Verifying Gemini key", func() error {
		client, err := gemini.NewClient(ctx, gemini.Config{APIKey: key, TextModel: setupTextModel()})
		if err != nil {
			return err
		}
		verifyCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
		defer cancel()
		return client.HealthCheck(verifyCtx)
	})
	if err != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("Key not verified: %v", err)))
	}
	return nil
}

func configureGroqKey(env map[string]string) error {
	var setup bool
	if err := huh.NewConfirm().
		Title("Use Groq for scripts?").
		Description("Scripts are written by Groq, images still come from Gemini (optional)").
		Value(&setup).
		Run(); err != nil || !setup {
		return err
	}

	var key string
	if err := huh.NewInput().
		Title("GROQ API Key").
		Description("https://console.groq.com/keys").
		EchoMode(huh.EchoModePassword).
		Value(&key).
		Run(); err != nil {
		return err
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	env["GROQ_API_KEY"] = key
	fmt.Println(infoStyle.Render("Set script_backend: groq in config.yaml to use it"))
	return nil
}

func configureBucket(env map[string]string) error {
	var setup bool
	if err := huh.NewConfirm().
		Title("Store storyboards in Google Cloud Storage?").
		Description("Defaults to the local output directory").
		Value(&setup).
		Run(); err != nil || !setup {
		return err
	}

	var project, bucket string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Google Cloud Project").
				Value(&project),
			huh.NewInput().
				Title("Bucket name").
				Value(&bucket).
				Validate(required("Bucket name")),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	if project = strings.TrimSpace(project); project != "" {
		env["GOOGLE_CLOUD_PROJECT"] = project
	}
	env["GCS_BUCKET"] = strings.TrimSpace(bucket)
	return nil
}

func writeEnvFile(env map[string]string) error {
	f, err := os.Create(".env")
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	order := []string{
		"GEMINI_API_KEY",
		"GROQ_API_KEY",
		"GOOGLE_CLOUD_PROJECT",
		"GCS_BUCKET",
	}

	for _, key := range order {
		if val, ok := env[key]; ok && val != "" {
			_, _ = fmt.Fprintf(f, "%s=%s\n", key, val)
		}
	}

	fmt.Println(successStyle.Render("✓ Created .env file"))
	printNextSteps()
	return nil
}

func printNextSteps() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Next steps:"))
	fmt.Println("  1. List creative options: adstoryboard options")
	fmt.Println("  2. Run: adstoryboard generate --image product.jpg --description \"your product\"")
	fmt.Println("  3. Or start the API: adstoryboard serve")
}

// setupTextModel reads the configured model so the key is checked against
// the model generation will use.
func setupTextModel() string {
	cfg, err := config.LoadFrom(context.Background(), configPath)
	if err != nil {
		return "gemini-2.5-pro"
	}
	return cfg.Gemini.TextModel
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func runWithSpinner(title string, fn func() error) error {
	var err error
	_ = spinner.New().
		Title(title).
		Action(func() { err = fn() }).
		Run()
	if err != nil {
		return err
	}
	fmt.Println(successStyle.Render("✓ " + title))
	return nil
}
