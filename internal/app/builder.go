package app

import (
	"context"
	"fmt"

	"adstoryboard/internal/fake"
	"adstoryboard/internal/gemini"
	"adstoryboard/internal/groq"
	"adstoryboard/internal/storage"
	"adstoryboard/internal/storyboard"
	"adstoryboard/pkg/config"
	"adstoryboard/pkg/httputil"
	"adstoryboard/pkg/prompts"
)

type BuildOptions struct {
	// NoSave disables the storage sink.
	NoSave bool
}

func BuildService(ctx context.Context, cfg *config.Config, opts BuildOptions) (*Service, error) {
	p, err := loadPrompts(cfg)
	if err != nil {
		return nil, err
	}

	var closers []func() error
	var health HealthChecker

	var geminiClient *gemini.Client
	if cfg.Backend == config.BackendGemini || cfg.ScriptBackend == config.BackendGemini {
		geminiClient, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:       cfg.GeminiAPIKey,
			Vertex:       cfg.Gemini.Vertex,
			Project:      cfg.GCPProject,
			Location:     cfg.Gemini.Location,
			TextModel:    cfg.Gemini.TextModel,
			ImageModel:   cfg.Gemini.ImageModel,
			SystemPrompt: p.System.Director,
			DailyLimit:   cfg.Gemini.DailyLimit,
			HTTPClient:   httputil.NewRetryClient(0, cfg.Gemini.Transport),
		})
		if err != nil {
			return nil, err
		}
		health = geminiClient
	}

	var fakeBackend *fake.Backend
	if cfg.Backend == config.BackendFake || cfg.ScriptBackend == config.BackendFake {
		fakeBackend = fake.New()
	}

	var images storyboard.ImageGenerator
	switch cfg.Backend {
	case config.BackendGemini:
		images = geminiClient
	case config.BackendFake:
		images = fakeBackend
	default:
		return nil, fmt.Errorf("backend %q cannot generate images", cfg.Backend)
	}

	var text storyboard.TextGenerator
	switch cfg.ScriptBackend {
	case config.BackendGemini:
		text = geminiClient
	case config.BackendGroq:
		groqClient, err := groq.NewClient(cfg.GroqAPIKey, cfg.Groq.Model, p.System.Director, cfg.Groq.BaseURL)
		if err != nil {
			return nil, err
		}
		text = groqClient
	case config.BackendFake:
		text = fakeBackend
	default:
		return nil, fmt.Errorf("unknown script backend %q", cfg.ScriptBackend)
	}

	var sink storage.Sink
	if !opts.NoSave {
		sink, err = buildSink(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if gcs, ok := sink.(*storage.GCSSink); ok {
			closers = append(closers, gcs.Close)
		}
	}

	composer := storyboard.NewComposer(p, cfg.Generation.Language)
	orchestrator := storyboard.NewOrchestrator(composer, text, images, storyboard.Options{
		ScriptTimeout: cfg.Generation.ScriptTimeout,
		ImageTimeout:  cfg.Generation.ImageTimeout,
		ScriptRetry:   phaseRetry(cfg.Generation.ScriptRetries),
		ImageRetry:    phaseRetry(cfg.Generation.ImageRetries),
		RateInterval:  cfg.Generation.RateInterval,
	})

	return NewService(ServiceOptions{
		Config:       cfg,
		Orchestrator: orchestrator,
		Sink:         sink,
		Health:       health,
		Closers:      closers,
	}), nil
}

func loadPrompts(cfg *config.Config) (*prompts.Prompts, error) {
	var p *prompts.Prompts
	var err error
	if cfg.PromptsPath != "" {
		p, err = prompts.LoadFrom(cfg.PromptsPath)
	} else {
		p, err = prompts.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid prompts: %w", err)
	}
	return p, nil
}

func buildSink(ctx context.Context, cfg *config.Config) (storage.Sink, error) {
	if cfg.Output.GCS.Enabled {
		return storage.NewGCSSink(ctx, cfg.Output.GCS.Bucket, cfg.Output.GCS.Prefix, cfg.Output.GCS.CredentialsFile)
	}
	return storage.NewLocalSink(cfg.Output.Dir), nil
}

func phaseRetry(retries int) httputil.RetryConfig {
	cfg := httputil.DefaultRetryConfig()
	cfg.MaxRetries = retries
	return cfg
}
