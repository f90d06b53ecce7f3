package storyboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"adstoryboard/pkg/httputil"
)

// ErrNoImage is returned when an image call succeeded without a payload.
var ErrNoImage = errors.New("no image returned")

type Options struct {
	ScriptTimeout time.Duration
	ImageTimeout  time.Duration
	ScriptRetry   httputil.RetryConfig
	ImageRetry    httputil.RetryConfig
	// RateInterval spaces consecutive image calls. Zero disables spacing.
	RateInterval time.Duration
}

type Orchestrator struct {
	composer *Composer
	text     TextGenerator
	images   ImageGenerator
	opts     Options
	limiter  *rate.Limiter
}

func NewOrchestrator(composer *Composer, text TextGenerator, images ImageGenerator, opts Options) *Orchestrator {
	o := &Orchestrator{
		composer: composer,
		text:     text,
		images:   images,
		opts:     opts,
	}
	if opts.RateInterval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(opts.RateInterval), 1)
	}
	return o
}

// Generate runs both phases and calls onScene once per finished scene, in
// ascending index order, before the next image call starts. Scenes already
// passed to onScene stay valid when a later scene fails.
func (o *Orchestrator) Generate(ctx context.Context, params CreativeParameters, onScene func(Scene)) error {
	req, err := o.composer.Compose(params)
	if err != nil {
		return err
	}

	slog.Info("Generating scene scripts", "description", params.Description)
	scripts, err := o.generateScripts(ctx, req)
	if err != nil {
		return err
	}
	slog.Debug("Scene scripts ready", "count", len(scripts))

	for i, script := range scripts {
		index := i + 1
		scene, err := o.generateScene(ctx, req, index, script)
		if err != nil {
			slog.Warn("Scene image failed", "index", index, "error", err)
			return err
		}
		slog.Info("Scene ready", "index", index, "total", len(scripts))
		onScene(scene)
	}

	return nil
}

// Stream runs Generate in a goroutine. The scene channel is closed when
// generation ends; the error channel then yields exactly one value, nil on
// success.
func (o *Orchestrator) Stream(ctx context.Context, params CreativeParameters) (<-chan Scene, <-chan error) {
	scenes := make(chan Scene, SceneCount)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		err := o.Generate(ctx, params, func(s Scene) {
			scenes <- s
		})
		close(scenes)
		errc <- err
	}()

	return scenes, errc
}

func (o *Orchestrator) generateScripts(ctx context.Context, req *Request) ([]SceneScript, error) {
	var scripts []SceneScript

	err := httputil.Retry(ctx, o.opts.ScriptRetry, func(ctx context.Context) error {
		callCtx, cancel := withTimeout(ctx, o.opts.ScriptTimeout)
		defer cancel()

		text, err := o.text.GenerateStructuredText(callCtx, req.ScriptPrompt, req.Image, req.Schema)
		if err != nil {
			return &StructuredOutputError{Reason: "request failed", Err: err}
		}

		parsed, err := ParseScripts(text)
		if err != nil {
			return err
		}
		scripts = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return scripts, nil
}

func (o *Orchestrator) generateScene(ctx context.Context, req *Request, index int, script SceneScript) (Scene, error) {
	fail := func(err error) (Scene, error) {
		return Scene{}, &ImageGenerationError{Index: index, Description: script.Description, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return fail(err)
		}
	}

	prompt, err := req.ImagePrompt(script.Description)
	if err != nil {
		return fail(fmt.Errorf("render image prompt: %w", err))
	}

	slog.Info("Generating scene image", "index", index)

	var image *Payload
	err = httputil.Retry(ctx, o.opts.ImageRetry, func(ctx context.Context) error {
		callCtx, cancel := withTimeout(ctx, o.opts.ImageTimeout)
		defer cancel()

		payload, err := o.images.GenerateImage(callCtx, prompt, req.Image)
		if err != nil {
			return err
		}
		if payload == nil || payload.Data == "" {
			return ErrNoImage
		}
		image = payload
		return nil
	})
	if err != nil {
		return fail(err)
	}

	if image.MIMEType == "" {
		image.MIMEType = "image/png"
	}

	return Scene{
		Index:       index,
		SceneScript: script,
		Image:       image.DataURI(),
	}, nil
}

type rawScript struct {
	Description *string `json:"description"`
	VoiceOver   *string `json:"voiceOver"`
	Backsound   *string `json:"backsound"`
}

// ParseScripts decodes a script batch. The batch must contain exactly
// SceneCount entries, each with all three fields present and non-blank.
func ParseScripts(text string) ([]SceneScript, error) {
	var raw []rawScript
	if err := json.Unmarshal([]byte(CleanJSON(text)), &raw); err != nil {
		return nil, &StructuredOutputError{Reason: "malformed output", Err: err}
	}

	if len(raw) != SceneCount {
		return nil, &StructuredOutputError{Reason: fmt.Sprintf("expected %d scenes, got %d", SceneCount, len(raw))}
	}

	scripts := make([]SceneScript, 0, len(raw))
	for i, r := range raw {
		fields := []struct {
			name  string
			value *string
		}{
			{"description", r.Description},
			{"voiceOver", r.VoiceOver},
			{"backsound", r.Backsound},
		}
		for _, f := range fields {
			if f.value == nil || strings.TrimSpace(*f.value) == "" {
				return nil, &StructuredOutputError{Reason: fmt.Sprintf("scene %d is missing %s", i+1, f.name)}
			}
		}

		scripts = append(scripts, SceneScript{
			Description: strings.TrimSpace(*r.Description),
			VoiceOver:   strings.TrimSpace(*r.VoiceOver),
			Backsound:   strings.TrimSpace(*r.Backsound),
		})
	}

	return scripts, nil
}

// CleanJSON strips markdown code fences some models wrap around JSON.
func CleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
