package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"adstoryboard/internal/imageprep"
	"adstoryboard/internal/storage"
	"adstoryboard/internal/storyboard"
)

type Pipeline struct {
	service *Service
	now     func() time.Time
}

type GenerateRequest struct {
	Description string
	Selection   storyboard.Selection
	Image       []byte
}

type GenerateResult struct {
	Manifest *storage.Manifest
	Scenes   []storyboard.Scene
	// Message is the localized user-facing message for Err.
	Message string
	Err     error
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service, now: time.Now}
}

// Prepare turns raw request input into validated CreativeParameters.
func (pipeline *Pipeline) Prepare(req GenerateRequest) (storyboard.CreativeParameters, error) {
	cfg := pipeline.service.Config()

	image, err := imageprep.Prepare(req.Image, cfg.Image.MaxDimension)
	if err != nil {
		return storyboard.CreativeParameters{}, err
	}
	return pipeline.service.Catalog().Resolve(req.Description, req.Selection, image)
}

// Generate runs one storyboard. onScene may be nil. Scenes are persisted to
// the sink as they arrive and the manifest is written when generation ends,
// whether it succeeded or not. Validation failures are returned without
// touching the sink.
func (pipeline *Pipeline) Generate(ctx context.Context, req GenerateRequest, onScene func(storyboard.Scene)) (*GenerateResult, error) {
	params, err := pipeline.Prepare(req)
	if err != nil {
		return nil, err
	}
	return pipeline.Run(ctx, params, onScene)
}

func (pipeline *Pipeline) Run(ctx context.Context, params storyboard.CreativeParameters, onScene func(storyboard.Scene)) (*GenerateResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	cfg := pipeline.service.Config()
	sink := pipeline.service.Sink()
	now := pipeline.now()

	manifest := &storage.Manifest{
		ID:          newStoryboardID(now, params.Description),
		CreatedAt:   now.UTC(),
		Description: params.Description,
		Vibe:        params.Vibe,
		Lighting:    params.Lighting,
		ContentType: params.ContentType,
		Status:      storage.StatusRunning,
	}
	result := &GenerateResult{Manifest: manifest}

	slog.Info("Starting storyboard", "id", manifest.ID)

	genErr := pipeline.service.Orchestrator().Generate(ctx, params, func(scene storyboard.Scene) {
		record := storage.SceneRecord{Index: scene.Index, SceneScript: scene.SceneScript}
		if sink != nil {
			name, err := sink.SaveScene(ctx, manifest.ID, scene)
			if err != nil {
				slog.Warn("Failed to save scene", "id", manifest.ID, "index", scene.Index, "error", err)
			}
			record.Image = name
		}
		manifest.Scenes = append(manifest.Scenes, record)
		result.Scenes = append(result.Scenes, scene)

		if onScene != nil {
			onScene(scene)
		}
	})

	if genErr != nil {
		manifest.Status = storage.StatusFailed
		manifest.Error = genErr.Error()
		result.Err = genErr
		result.Message = storyboard.UserMessage(genErr, cfg.Generation.Locale)
		manifest.Message = result.Message
	} else {
		manifest.Status = storage.StatusComplete
	}

	if sink != nil {
		// The request context may already be cancelled; the manifest still
		// records the outcome.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := sink.SaveManifest(saveCtx, manifest); err != nil {
			slog.Warn("Failed to save manifest", "id", manifest.ID, "error", err)
		}
	}

	slog.Info("Storyboard finished", "id", manifest.ID, "status", manifest.Status, "scenes", len(manifest.Scenes))
	return result, genErr
}

// IsInputError reports whether err came from request validation.
func IsInputError(err error) bool {
	var validationErr *storyboard.InputValidationError
	return errors.As(err, &validationErr)
}
