package storyboard

import (
	"fmt"

	"adstoryboard/pkg/prompts"
)

// Request is the composed form of one generation request. It is immutable
// for the duration of the request.
type Request struct {
	Image        Payload
	ScriptPrompt string
	Schema       OutputSchema

	prompts  *prompts.Prompts
	language string
}

// ImagePrompt renders the per-scene image instruction for one description.
func (r *Request) ImagePrompt(description string) (string, error) {
	return r.prompts.RenderScene(prompts.SceneParams{
		SceneDescription: description,
		Language:         r.language,
	})
}

type Composer struct {
	prompts  *prompts.Prompts
	language string
}

func NewComposer(p *prompts.Prompts, language string) *Composer {
	return &Composer{prompts: p, language: language}
}

func (c *Composer) Compose(params CreativeParameters) (*Request, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	scriptPrompt, err := c.prompts.RenderStoryboard(prompts.StoryboardParams{
		Description: params.Description,
		Vibe:        params.Vibe,
		Lighting:    params.Lighting,
		ContentType: params.ContentType,
		SceneCount:  SceneCount,
		Language:    c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("render script prompt: %w", err)
	}

	return &Request{
		Image:        EncodePayload(params.SourceImage.Data, params.SourceImage.MIMEType),
		ScriptPrompt: scriptPrompt,
		Schema:       c.scriptSchema(),
		prompts:      c.prompts,
		language:     c.language,
	}, nil
}

func (c *Composer) scriptSchema() OutputSchema {
	return OutputSchema{
		Type:     TypeArray,
		MinItems: SceneCount,
		MaxItems: SceneCount,
		Items: &OutputSchema{
			Type: TypeObject,
			Properties: map[string]*OutputSchema{
				"description": {Type: TypeString, Description: c.prompts.Script.Description},
				"voiceOver":   {Type: TypeString, Description: c.prompts.Script.VoiceOver},
				"backsound":   {Type: TypeString, Description: c.prompts.Script.Backsound},
			},
			Required: []string{"description", "voiceOver", "backsound"},
		},
	}
}
