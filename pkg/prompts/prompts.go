package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

const defaultPromptsPath = "prompts.yaml"

//go:embed default.yaml
var defaultPrompts []byte

type Prompts struct {
	System SystemPrompts `yaml:"system"`
	Script ScriptPrompts `yaml:"script"`
	Image  ImagePrompts  `yaml:"image"`
}

type SystemPrompts struct {
	Director string `yaml:"director"`
}

type ScriptPrompts struct {
	Storyboard  string `yaml:"storyboard"`
	Description string `yaml:"description"`
	VoiceOver   string `yaml:"voice_over"`
	Backsound   string `yaml:"backsound"`
}

type ImagePrompts struct {
	Scene string `yaml:"scene"`
}

type StoryboardParams struct {
	Description string
	Vibe        string
	Lighting    string
	ContentType string
	SceneCount  int
	Language    string
}

type SceneParams struct {
	SceneDescription string
	Language         string
}

// Default returns the built-in prompt set.
func Default() (*Prompts, error) {
	return parse(defaultPrompts)
}

// Load reads prompts.yaml from the working directory, falling back to the
// built-in set when the file does not exist.
func Load() (*Prompts, error) {
	if _, err := os.Stat(defaultPromptsPath); os.IsNotExist(err) {
		return Default()
	}
	return LoadFrom(defaultPromptsPath)
}

// LoadFrom reads a prompt file. Keys missing from the file keep their
// built-in values.
func LoadFrom(path string) (*Prompts, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	p, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	return p, nil
}

func parse(data []byte) (*Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return &p, nil
}

func (p *Prompts) RenderStoryboard(params StoryboardParams) (string, error) {
	return render(p.Script.Storyboard, params)
}

func (p *Prompts) RenderScene(params SceneParams) (string, error) {
	return render(p.Image.Scene, params)
}

// Validate checks that every template parses.
func (p *Prompts) Validate() error {
	templates := map[string]string{
		"script.storyboard": p.Script.Storyboard,
		"image.scene":       p.Image.Scene,
	}
	for name, tmpl := range templates {
		if tmpl == "" {
			return fmt.Errorf("prompt %s is empty", name)
		}
		if _, err := template.New(name).Parse(tmpl); err != nil {
			return fmt.Errorf("prompt %s: %w", name, err)
		}
	}
	return nil
}

func render(tmpl string, data any) (string, error) {
	t, err := template.New("prompt").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
