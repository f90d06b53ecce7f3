package storyboard

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"adstoryboard/pkg/prompts"
)

func TestCompose(t *testing.T) {
	p, err := prompts.Default()
	if err != nil {
		t.Fatal(err)
	}
	composer := NewComposer(p, "Bahasa Indonesia")

	params := CreativeParameters{
		Description: "Cotton flannel shirt",
		Vibe:        "Energetic & Fun",
		Lighting:    "Studio Light",
		ContentType: "Hard Selling",
		SourceImage: &SourceImage{Data: []byte{0xff, 0xd8, 0xff, 0xe0}, MIMEType: "image/jpeg"},
	}

	req, err := composer.Compose(params)
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	if req.Image.MIMEType != "image/jpeg" {
		t.Errorf("Image.MIMEType = %q", req.Image.MIMEType)
	}
	if req.Image.Data != base64.StdEncoding.EncodeToString(params.SourceImage.Data) {
		t.Errorf("Image.Data = %q", req.Image.Data)
	}

	for _, want := range []string{"Cotton flannel shirt", "Energetic & Fun", "Studio Light", "Hard Selling", "Bahasa Indonesia"} {
		if !strings.Contains(req.ScriptPrompt, want) {
			t.Errorf("script prompt missing %q", want)
		}
	}

	if req.Schema.Type != TypeArray || req.Schema.MinItems != SceneCount || req.Schema.MaxItems != SceneCount {
		t.Errorf("schema = %+v, want array of exactly %d", req.Schema, SceneCount)
	}
	if got := len(req.Schema.Items.Required); got != 3 {
		t.Errorf("required fields = %d, want 3", got)
	}

	imagePrompt, err := req.ImagePrompt("Model tersenyum di taman")
	if err != nil {
		t.Fatalf("ImagePrompt() error = %v", err)
	}
	if !strings.Contains(imagePrompt, "Model tersenyum di taman") {
		t.Errorf("image prompt missing scene description: %q", imagePrompt)
	}
}

func TestComposeIsPure(t *testing.T) {
	p, _ := prompts.Default()
	composer := NewComposer(p, "Bahasa Indonesia")
	params := CreativeParameters{
		Description: "Ceramic mug",
		Vibe:        "Modern & Clean",
		Lighting:    "Natural Light",
		ContentType: "Unboxing",
		SourceImage: &SourceImage{Data: []byte("png"), MIMEType: "image/png"},
	}

	first, err := composer.Compose(params)
	if err != nil {
		t.Fatal(err)
	}
	second, err := composer.Compose(params)
	if err != nil {
		t.Fatal(err)
	}

	if first.ScriptPrompt != second.ScriptPrompt || first.Image != second.Image {
		t.Error("Compose() returned different results for the same input")
	}
	if string(params.SourceImage.Data) != "png" {
		t.Error("Compose() modified the source image")
	}
}

func TestComposeRejectsInvalidInput(t *testing.T) {
	p, _ := prompts.Default()
	composer := NewComposer(p, "Bahasa Indonesia")

	_, err := composer.Compose(CreativeParameters{Description: "x"})

	var validationErr *InputValidationError
	if !errors.As(err, &validationErr) {
		t.Errorf("Compose() error = %v, want InputValidationError", err)
	}
}

func TestComposeBrokenTemplate(t *testing.T) {
	composer := NewComposer(&prompts.Prompts{
		Script: prompts.ScriptPrompts{Storyboard: "{{.Missing.Field}}"},
	}, "en")

	_, err := composer.Compose(CreativeParameters{
		Description: "x",
		SourceImage: &SourceImage{Data: []byte("x"), MIMEType: "image/png"},
	})
	if err == nil {
		t.Error("Compose() should fail on template execution error")
	}
}

func TestPayloadDataURI(t *testing.T) {
	p := EncodePayload([]byte("hello"), "image/png")

	uri := p.DataURI()
	if uri != "data:image/png;base64,aGVsbG8=" {
		t.Errorf("DataURI() = %q", uri)
	}

	parsed, err := ParseDataURI(uri)
	if err != nil {
		t.Fatalf("ParseDataURI() error = %v", err)
	}
	data, err := parsed.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" || parsed.MIMEType != "image/png" {
		t.Errorf("ParseDataURI() = %+v", parsed)
	}
}

func TestParseDataURIErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "noScheme", input: "image/png;base64,aGk="},
		{name: "noComma", input: "data:image/png;base64"},
		{name: "notBase64", input: "data:text/plain,hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseDataURI(tt.input); err == nil {
				t.Errorf("ParseDataURI(%q) should fail", tt.input)
			}
		})
	}
}
