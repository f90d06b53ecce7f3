package storyboard_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"reflect"
	"strings"
	"testing"
	"time"

	"adstoryboard/internal/fake"
	"adstoryboard/internal/storyboard"
	"adstoryboard/pkg/httputil"
	"adstoryboard/pkg/prompts"
)

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 30, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testParams(t *testing.T) storyboard.CreativeParameters {
	return storyboard.CreativeParameters{
		Description: "Cotton flannel shirt",
		Vibe:        "Energetic & Fun",
		Lighting:    "Studio Light",
		ContentType: "Hard Selling",
		SourceImage: &storyboard.SourceImage{Data: testJPEG(t), MIMEType: "image/jpeg"},
	}
}

func newOrchestrator(t *testing.T, text storyboard.TextGenerator, images storyboard.ImageGenerator, opts storyboard.Options) *storyboard.Orchestrator {
	t.Helper()
	p, err := prompts.Default()
	if err != nil {
		t.Fatal(err)
	}
	composer := storyboard.NewComposer(p, "Bahasa Indonesia")
	return storyboard.NewOrchestrator(composer, text, images, opts)
}

func collect(t *testing.T, o *storyboard.Orchestrator, params storyboard.CreativeParameters) ([]storyboard.Scene, error) {
	t.Helper()
	var scenes []storyboard.Scene
	err := o.Generate(context.Background(), params, func(s storyboard.Scene) {
		scenes = append(scenes, s)
	})
	return scenes, err
}

func indices(scenes []storyboard.Scene) []int {
	out := make([]int, len(scenes))
	for i, s := range scenes {
		out[i] = s.Index
	}
	return out
}

func TestGenerateEmitsSixScenesInOrder(t *testing.T) {
	backend := fake.New()
	o := newOrchestrator(t, backend, backend, storyboard.Options{})

	scenes, err := collect(t, o, testParams(t))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if got := indices(scenes); !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5, 6}) {
		t.Errorf("indices = %v, want 1..6", got)
	}
	for i, s := range scenes {
		if s.SceneScript != backend.Scripts[i] {
			t.Errorf("scene %d script = %+v, want %+v", s.Index, s.SceneScript, backend.Scripts[i])
		}
		if !strings.HasPrefix(s.Image, "data:image/png;base64,") {
			t.Errorf("scene %d image is not a png data uri: %.40s", s.Index, s.Image)
		}
	}
	if backend.TextCalls() != 1 {
		t.Errorf("text calls = %d, want 1", backend.TextCalls())
	}
	if backend.ImageCalls() != 6 {
		t.Errorf("image calls = %d, want 6", backend.ImageCalls())
	}
}

func TestGenerateStructuredOutputFailures(t *testing.T) {
	sixWithBlank := fake.Scripts(6)
	sixWithBlank[2].VoiceOver = "   "
	blank, _ := json.Marshal(sixWithBlank)

	tests := []struct {
		name    string
		backend *fake.Backend
	}{
		{name: "fiveScripts", backend: &fake.Backend{Scripts: fake.Scripts(5)}},
		{name: "sevenScripts", backend: &fake.Backend{Scripts: fake.Scripts(7)}},
		{name: "emptyArray", backend: &fake.Backend{RawScript: "[]"}},
		{name: "malformedJSON", backend: &fake.Backend{RawScript: `[{"description": "a"`}},
		{name: "notAnArray", backend: &fake.Backend{RawScript: `{"description":"a","voiceOver":"b","backsound":"c"}`}},
		{name: "missingField", backend: &fake.Backend{RawScript: `[{"description":"a","voiceOver":"b"},{},{},{},{},{}]`}},
		{name: "blankField", backend: &fake.Backend{RawScript: string(blank)}},
		{name: "transportFailure", backend: &fake.Backend{TextErr: errors.New("connection reset")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newOrchestrator(t, tt.backend, tt.backend, storyboard.Options{})

			scenes, err := collect(t, o, testParams(t))

			var structuredErr *storyboard.StructuredOutputError
			if !errors.As(err, &structuredErr) {
				t.Fatalf("error = %v, want StructuredOutputError", err)
			}
			if len(scenes) != 0 {
				t.Errorf("onScene called %d times, want 0", len(scenes))
			}
			if tt.backend.ImageCalls() != 0 {
				t.Errorf("image calls = %d, want 0", tt.backend.ImageCalls())
			}
		})
	}
}

func TestGenerateStopsAtFailedScene(t *testing.T) {
	tests := []struct {
		name     string
		imageErr error
		wantIs   error
	}{
		{name: "noPayload", imageErr: nil, wantIs: storyboard.ErrNoImage},
		{name: "transportFailure", imageErr: errTransport, wantIs: errTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := fake.New()
			backend.FailImageAt = 4
			backend.ImageErr = tt.imageErr
			o := newOrchestrator(t, backend, backend, storyboard.Options{})

			scenes, err := collect(t, o, testParams(t))

			var imageErr *storyboard.ImageGenerationError
			if !errors.As(err, &imageErr) {
				t.Fatalf("error = %v, want ImageGenerationError", err)
			}
			if imageErr.Index != 4 {
				t.Errorf("failed index = %d, want 4", imageErr.Index)
			}
			if imageErr.Description != backend.Scripts[3].Description {
				t.Errorf("failed description = %q, want %q", imageErr.Description, backend.Scripts[3].Description)
			}
			if !errors.Is(err, tt.wantIs) {
				t.Errorf("error = %v, want wrapping %v", err, tt.wantIs)
			}
			if got := indices(scenes); !reflect.DeepEqual(got, []int{1, 2, 3}) {
				t.Errorf("indices = %v, want [1 2 3]", got)
			}
			if backend.ImageCalls() != 4 {
				t.Errorf("image calls = %d, want 4 (scenes 5 and 6 never attempted)", backend.ImageCalls())
			}
		})
	}
}

var errTransport = errors.New("503 service unavailable")

func TestGenerateIsDeterministic(t *testing.T) {
	params := testParams(t)

	first, err := collect(t, newOrchestrator(t, fake.New(), fake.New(), storyboard.Options{}), params)
	if err != nil {
		t.Fatal(err)
	}
	backend := fake.New()
	second, err := collect(t, newOrchestrator(t, backend, backend, storyboard.Options{}), params)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs produced different scenes")
	}
}

func TestGenerateValidatesBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*storyboard.CreativeParameters)
		wantField string
	}{
		{name: "emptyDescription", mutate: func(p *storyboard.CreativeParameters) { p.Description = "" }, wantField: "description"},
		{name: "blankDescription", mutate: func(p *storyboard.CreativeParameters) { p.Description = " \n\t" }, wantField: "description"},
		{name: "missingImage", mutate: func(p *storyboard.CreativeParameters) { p.SourceImage = nil }, wantField: "sourceImage"},
		{name: "emptyImage", mutate: func(p *storyboard.CreativeParameters) { p.SourceImage = &storyboard.SourceImage{MIMEType: "image/jpeg"} }, wantField: "sourceImage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := fake.New()
			o := newOrchestrator(t, backend, backend, storyboard.Options{})
			params := testParams(t)
			tt.mutate(&params)

			scenes, err := collect(t, o, params)

			var validationErr *storyboard.InputValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("error = %v, want InputValidationError", err)
			}
			if validationErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q", validationErr.Field, tt.wantField)
			}
			if backend.TextCalls() != 0 || backend.ImageCalls() != 0 {
				t.Errorf("remote calls made: text=%d image=%d", backend.TextCalls(), backend.ImageCalls())
			}
			if len(scenes) != 0 {
				t.Errorf("onScene called %d times", len(scenes))
			}
		})
	}
}

func TestGenerateReusesSourceImage(t *testing.T) {
	backend := fake.New()
	o := newOrchestrator(t, backend, backend, storyboard.Options{})
	params := testParams(t)

	if _, err := collect(t, o, params); err != nil {
		t.Fatal(err)
	}

	want := storyboard.EncodePayload(params.SourceImage.Data, "image/jpeg")
	seen := backend.SeenImages()
	if len(seen) != 7 {
		t.Fatalf("calls = %d, want 7", len(seen))
	}
	for i, p := range seen {
		if p != want {
			t.Errorf("call %d used a different source image payload", i+1)
		}
	}

	for i, prompt := range backend.ImagePrompts() {
		if !strings.Contains(prompt, backend.Scripts[i].Description) {
			t.Errorf("image prompt %d does not contain scene description", i+1)
		}
	}
}

type flakyText struct {
	*fake.Backend
	failures int
	calls    int
}

func (f *flakyText) GenerateStructuredText(ctx context.Context, prompt string, img storyboard.Payload, schema storyboard.OutputSchema) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		return `[]`, nil
	}
	return f.Backend.GenerateStructuredText(ctx, prompt, img, schema)
}

func TestGenerateScriptRetry(t *testing.T) {
	tests := []struct {
		name    string
		retries int
		wantErr bool
	}{
		{name: "noRetryByDefault", retries: 0, wantErr: true},
		{name: "retryRecovers", retries: 2, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := fake.New()
			text := &flakyText{Backend: backend, failures: 1}
			o := newOrchestrator(t, text, backend, storyboard.Options{
				ScriptRetry: httputil.RetryConfig{MaxRetries: tt.retries, InitialDelay: time.Millisecond},
			})

			scenes, err := collect(t, o, testParams(t))
			if (err != nil) != tt.wantErr {
				t.Fatalf("Generate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(scenes) != 6 {
				t.Errorf("scenes = %d, want 6", len(scenes))
			}
		})
	}
}

type slowImages struct {
	*fake.Backend
}

func (s slowImages) GenerateImage(ctx context.Context, prompt string, img storyboard.Payload) (*storyboard.Payload, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestGenerateImageTimeout(t *testing.T) {
	backend := fake.New()
	o := newOrchestrator(t, backend, slowImages{backend}, storyboard.Options{ImageTimeout: 20 * time.Millisecond})

	scenes, err := collect(t, o, testParams(t))

	var imageErr *storyboard.ImageGenerationError
	if !errors.As(err, &imageErr) || imageErr.Index != 1 {
		t.Fatalf("error = %v, want ImageGenerationError for scene 1", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if len(scenes) != 0 {
		t.Errorf("scenes = %d, want 0", len(scenes))
	}
}

func TestGenerateStopsOnCancel(t *testing.T) {
	backend := fake.New()
	o := newOrchestrator(t, backend, backend, storyboard.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var scenes []storyboard.Scene
	err := o.Generate(ctx, testParams(t), func(s storyboard.Scene) {
		scenes = append(scenes, s)
		if s.Index == 2 {
			cancel()
		}
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(scenes) != 2 {
		t.Errorf("scenes = %d, want 2", len(scenes))
	}
	if backend.ImageCalls() != 2 {
		t.Errorf("image calls = %d, want 2", backend.ImageCalls())
	}
}

func TestGenerateRateInterval(t *testing.T) {
	backend := fake.New()
	o := newOrchestrator(t, backend, backend, storyboard.Options{RateInterval: 10 * time.Millisecond})

	start := time.Now()
	scenes, err := collect(t, o, testParams(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(scenes) != 6 {
		t.Fatalf("scenes = %d, want 6", len(scenes))
	}
	// Burst of one: five waits between six calls.
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want image calls spaced by the rate interval", elapsed)
	}
}

func TestStream(t *testing.T) {
	t.Run("successfulGeneration", func(t *testing.T) {
		backend := fake.New()
		o := newOrchestrator(t, backend, backend, storyboard.Options{})

		scenes, errc := o.Stream(context.Background(), testParams(t))

		var got []int
		for s := range scenes {
			got = append(got, s.Index)
		}
		if err := <-errc; err != nil {
			t.Fatalf("stream error = %v", err)
		}
		if !reflect.DeepEqual(got, []int{1, 2, 3, 4, 5, 6}) {
			t.Errorf("indices = %v", got)
		}
	})

	t.Run("failureAfterPartialOutput", func(t *testing.T) {
		backend := fake.New()
		backend.FailImageAt = 4
		o := newOrchestrator(t, backend, backend, storyboard.Options{})

		scenes, errc := o.Stream(context.Background(), testParams(t))

		count := 0
		for range scenes {
			count++
		}
		err := <-errc
		var imageErr *storyboard.ImageGenerationError
		if !errors.As(err, &imageErr) {
			t.Fatalf("stream error = %v, want ImageGenerationError", err)
		}
		if count != 3 {
			t.Errorf("scenes = %d, want 3", count)
		}
		if _, open := <-errc; open {
			t.Error("error channel should be closed after the terminal error")
		}
	})
}

func TestParseScripts(t *testing.T) {
	scripts := fake.Scripts(6)
	valid, _ := json.Marshal(scripts)

	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "plainJSON", input: string(valid)},
		{name: "fencedJSON", input: "```json\n" + string(valid) + "\n```"},
		{name: "surroundingWhitespace", input: "\n  " + string(valid) + "  \n"},
		{name: "wrongType", input: `[{"description":1,"voiceOver":"b","backsound":"c"}]`, wantErr: true},
		{name: "null", input: "null", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := storyboard.ParseScripts(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseScripts() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, scripts) {
				t.Errorf("ParseScripts() = %+v", got)
			}
		})
	}
}
