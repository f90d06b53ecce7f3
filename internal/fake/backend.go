// Package fake provides a deterministic generation backend for tests and
// dry runs.
package fake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"adstoryboard/internal/storyboard"
)

var palette = []color.RGBA{
	{R: 0xe7, G: 0x4c, B: 0x3c, A: 0xff},
	{R: 0xf3, G: 0x9c, B: 0x12, A: 0xff},
	{R: 0xf1, G: 0xc4, B: 0x0f, A: 0xff},
	{R: 0x2e, G: 0xcc, B: 0x71, A: 0xff},
	{R: 0x34, G: 0x98, B: 0xdb, A: 0xff},
	{R: 0x9b, G: 0x59, B: 0xb6, A: 0xff},
}

type Backend struct {
	// Scripts is returned by the text call unless RawScript is set.
	Scripts   []storyboard.SceneScript
	RawScript string
	TextErr   error

	// FailImageAt makes the n-th image call (1-based) fail with ImageErr,
	// or return no payload when ImageErr is nil.
	FailImageAt int
	ImageErr    error

	// ImageDelay holds every image call until it elapses or ctx is done.
	ImageDelay time.Duration

	mu           sync.Mutex
	textCalls    int
	imagePrompts []string
	seenImages   []storyboard.Payload
}

func New() *Backend {
	return &Backend{Scripts: Scripts(storyboard.SceneCount)}
}

// Scripts returns n predictable scene scripts.
func Scripts(n int) []storyboard.SceneScript {
	scripts := make([]storyboard.SceneScript, n)
	for i := range scripts {
		scripts[i] = storyboard.SceneScript{
			Description: fmt.Sprintf("Scene %d: product close-up in a bright studio", i+1),
			VoiceOver:   fmt.Sprintf("Voice-over line %d", i+1),
			Backsound:   fmt.Sprintf("Upbeat pop beat %d", i+1),
		}
	}
	return scripts
}

func (b *Backend) GenerateStructuredText(ctx context.Context, prompt string, img storyboard.Payload, schema storyboard.OutputSchema) (string, error) {
	b.mu.Lock()
	b.textCalls++
	b.seenImages = append(b.seenImages, img)
	b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if b.TextErr != nil {
		return "", b.TextErr
	}
	if b.RawScript != "" {
		return b.RawScript, nil
	}

	data, err := json.Marshal(b.Scripts)
	if err != nil {
		return "", fmt.Errorf("marshal scripts: %w", err)
	}
	return string(data), nil
}

func (b *Backend) GenerateImage(ctx context.Context, prompt string, img storyboard.Payload) (*storyboard.Payload, error) {
	b.mu.Lock()
	b.imagePrompts = append(b.imagePrompts, prompt)
	b.seenImages = append(b.seenImages, img)
	n := len(b.imagePrompts)
	b.mu.Unlock()

	if b.ImageDelay > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(b.ImageDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n == b.FailImageAt {
		return nil, b.ImageErr
	}

	data, err := SolidPNG(8, 8, palette[(n-1)%len(palette)])
	if err != nil {
		return nil, err
	}
	payload := storyboard.EncodePayload(data, "image/png")
	return &payload, nil
}

func (b *Backend) TextCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.textCalls
}

func (b *Backend) ImageCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.imagePrompts)
}

func (b *Backend) ImagePrompts() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.imagePrompts...)
}

// SeenImages lists the source image payload of every call, in call order.
func (b *Backend) SeenImages() []storyboard.Payload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]storyboard.Payload(nil), b.seenImages...)
}

// SolidPNG encodes a w x h image filled with c.
func SolidPNG(w, h int, c color.Color) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
