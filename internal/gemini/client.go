package gemini

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"adstoryboard/internal/storyboard"
)

type Config struct {
	APIKey   string
	Vertex   bool
	Project  string
	Location string

	TextModel    string
	ImageModel   string
	SystemPrompt string

	// DailyLimit caps generate calls per calendar day. Zero disables the cap.
	DailyLimit int
	UsageFile  string

	HTTPClient *http.Client
	BaseURL    string
}

// Client implements storyboard.TextGenerator and storyboard.ImageGenerator.
type Client struct {
	client       *genai.Client
	textModel    string
	imageModel   string
	systemPrompt string
	dailyLimit   int
	usageFile    string

	mu sync.Mutex
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	clientConfig := &genai.ClientConfig{
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.Vertex {
		clientConfig.Backend = genai.BackendVertexAI
		clientConfig.Project = cfg.Project
		clientConfig.Location = cfg.Location
	} else {
		clientConfig.Backend = genai.BackendGeminiAPI
		clientConfig.APIKey = cfg.APIKey
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	usageFile := cfg.UsageFile
	if usageFile == "" {
		home, _ := os.UserHomeDir()
		usageFile = filepath.Join(home, ".adstoryboard_usage")
	}

	return &Client{
		client:       client,
		textModel:    cfg.TextModel,
		imageModel:   cfg.ImageModel,
		systemPrompt: cfg.SystemPrompt,
		dailyLimit:   cfg.DailyLimit,
		usageFile:    usageFile,
	}, nil
}

func (c *Client) GenerateStructuredText(ctx context.Context, prompt string, image storyboard.Payload, schema storyboard.OutputSchema) (string, error) {
	contents, err := imageContents(prompt, image)
	if err != nil {
		return "", err
	}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   toSchema(&schema),
	}
	if c.systemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: c.systemPrompt}},
		}
	}

	resp, err := c.call(ctx, c.textModel, contents, config)
	if err != nil {
		return "", err
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("empty response")
	}
	return storyboard.CleanJSON(text), nil
}

// GenerateImage returns nil without error when the model answered with no
// inline image.
func (c *Client) GenerateImage(ctx context.Context, prompt string, image storyboard.Payload) (*storyboard.Payload, error) {
	contents, err := imageContents(prompt, image)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	}

	resp, err := c.call(ctx, c.imageModel, contents, config)
	if err != nil {
		return nil, err
	}

	blob := responseImage(resp)
	if blob == nil {
		if text := responseText(resp); text != "" {
			slog.Debug("Image model answered with text only", "text", text)
		}
		return nil, nil
	}

	payload := storyboard.EncodePayload(blob.Data, blob.MIMEType)
	return &payload, nil
}

// HealthCheck confirms the credential can see the text model.
func (c *Client) HealthCheck(ctx context.Context) error {
	name := c.textModel
	if !strings.HasPrefix(name, "models/") {
		name = "models/" + name
	}
	if _, err := c.client.Models.Get(ctx, name, nil); err != nil {
		return fmt.Errorf("get model %s: %w", c.textModel, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if err := c.checkUsage(); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	slog.Debug("Gemini call finished", "model", model, "duration", time.Since(start))

	c.incrementUsage()
	return resp, nil
}

func imageContents(prompt string, image storyboard.Payload) ([]*genai.Content, error) {
	data, err := base64.StdEncoding.DecodeString(image.Data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	return []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: data, MIMEType: image.MIMEType}},
			{Text: prompt},
		},
	}}, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func responseImage(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData
		}
	}
	return nil
}

func toSchema(s *storyboard.OutputSchema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Description: s.Description,
		Required:    s.Required,
		Items:       toSchema(s.Items),
	}
	switch s.Type {
	case storyboard.TypeArray:
		out.Type = genai.TypeArray
	case storyboard.TypeObject:
		out.Type = genai.TypeObject
	default:
		out.Type = genai.TypeString
	}
	if s.MinItems > 0 {
		out.MinItems = genai.Ptr(int64(s.MinItems))
	}
	if s.MaxItems > 0 {
		out.MaxItems = genai.Ptr(int64(s.MaxItems))
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toSchema(prop)
		}
		out.PropertyOrdering = s.Required
	}
	return out
}

func (c *Client) checkUsage() error {
	if c.dailyLimit <= 0 {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	date, count := c.readUsage()
	if date != time.Now().Format("2006-01-02") {
		return nil
	}
	if count >= c.dailyLimit {
		return fmt.Errorf("daily limit of %d requests reached, resets tomorrow", c.dailyLimit)
	}
	return nil
}

func (c *Client) incrementUsage() {
	if c.dailyLimit <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	date, count := c.readUsage()
	today := time.Now().Format("2006-01-02")
	if date != today {
		count = 0
	}
	count++

	if err := os.WriteFile(c.usageFile, []byte(fmt.Sprintf("%s:%d", today, count)), 0644); err != nil {
		slog.Warn("Failed to record gemini usage", "error", err)
	}
}

func (c *Client) readUsage() (string, int) {
	data, err := os.ReadFile(c.usageFile)
	if err != nil {
		return "", 0
	}
	date, countStr, ok := strings.Cut(strings.TrimSpace(string(data)), ":")
	if !ok {
		return "", 0
	}
	count, _ := strconv.Atoi(countStr)
	return date, count
}
