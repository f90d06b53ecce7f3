package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/conneroisu/groq-go"

	"adstoryboard/internal/storyboard"
)

// JSON object mode only allows a top-level object, so the batch is requested
// under a "scenes" key and unwrapped again.
const objectInstruction = `Return a JSON object of the form {"scenes": [...]} where "scenes" holds the array.`

// Client is a text-only backend. It cannot see the source image; the
// product description in the prompt carries the context instead.
type Client struct {
	client       *groq.Client
	model        groq.ChatModel
	systemPrompt string
}

func NewClient(apiKey, model, systemPrompt, baseURL string) (*Client, error) {
	var client *groq.Client
	var err error
	if baseURL != "" {
		client, err = groq.NewClient(apiKey, groq.WithBaseURL(strings.TrimSuffix(baseURL, "/")+"/"))
	} else {
		client, err = groq.NewClient(apiKey)
	}
	if err != nil {
		return nil, fmt.Errorf("create groq client: %w", err)
	}

	return &Client{
		client:       client,
		model:        groq.ChatModel(model),
		systemPrompt: systemPrompt,
	}, nil
}

func (c *Client) GenerateStructuredText(ctx context.Context, prompt string, image storyboard.Payload, schema storyboard.OutputSchema) (string, error) {
	slog.Debug("Groq backend ignores the source image", "mime", image.MIMEType)

	userPrompt := prompt
	if schema.Type == storyboard.TypeArray {
		userPrompt = prompt + "\n\n" + objectInstruction
	}

	resp, err := c.client.ChatCompletion(ctx, groq.ChatCompletionRequest{
		Model: c.model,
		Messages: []groq.ChatCompletionMessage{
			{Role: groq.RoleSystem, Content: c.systemPrompt},
			{Role: groq.RoleUser, Content: userPrompt},
		},
		ResponseFormat: &groq.ChatResponseFormat{
			Type: "json_object",
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response")
	}

	content := storyboard.CleanJSON(resp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty response")
	}

	if schema.Type != storyboard.TypeArray {
		return content, nil
	}
	return unwrapArray(content), nil
}

// unwrapArray returns the array under "scenes", or the only array-valued key
// of an object. Anything else is returned unchanged for the caller to reject.
func unwrapArray(content string) string {
	if strings.HasPrefix(content, "[") {
		return content
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &wrapped); err != nil {
		return content
	}

	if scenes, ok := wrapped["scenes"]; ok {
		return string(scenes)
	}

	var found json.RawMessage
	for _, v := range wrapped {
		trimmed := strings.TrimSpace(string(v))
		if !strings.HasPrefix(trimmed, "[") {
			continue
		}
		if found != nil {
			return content
		}
		found = v
	}
	if found == nil {
		return content
	}
	return string(found)
}
