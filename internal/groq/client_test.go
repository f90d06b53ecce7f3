package groq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"adstoryboard/internal/storyboard"
)

func makeGroqResponse(content string) map[string]any {
	return map[string]any{
		"id":      "test-id",
		"object":  "chat.completion",
		"created": 1234567890,
		"model":   "llama-3.3-70b-versatile",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	}
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

var arraySchema = storyboard.OutputSchema{Type: storyboard.TypeArray}

func TestGenerateStructuredText(t *testing.T) {
	noChoices := makeGroqResponse("")
	noChoices["choices"] = []map[string]any{}

	tests := []struct {
		name           string
		responseBody   string
		statusCode     int
		wantErr        bool
		wantErrContain string
		wantContent    string
	}{
		{
			name:         "wrappedScenes",
			responseBody: mustJSON(makeGroqResponse(`{"scenes":[{"description":"a"}]}`)),
			statusCode:   http.StatusOK,
			wantContent:  `[{"description":"a"}]`,
		},
		{
			name:         "otherArrayKey",
			responseBody: mustJSON(makeGroqResponse(`{"storyboard":[{"description":"a"}]}`)),
			statusCode:   http.StatusOK,
			wantContent:  `[{"description":"a"}]`,
		},
		{
			name:         "bareArray",
			responseBody: mustJSON(makeGroqResponse(`[{"description":"a"}]`)),
			statusCode:   http.StatusOK,
			wantContent:  `[{"description":"a"}]`,
		},
		{
			name:         "fencedObject",
			responseBody: mustJSON(makeGroqResponse("```json\n{\"scenes\":[]}\n```")),
			statusCode:   http.StatusOK,
			wantContent:  `[]`,
		},
		{
			name:         "objectWithoutArray",
			responseBody: mustJSON(makeGroqResponse(`{"description":"a"}`)),
			statusCode:   http.StatusOK,
			wantContent:  `{"description":"a"}`,
		},
		{
			name:           "emptyResponse",
			responseBody:   mustJSON(makeGroqResponse("")),
			statusCode:     http.StatusOK,
			wantErr:        true,
			wantErrContain: "empty response",
		},
		{
			name:           "noChoices",
			responseBody:   mustJSON(noChoices),
			statusCode:     http.StatusOK,
			wantErr:        true,
			wantErrContain: "no response",
		},
		{
			name:           "httpErrorUnauthorized",
			responseBody:   `{"error": {"message": "invalid api key", "type": "authentication_error"}}`,
			statusCode:     http.StatusUnauthorized,
			wantErr:        true,
			wantErrContain: "generate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer server.Close()

			client, err := NewClient("test-api-key", "llama-3.3-70b-versatile", "director", server.URL)
			if err != nil {
				t.Fatal(err)
			}

			got, err := client.GenerateStructuredText(context.Background(), "prompt", storyboard.Payload{}, arraySchema)

			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), tt.wantErrContain) {
					t.Errorf("GenerateStructuredText() error = %v, want error containing %q", err, tt.wantErrContain)
				}
				return
			}
			if err != nil {
				t.Fatalf("GenerateStructuredText() unexpected error: %v", err)
			}
			if got != tt.wantContent {
				t.Errorf("GenerateStructuredText() = %q, want %q", got, tt.wantContent)
			}
		})
	}
}

func TestGenerateStructuredTextRequest(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(mustJSON(makeGroqResponse(`{"scenes":[]}`))))
	}))
	defer server.Close()

	client, err := NewClient("test-api-key", "llama-3.3-70b-versatile", "director", server.URL)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := client.GenerateStructuredText(context.Background(), "make six scenes", storyboard.Payload{}, arraySchema); err != nil {
		t.Fatal(err)
	}

	raw := mustJSON(body)
	for _, want := range []string{"make six scenes", `{\"scenes\"`, "json_object", "director", "llama-3.3-70b-versatile"} {
		if !strings.Contains(raw, want) {
			t.Errorf("request missing %q: %s", want, raw)
		}
	}
}

func TestUnwrapArray(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "array", input: `[1]`, want: `[1]`},
		{name: "scenesKey", input: `{"scenes":[1],"other":[2]}`, want: `[1]`},
		{name: "ambiguousKeys", input: `{"a":[1],"b":[2]}`, want: `{"a":[1],"b":[2]}`},
		{name: "invalid", input: `not json`, want: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := unwrapArray(tt.input); got != tt.want {
				t.Errorf("unwrapArray() = %q, want %q", got, tt.want)
			}
		})
	}
}
