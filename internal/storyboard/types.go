package storyboard

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// SceneCount is the fixed number of scenes in every storyboard.
const SceneCount = 6

type SourceImage struct {
	Data     []byte
	MIMEType string
}

// CreativeParameters is one generation request. Vibe, Lighting and
// ContentType carry display labels, not option ids.
type CreativeParameters struct {
	Description string
	Vibe        string
	Lighting    string
	ContentType string
	SourceImage *SourceImage
}

func (p CreativeParameters) Validate() error {
	if p.SourceImage == nil || len(p.SourceImage.Data) == 0 {
		return &InputValidationError{Field: "sourceImage", Reason: "product image is required"}
	}
	if strings.TrimSpace(p.Description) == "" {
		return &InputValidationError{Field: "description", Reason: "description is required"}
	}
	return nil
}

type SceneScript struct {
	Description string `json:"description"`
	VoiceOver   string `json:"voiceOver"`
	Backsound   string `json:"backsound"`
}

// Scene is immutable once emitted.
type Scene struct {
	Index int `json:"index"`
	SceneScript
	Image string `json:"image"`
}

// Payload is binary data in its transport form: base64 text plus mime type.
type Payload struct {
	MIMEType string
	Data     string
}

func EncodePayload(data []byte, mimeType string) Payload {
	return Payload{MIMEType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}
}

func (p Payload) Bytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return data, nil
}

func (p Payload) DataURI() string {
	return "data:" + p.MIMEType + ";base64," + p.Data
}

// ParseDataURI is the inverse of Payload.DataURI.
func ParseDataURI(uri string) (Payload, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return Payload{}, fmt.Errorf("not a data uri")
	}
	meta, data, ok := strings.Cut(rest, ",")
	if !ok {
		return Payload{}, fmt.Errorf("data uri has no payload")
	}
	mimeType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return Payload{}, fmt.Errorf("data uri is not base64 encoded")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return Payload{MIMEType: mimeType, Data: data}, nil
}

// FieldType is the type of a schema node.
type FieldType string

const (
	TypeArray  FieldType = "array"
	TypeObject FieldType = "object"
	TypeString FieldType = "string"
)

// OutputSchema describes the structured value a text backend must return.
// Backends translate it into their own schema dialect.
type OutputSchema struct {
	Type        FieldType
	Description string
	Items       *OutputSchema
	Properties  map[string]*OutputSchema
	Required    []string
	MinItems    int
	MaxItems    int
}

// TextGenerator returns JSON text conforming to schema.
type TextGenerator interface {
	GenerateStructuredText(ctx context.Context, prompt string, image Payload, schema OutputSchema) (string, error)
}

// ImageGenerator returns one image, or nil when the model produced none.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, image Payload) (*Payload, error)
}
