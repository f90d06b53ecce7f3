package storyboard

import "fmt"

type InputValidationError struct {
	Field  string
	Reason string
}

func (e *InputValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StructuredOutputError means the script batch was unusable. No scene was emitted.
type StructuredOutputError struct {
	Reason string
	Err    error
}

func (e *StructuredOutputError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate scene scripts: %s: %v", e.Reason, e.Err)
	}
	return "generate scene scripts: " + e.Reason
}

func (e *StructuredOutputError) Unwrap() error { return e.Err }

// ImageGenerationError means scene Index failed. Earlier scenes were delivered.
type ImageGenerationError struct {
	Index       int
	Description string
	Err         error
}

func (e *ImageGenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generate image for scene %d %q: %v", e.Index, e.Description, e.Err)
	}
	return fmt.Sprintf("generate image for scene %d %q: no image returned", e.Index, e.Description)
}

func (e *ImageGenerationError) Unwrap() error { return e.Err }
