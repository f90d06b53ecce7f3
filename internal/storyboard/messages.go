package storyboard

import (
	"errors"
	"fmt"
)

type messageSet struct {
	validation string
	script     string
	image      string
	unknown    string
}

var messages = map[string]messageSet{
	"id": {
		validation: "Silakan unggah gambar produk dan berikan deskripsi.",
		script:     "Gagal membuat konsep storyboard. Silakan coba lagi.",
		image:      "Gagal membuat gambar untuk scene: %q. Silakan coba lagi.",
		unknown:    "Terjadi kesalahan yang tidak diketahui.",
	},
	"en": {
		validation: "Please upload a product image and provide a description.",
		script:     "Failed to create the storyboard concept. Please try again.",
		image:      "Failed to generate the image for scene: %q. Please try again.",
		unknown:    "An unknown error occurred.",
	},
}

// UserMessage maps a generation error to a localized message. Unknown
// locales fall back to "id".
func UserMessage(err error, locale string) string {
	set, ok := messages[locale]
	if !ok {
		set = messages["id"]
	}

	var validationErr *InputValidationError
	var scriptErr *StructuredOutputError
	var imageErr *ImageGenerationError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return set.validation
	case errors.As(err, &scriptErr):
		return set.script
	case errors.As(err, &imageErr):
		return fmt.Sprintf(set.image, imageErr.Description)
	default:
		return set.unknown
	}
}
