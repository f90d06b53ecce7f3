// Package imageprep validates uploaded product photos and shrinks oversized
// ones before they are sent to a backend.
package imageprep

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"

	_ "image/gif" // Register GIF decoder
	_ "image/png" // Register PNG decoder

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"adstoryboard/internal/storyboard"
)

const (
	DefaultMaxDimension = 1536
	jpegQuality         = 85

	// MaxPixels caps the declared canvas size checked before decoding.
	MaxPixels = 50_000_000
)

var supported = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// passthrough types are sent unchanged when they already fit.
var passthrough = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// Prepare sniffs the image type, decodes it and scales it to fit within
// maxDimension on the long edge. Images that fit are returned unchanged.
// Rejections are storyboard.InputValidationError.
func Prepare(data []byte, maxDimension int) (*storyboard.SourceImage, error) {
	if len(data) == 0 {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: "product image is required"}
	}
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}

	mimeType := http.DetectContentType(data)
	if !supported[mimeType] {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: fmt.Sprintf("unsupported image type %s", mimeType)}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: fmt.Sprintf("decode image: %v", err)}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: fmt.Sprintf("image is %dx%d, larger than %d pixels", cfg.Width, cfg.Height, MaxPixels)}
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &storyboard.InputValidationError{Field: "sourceImage", Reason: fmt.Sprintf("decode image: %v", err)}
	}

	b := src.Bounds()
	if b.Dx() <= maxDimension && b.Dy() <= maxDimension && passthrough[mimeType] {
		return &storyboard.SourceImage{Data: data, MIMEType: mimeType}, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scaleToFit(src, maxDimension), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &storyboard.SourceImage{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

// scaleToFit preserves aspect ratio and never upscales.
func scaleToFit(img image.Image, maxDimension int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	if w <= maxDimension && h <= maxDimension {
		return img
	}

	ratio := float64(maxDimension) / float64(w)
	if rh := float64(maxDimension) / float64(h); rh < ratio {
		ratio = rh
	}

	newW := max(1, int(float64(w)*ratio))
	newH := max(1, int(float64(h)*ratio))

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}
