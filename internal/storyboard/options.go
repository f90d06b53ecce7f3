package storyboard

import (
	"fmt"
	"strings"
)

type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type Catalog struct {
	Vibes        []Option `json:"vibes"`
	Lightings    []Option `json:"lightings"`
	ContentTypes []Option `json:"contentTypes"`
}

var defaultCatalog = Catalog{
	Vibes: []Option{
		{ID: "energetic", Label: "Energetic & Fun"},
		{ID: "cinematic", Label: "Cinematic & Epic"},
		{ID: "modern", Label: "Modern & Clean"},
		{ID: "natural", Label: "Natural & Organic"},
		{ID: "tech", Label: "Tech & Futuristic"},
	},
	Lightings: []Option{
		{ID: "studio", Label: "Studio Light"},
		{ID: "dramatic", Label: "Dramatic"},
		{ID: "natural", Label: "Natural Light"},
		{ID: "neon", Label: "Neon"},
	},
	ContentTypes: []Option{
		{ID: "hard-selling", Label: "Hard Selling"},
		{ID: "soft-selling", Label: "Soft Selling"},
		{ID: "storytelling", Label: "Storytelling"},
		{ID: "problem-solution", Label: "Problem/Solution"},
		{ID: "asmr", Label: "ASMR / Sensory"},
		{ID: "unboxing", Label: "Unboxing"},
		{ID: "educational", Label: "Educational"},
		{ID: "testimonial", Label: "Testimonial"},
	},
}

// DefaultCatalog returns a copy of the built-in creative option catalog.
func DefaultCatalog() Catalog {
	return Catalog{
		Vibes:        append([]Option(nil), defaultCatalog.Vibes...),
		Lightings:    append([]Option(nil), defaultCatalog.Lightings...),
		ContentTypes: append([]Option(nil), defaultCatalog.ContentTypes...),
	}
}

// Selection holds option ids as submitted by a caller.
type Selection struct {
	Vibe        string
	Lighting    string
	ContentType string
}

// DefaultSelection mirrors the first entry of every list.
func DefaultSelection() Selection {
	return Selection{
		Vibe:        defaultCatalog.Vibes[0].ID,
		Lighting:    defaultCatalog.Lightings[0].ID,
		ContentType: defaultCatalog.ContentTypes[0].ID,
	}
}

// Resolve builds CreativeParameters from option ids. Empty ids take the
// default selection; unknown ids are rejected.
func (c Catalog) Resolve(description string, sel Selection, image *SourceImage) (CreativeParameters, error) {
	def := DefaultSelection()

	vibe, err := lookup("vibe", c.Vibes, firstNonEmpty(sel.Vibe, def.Vibe))
	if err != nil {
		return CreativeParameters{}, err
	}
	lighting, err := lookup("lighting", c.Lightings, firstNonEmpty(sel.Lighting, def.Lighting))
	if err != nil {
		return CreativeParameters{}, err
	}
	contentType, err := lookup("contentType", c.ContentTypes, firstNonEmpty(sel.ContentType, def.ContentType))
	if err != nil {
		return CreativeParameters{}, err
	}

	params := CreativeParameters{
		Description: strings.TrimSpace(description),
		Vibe:        vibe,
		Lighting:    lighting,
		ContentType: contentType,
		SourceImage: image,
	}
	return params, params.Validate()
}

// lookup accepts either an id or a label, case-insensitively.
func lookup(field string, options []Option, value string) (string, error) {
	for _, o := range options {
		if strings.EqualFold(o.ID, value) || strings.EqualFold(o.Label, value) {
			return o.Label, nil
		}
	}
	return "", &InputValidationError{Field: field, Reason: fmt.Sprintf("unknown option %q", value)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
