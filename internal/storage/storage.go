package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"adstoryboard/internal/storyboard"
)

const manifestName = "manifest.json"

var (
	ErrNotFound  = errors.New("storyboard not found")
	ErrInvalidID = errors.New("invalid storyboard id")
)

var (
	idPattern    = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	scenePattern = regexp.MustCompile(`^scene-[0-9]{2}\.[a-z]+$`)
)

type Status string

const (
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Manifest summarises one stored storyboard. Image bytes live in separate
// objects named by SceneRecord.Image.
type Manifest struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"createdAt"`
	Description string        `json:"description"`
	Vibe        string        `json:"vibe"`
	Lighting    string        `json:"lighting"`
	ContentType string        `json:"contentType"`
	Status      Status        `json:"status"`
	Error       string        `json:"error,omitempty"`
	Message     string        `json:"message,omitempty"`
	Scenes      []SceneRecord `json:"scenes"`
}

type SceneRecord struct {
	Index int `json:"index"`
	storyboard.SceneScript
	Image string `json:"image"`
}

type Sink interface {
	// SaveScene stores the scene image and returns its object name.
	SaveScene(ctx context.Context, id string, scene storyboard.Scene) (string, error)
	SaveManifest(ctx context.Context, m *Manifest) error
	LoadManifest(ctx context.Context, id string) (*Manifest, error)
	// LoadObject reads an object name returned by SaveScene.
	LoadObject(ctx context.Context, name string) ([]byte, error)
	// List returns stored manifests, newest first.
	List(ctx context.Context) ([]*Manifest, error)
}

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ValidID reports whether id has the shape of a generated storyboard id.
// Ids become path segments, so anything else is rejected.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

func checkID(id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// checkObjectName accepts only names produced by sceneObjectName.
func checkObjectName(name string) error {
	dir, base := path.Split(name)
	if !ValidID(strings.TrimSuffix(dir, "/")) || !scenePattern.MatchString(base) {
		return fmt.Errorf("%w: object %q", ErrInvalidID, name)
	}
	return nil
}

// MIMEType returns the content type for a scene object name.
func MIMEType(name string) string {
	ext := path.Ext(name)
	for mimeType, e := range extensions {
		if e == ext {
			return mimeType
		}
	}
	return "application/octet-stream"
}

func sceneObjectName(id string, index int, mimeType string) string {
	ext, ok := extensions[mimeType]
	if !ok {
		ext = ".bin"
	}
	return path.Join(id, fmt.Sprintf("scene-%02d%s", index, ext))
}

func manifestObjectName(id string) string {
	return path.Join(id, manifestName)
}

// sceneBytes decodes the data URI carried by a scene.
func sceneBytes(scene storyboard.Scene) ([]byte, string, error) {
	payload, err := storyboard.ParseDataURI(scene.Image)
	if err != nil {
		return nil, "", fmt.Errorf("scene %d image: %w", scene.Index, err)
	}
	data, err := payload.Bytes()
	if err != nil {
		return nil, "", fmt.Errorf("scene %d image: %w", scene.Index, err)
	}
	return data, payload.MIMEType, nil
}

func sortNewestFirst(manifests []*Manifest) {
	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})
}
