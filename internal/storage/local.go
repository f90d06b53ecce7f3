package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"adstoryboard/internal/storyboard"
)

type LocalSink struct {
	fs        afero.Fs
	outputDir string
}

func NewLocalSink(outputDir string) *LocalSink {
	return NewLocalSinkFs(afero.NewOsFs(), outputDir)
}

func NewLocalSinkFs(fs afero.Fs, outputDir string) *LocalSink {
	return &LocalSink{fs: fs, outputDir: outputDir}
}

func (s *LocalSink) SaveScene(ctx context.Context, id string, scene storyboard.Scene) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}

	data, mimeType, err := sceneBytes(scene)
	if err != nil {
		return "", err
	}

	name := sceneObjectName(id, scene.Index, mimeType)
	if err := s.write(name, data); err != nil {
		return "", fmt.Errorf("failed to write scene image: %w", err)
	}
	return name, nil
}

func (s *LocalSink) SaveManifest(ctx context.Context, m *Manifest) error {
	if err := checkID(m.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := s.write(manifestObjectName(m.ID), data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func (s *LocalSink) LoadManifest(ctx context.Context, id string) (*Manifest, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(manifestObjectName(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func (s *LocalSink) List(ctx context.Context) ([]*Manifest, error) {
	entries, err := afero.ReadDir(s.fs, s.outputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read output directory: %w", err)
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() || !ValidID(entry.Name()) {
			continue
		}
		m, err := s.LoadManifest(ctx, entry.Name())
		if err != nil {
			if err != ErrNotFound {
				slog.Warn("Skipping unreadable manifest", "id", entry.Name(), "error", err)
			}
			continue
		}
		manifests = append(manifests, m)
	}

	sortNewestFirst(manifests)
	return manifests, nil
}

func (s *LocalSink) LoadObject(ctx context.Context, name string) ([]byte, error) {
	if err := checkObjectName(name); err != nil {
		return nil, err
	}

	data, err := afero.ReadFile(s.fs, s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

// Path returns the on-disk location of an object name.
func (s *LocalSink) Path(name string) string {
	return s.path(name)
}

func (s *LocalSink) path(name string) string {
	return filepath.Join(s.outputDir, filepath.FromSlash(name))
}

func (s *LocalSink) write(name string, data []byte) error {
	p := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, p, data, 0644)
}
