package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"adstoryboard/internal/storyboard"
)

type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSSink uses application default credentials unless credentialsFile
// names a service account key.
func NewGCSSink(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSSink, error) {
	opts, err := clientOptions(ctx, credentialsFile)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return newGCSSink(client, bucket, prefix), nil
}

func newGCSSink(client *storage.Client, bucket, prefix string) *GCSSink {
	return &GCSSink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func clientOptions(ctx context.Context, credentialsFile string) ([]option.ClientOption, error) {
	if credentialsFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}

func (s *GCSSink) SaveScene(ctx context.Context, id string, scene storyboard.Scene) (string, error) {
	if err := checkID(id); err != nil {
		return "", err
	}

	data, mimeType, err := sceneBytes(scene)
	if err != nil {
		return "", err
	}

	name := sceneObjectName(id, scene.Index, mimeType)
	if err := s.upload(ctx, name, mimeType, data); err != nil {
		return "", fmt.Errorf("failed to upload scene image: %w", err)
	}
	return name, nil
}

func (s *GCSSink) SaveManifest(ctx context.Context, m *Manifest) error {
	if err := checkID(m.ID); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := s.upload(ctx, manifestObjectName(m.ID), "application/json", data); err != nil {
		return fmt.Errorf("failed to upload manifest: %w", err)
	}
	return nil
}

func (s *GCSSink) LoadManifest(ctx context.Context, id string) (*Manifest, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	data, err := s.download(ctx, manifestObjectName(id))
	if err != nil {
		return nil, err
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

func (s *GCSSink) LoadObject(ctx context.Context, name string) ([]byte, error) {
	if err := checkObjectName(name); err != nil {
		return nil, err
	}
	return s.download(ctx, name)
}

func (s *GCSSink) download(ctx context.Context, name string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(s.object(name)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return data, nil
}

func (s *GCSSink) List(ctx context.Context) ([]*Manifest, error) {
	query := &storage.Query{Prefix: s.object("")}

	var manifests []*Manifest
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		if path.Base(attrs.Name) != manifestName {
			continue
		}

		id := path.Base(path.Dir(attrs.Name))
		if !ValidID(id) {
			continue
		}
		m, err := s.LoadManifest(ctx, id)
		if err != nil {
			slog.Warn("Skipping unreadable manifest", "object", attrs.Name, "error", err)
			continue
		}
		manifests = append(manifests, m)
	}

	sortNewestFirst(manifests)
	return manifests, nil
}

func (s *GCSSink) upload(ctx context.Context, name, contentType string, data []byte) error {
	w := s.client.Bucket(s.bucket).Object(s.object(name)).NewWriter(ctx)
	w.ContentType = contentType

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s *GCSSink) object(name string) string {
	if s.prefix == "" {
		return name
	}
	if name == "" {
		return s.prefix + "/"
	}
	return s.prefix + "/" + name
}
