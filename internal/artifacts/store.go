// Package artifacts persists trained capabilities as immutable, versioned
// directories:
//
//	{root}/{name}/{version}/model.json
//	{root}/{name}/{version}/metadata.json
//
// metadata.json is written last, so a version directory without it is
// an interrupted save and invisible to readers.
package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Aidin1998/modelserver/internal/capability"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
	"github.com/Aidin1998/modelserver/pkg/metrics"
)

const (
	// MetadataFile is the sidecar describing a version directory.
	MetadataFile = "metadata.json"
	// InitialVersion is assigned to the first artifact of a model.
	InitialVersion = "1.0.0"
	// Latest resolves to the greatest committed version.
	Latest = "latest"
)

var tracer = otel.Tracer("artifacts")

// Metadata is the content of metadata.json.
type Metadata struct {
	Name           string             `json:"name"`
	Version        string             `json:"version"`
	Metrics        map[string]float64 `json:"metrics"`
	SavedAt        time.Time          `json:"saved_at"`
	CapabilityKind capability.Kind    `json:"capability_kind"`
}

// ModelSummary describes every committed version of one model.
type ModelSummary struct {
	Name          string             `json:"name"`
	Versions      []string           `json:"versions"`
	LatestVersion string             `json:"latest_version"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Store is a filesystem backed artifact store. Saves are serialised;
// reads run concurrently with them.
type Store struct {
	root   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewStore opens (and creates if needed) the artifact root.
func NewStore(root string, logger *zap.Logger) (*Store, error) {
	if root == "" {
		return nil, apperrors.ErrInvalidInput.Explain("artifact root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &Store{root: root, logger: logger.Named("artifacts")}, nil
}

// Root is the directory the store writes under.
func (s *Store) Root() string { return s.root }

// VersionDir is where name@version lives.
func (s *Store) VersionDir(name, version string) string {
	return filepath.Join(s.root, name, version)
}

// SaveModel persists c as name@version and returns the version
// directory. Committed versions are never overwritten; leftovers of an
// interrupted save are replaced. Nil metrics are taken from c.
func (s *Store) SaveModel(ctx context.Context, c capability.Capability, name, version string, metrics map[string]float64) (path string, err error) {
	_, span := tracer.Start(ctx, "artifacts.save")
	span.SetAttributes(attribute.String("model", name), attribute.String("version", version))
	defer func() {
		recordOp("save", err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if !validSegment(name) || !validSegment(version) || version == Latest {
		return "", apperrors.ErrInvalidInput.Explain("artifact needs a name and a concrete version, got %q@%q", name, version)
	}
	if metrics == nil {
		metrics = c.Metrics()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.VersionDir(name, version)
	if _, err := os.Stat(filepath.Join(dir, MetadataFile)); err == nil {
		return "", apperrors.ErrVersionExists.Explain("%s@%s already exists", name, version)
	}
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("clear partial version %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create version dir: %w", err)
	}
	if err := c.Save(dir); err != nil {
		return "", fmt.Errorf("save %s@%s: %w", name, version, err)
	}

	raw, err := json.MarshalIndent(Metadata{
		Name:           name,
		Version:        version,
		Metrics:        metrics,
		SavedAt:        time.Now().UTC(),
		CapabilityKind: c.Kind(),
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	if err := capability.WriteFileAtomic(filepath.Join(dir, MetadataFile), raw); err != nil {
		return "", fmt.Errorf("write metadata: %w", err)
	}

	s.logger.Info("Artifact saved", zap.String("model", name), zap.String("version", version), zap.String("path", dir))
	return dir, nil
}

// LoadModel reconstructs name@version. "latest" and "" resolve to the
// greatest committed version. Every failure, including unknown
// discriminators and corrupt files, reports false and leaves nothing
// half loaded.
func (s *Store) LoadModel(ctx context.Context, name, version string) (capability.Capability, bool) {
	_, span := tracer.Start(ctx, "artifacts.load")
	span.SetAttributes(attribute.String("model", name))
	defer span.End()

	if version == "" || version == Latest {
		latest, ok := s.GetLatestVersion(name)
		if !ok {
			recordOp("load", apperrors.ErrArtifactNotFound)
			return nil, false
		}
		version = latest
	}
	span.SetAttributes(attribute.String("version", version))
	if !validSegment(name) || !validSegment(version) {
		recordOp("load", apperrors.ErrInvalidInput)
		return nil, false
	}

	meta, err := s.ReadMetadata(name, version)
	if err != nil {
		recordOp("load", err)
		if !apperrors.Is(err, apperrors.ErrArtifactNotFound) {
			s.logger.Warn("Unreadable artifact metadata", zap.String("model", name), zap.String("version", version), zap.Error(err))
		}
		return nil, false
	}

	c, ok := capability.New(string(meta.CapabilityKind))
	if !ok {
		recordOp("load", apperrors.Unprocessable)
		s.logger.Warn("Unknown capability kind in artifact",
			zap.String("model", name), zap.String("version", version), zap.String("kind", string(meta.CapabilityKind)))
		return nil, false
	}
	if err := c.Load(s.VersionDir(name, version)); err != nil {
		recordOp("load", err)
		span.RecordError(err)
		s.logger.Warn("Failed to load artifact", zap.String("model", name), zap.String("version", version), zap.Error(err))
		return nil, false
	}
	c.SetVersion(meta.Version)

	recordOp("load", nil)
	return c, true
}

// ReadMetadata decodes the sidecar of name@version. A missing sidecar is
// ErrArtifactNotFound; one without a capability kind is invalid.
func (s *Store) ReadMetadata(name, version string) (*Metadata, error) {
	raw, err := os.ReadFile(filepath.Join(s.VersionDir(name, version), MetadataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, apperrors.ErrArtifactNotFound.Explain("%s@%s", name, version)
	}
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, apperrors.ErrInvalidInput.Explain("corrupt metadata for %s@%s", name, version).Wrap(err)
	}
	if meta.CapabilityKind == "" {
		return nil, apperrors.ErrInvalidInput.Explain("metadata for %s@%s has no capability kind", name, version)
	}
	if meta.Version == "" {
		meta.Version = version
	}
	return &meta, nil
}

// Versions lists the committed versions of name in ascending order.
func (s *Store) Versions(name string) []string {
	entries, err := os.ReadDir(filepath.Join(s.root, name))
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, name, e.Name(), MetadataFile)); err != nil {
			continue
		}
		versions = append(versions, e.Name())
	}
	sort.SliceStable(versions, func(i, j int) bool {
		return CompareVersions(versions[i], versions[j]) < 0
	})
	return versions
}

// GetLatestVersion returns the greatest committed version of name.
func (s *Store) GetLatestVersion(name string) (string, bool) {
	latest := PickLatest(s.Versions(name))
	return latest, latest != ""
}

// ListModels summarises every model with at least one committed version,
// sorted by name. Metrics are those recorded at the latest version.
func (s *Store) ListModels() ([]ModelSummary, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return []ModelSummary{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list artifact root: %w", err)
	}

	out := []ModelSummary{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		versions := s.Versions(e.Name())
		if len(versions) == 0 {
			continue
		}
		summary := ModelSummary{
			Name:          e.Name(),
			Versions:      versions,
			LatestVersion: PickLatest(versions),
			Metrics:       map[string]float64{},
		}
		if meta, err := s.ReadMetadata(summary.Name, summary.LatestVersion); err == nil && meta.Metrics != nil {
			summary.Metrics = meta.Metrics
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// validSegment accepts a single path element.
func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func recordOp(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrArtifactNotFound):
		result = "miss"
	default:
		result = "error"
	}
	metrics.ArtifactOperations.WithLabelValues(op, result).Inc()
}
