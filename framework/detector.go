package framework

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	apperrors "hrm-reasoner/errors"
	"hrm-reasoner/session"
)

// DefaultCacheSize is the number of workspaces whose insight is remembered.
const DefaultCacheSize = 128

// Detector finds known frameworks in a workspace and returns their planning advice.
type Detector struct {
	catalog *Catalog
	cache   *lru.Cache
	logger  *zap.Logger
}

// NewDetector creates a detector over catalog, or the embedded catalog when nil.
func NewDetector(catalog *Catalog, cacheSize int, logger *zap.Logger) (*Detector, error) {
	if catalog == nil {
		c, err := DefaultCatalog()
		if err != nil {
			return nil, err
		}
		catalog = c
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create framework cache: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{catalog: catalog, cache: cache, logger: logger}, nil
}

// Detect validates workspace, scans its manifests and matches them against the catalog.
// Results are cached per resolved workspace path.
func (d *Detector) Detect(ctx context.Context, workspace string) (*session.FrameworkInsight, error) {
	dir, err := ValidateWorkspacePath(workspace)
	if err != nil {
		return nil, err
	}
	if v, ok := d.cache.Get(dir); ok {
		return v.(*session.FrameworkInsight).Clone(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	manifest, err := ScanWorkspace(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: scan %s: %w", apperrors.ErrCollaborator, dir, err)
	}

	insight := &session.FrameworkInsight{Workspace: workspace}
	for _, rule := range d.catalog.Match(manifest) {
		insight.Frameworks = append(insight.Frameworks, rule.Name)
		insight.Highlights = append(insight.Highlights, rule.Highlights...)
		insight.Notes = append(insight.Notes, rule.Notes...)
	}
	if len(insight.Frameworks) == 0 {
		if eco := manifest.Ecosystems(); len(eco) > 0 {
			insight.Notes = append(insight.Notes, fmt.Sprintf("No known framework detected (ecosystems: %v).", eco))
		}
	}

	d.logger.Debug("Detected workspace frameworks",
		zap.String("workspace_path", dir),
		zap.Strings("frameworks", insight.Frameworks))
	d.cache.Add(dir, insight.Clone())
	return insight, nil
}
