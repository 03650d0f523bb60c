package framework

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "hrm-reasoner/errors"
)

const (
	// MaxCatalogBytes bounds the size of a rules catalog.
	MaxCatalogBytes = 1024 * 1024

	// MaxRules bounds the number of frameworks in a catalog.
	MaxRules = 200
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule describes how to recognise one framework and what to tell the planner about it.
type Rule struct {
	Name        string   `yaml:"name"`
	Ecosystem   string   `yaml:"ecosystem"`
	GoModules   []string `yaml:"go_modules,omitempty"`
	NPMPackages []string `yaml:"npm_packages,omitempty"`
	PipPackages []string `yaml:"pip_packages,omitempty"`
	Files       []string `yaml:"files,omitempty"`
	Highlights  []string `yaml:"highlights,omitempty"`
	Notes       []string `yaml:"notes,omitempty"`
}

// Catalog is the set of framework rules a Detector matches against.
type Catalog struct {
	Frameworks []Rule `yaml:"frameworks"`
}

// ParseCatalog decodes and validates a YAML rules catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	if len(data) > MaxCatalogBytes {
		return nil, apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "rules catalog is %d bytes, limit %d", len(data), MaxCatalogBytes)
	}
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: parse rules catalog: %w", apperrors.ErrInvalidConfig, err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// DefaultCatalog returns the embedded rules catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultRulesYAML)
}

func (c *Catalog) validate() error {
	if len(c.Frameworks) > MaxRules {
		return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "rules catalog has %d frameworks, limit %d", len(c.Frameworks), MaxRules)
	}
	seen := make(map[string]bool, len(c.Frameworks))
	for i, r := range c.Frameworks {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "framework rule %d has no name", i)
		}
		if seen[name] {
			return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "framework %q defined twice", name)
		}
		seen[name] = true
		if len(r.GoModules)+len(r.NPMPackages)+len(r.PipPackages)+len(r.Files) == 0 {
			return apperrors.WrapErrorf(apperrors.ErrInvalidConfig, "framework %q has no markers", name)
		}
	}
	return nil
}

// Match returns the rules whose markers appear in m, in catalog order.
func (c *Catalog) Match(m *Manifest) []Rule {
	var out []Rule
	for _, r := range c.Frameworks {
		if r.matches(m) {
			out = append(out, r)
		}
	}
	return out
}

func (r Rule) matches(m *Manifest) bool {
	for _, mod := range r.GoModules {
		if m.hasGoModule(mod) {
			return true
		}
	}
	for _, pkg := range r.NPMPackages {
		if m.NPMPackages[pkg] {
			return true
		}
	}
	for _, pkg := range r.PipPackages {
		if m.PipPackages[normalizePipName(pkg)] {
			return true
		}
	}
	for _, f := range r.Files {
		if m.hasFile(f) {
			return true
		}
	}
	return false
}
