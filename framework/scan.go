package framework

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/mod/modfile"
)

// maxManifestBytes bounds every manifest file read from a workspace.
const maxManifestBytes = 2 * 1024 * 1024

// Manifest is what the scanners found at the root of a workspace.
type Manifest struct {
	GoModule    string
	GoModules   []string
	NPMPackages map[string]bool
	PipPackages map[string]bool
	Files       map[string]bool
}

func newManifest() *Manifest {
	return &Manifest{
		NPMPackages: make(map[string]bool),
		PipPackages: make(map[string]bool),
		Files:       make(map[string]bool),
	}
}

// Ecosystems lists the dependency ecosystems present, sorted.
func (m *Manifest) Ecosystems() []string {
	var out []string
	if m.GoModule != "" || len(m.GoModules) > 0 {
		out = append(out, "go")
	}
	if len(m.NPMPackages) > 0 {
		out = append(out, "node")
	}
	if len(m.PipPackages) > 0 {
		out = append(out, "python")
	}
	sort.Strings(out)
	return out
}

// hasGoModule matches the module path itself or any major-version / subpackage suffix.
func (m *Manifest) hasGoModule(prefix string) bool {
	for _, mod := range m.GoModules {
		if mod == prefix || strings.HasPrefix(mod, prefix+"/") {
			return true
		}
	}
	return false
}

func (m *Manifest) hasFile(pattern string) bool {
	if !strings.ContainsAny(pattern, "*?[") {
		return m.Files[pattern]
	}
	for name := range m.Files {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// ScanWorkspace reads the manifests at the root of dir. Missing manifests are not
// errors; malformed ones are.
func ScanWorkspace(dir string) (*Manifest, error) {
	m := newManifest()

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read workspace: %w", err)
	}
	for _, e := range entries {
		m.Files[e.Name()] = true
	}

	if data, ok, err := readManifest(dir, "go.mod"); err != nil {
		return nil, err
	} else if ok {
		if err := scanGoMod(m, data); err != nil {
			return nil, err
		}
	}
	if data, ok, err := readManifest(dir, "package.json"); err != nil {
		return nil, err
	} else if ok {
		if err := scanPackageJSON(m, data); err != nil {
			return nil, err
		}
	}
	if data, ok, err := readManifest(dir, "requirements.txt"); err != nil {
		return nil, err
	} else if ok {
		scanRequirements(m, data)
	}
	return m, nil
}

func readManifest(dir, name string) ([]byte, bool, error) {
	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return nil, false, nil
	}
	if info.Size() > maxManifestBytes {
		return nil, false, fmt.Errorf("%s is %d bytes, limit %d", name, info.Size(), maxManifestBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", name, err)
	}
	return data, true, nil
}

func scanGoMod(m *Manifest, data []byte) error {
	f, err := modfile.Parse("go.mod", data, nil)
	if err != nil {
		return fmt.Errorf("parse go.mod: %w", err)
	}
	if f.Module != nil {
		m.GoModule = f.Module.Mod.Path
	}
	for _, req := range f.Require {
		m.GoModules = append(m.GoModules, req.Mod.Path)
	}
	return nil
}

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func scanPackageJSON(m *Manifest, data []byte) error {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return fmt.Errorf("parse package.json: %w", err)
	}
	for name := range pkg.Dependencies {
		m.NPMPackages[name] = true
	}
	for name := range pkg.DevDependencies {
		m.NPMPackages[name] = true
	}
	return nil
}

func scanRequirements(m *Manifest, data []byte) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		if name := normalizePipName(line); name != "" {
			m.PipPackages[name] = true
		}
	}
}

// normalizePipName strips version specifiers, extras and markers and lowercases the
// distribution name.
func normalizePipName(req string) string {
	end := strings.IndexAny(req, "=<>!~[;@ ")
	if end >= 0 {
		req = req[:end]
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(req)), "_", "-")
}
