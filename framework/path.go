package framework

import (
	"os"
	"path/filepath"
	"strings"

	apperrors "hrm-reasoner/errors"
)

// systemDirs may never be scanned, nor anything beneath them.
var systemDirs = []string{"/etc", "/proc", "/sys", "/dev", "/boot", "/bin", "/sbin", "/usr", "/var/run"}

// ValidateWorkspacePath checks that path names an existing, non-system directory and
// returns its cleaned absolute form with symlinks resolved. Rejections match
// errors.ErrInvalidWorkspace.
func ValidateWorkspacePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", apperrors.WrapError(apperrors.ErrInvalidWorkspace, "empty workspace path")
	}
	if strings.ContainsRune(path, 0) {
		return "", apperrors.WrapError(apperrors.ErrInvalidWorkspace, "workspace path contains NUL")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return "", apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "workspace path %q contains traversal", path)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "resolve %q: %v", path, err)
	}
	if err := checkSystemDir(abs); err != nil {
		return "", err
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "workspace %q does not exist", path)
	}
	if err := checkSystemDir(resolved); err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "stat %q: %v", path, err)
	}
	if !info.IsDir() {
		return "", apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "workspace %q is not a directory", path)
	}
	return resolved, nil
}

func checkSystemDir(abs string) error {
	if abs == string(filepath.Separator) {
		return apperrors.WrapError(apperrors.ErrInvalidWorkspace, "refusing to scan the filesystem root")
	}
	slashed := filepath.ToSlash(abs)
	for _, dir := range systemDirs {
		if slashed == dir || strings.HasPrefix(slashed, dir+"/") {
			return apperrors.WrapErrorf(apperrors.ErrInvalidWorkspace, "workspace %q is inside system directory %s", abs, dir)
		}
	}
	return nil
}
