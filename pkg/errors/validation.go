package errors

import (
	"regexp"
	"strings"
	"unicode"
)

// condaPackageNameRegex matches valid conda package names: lowercase
// alphanumerics plus dot, dash, and underscore, starting and ending on
// an alphanumeric.
var condaPackageNameRegex = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9._-]*[a-z0-9])?$`)

// ValidatePackageName validates a conda package name for safety and
// correctness. It rejects names that could be used for path traversal
// as well as names the ecosystem itself would refuse.
func ValidatePackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPackage, "package name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidPackage, "package name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidPackage, "package name contains invalid control characters")
		}
	}

	if !condaPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidPackage, "invalid package name: %q", name)
	}

	return nil
}

// subdirRegex matches platform subdirs such as linux-64, osx-arm64,
// win-64, and the platform-independent noarch.
var subdirRegex = regexp.MustCompile(`^(noarch|[a-z]+-[a-z0-9_]+)$`)

// ValidateSubdir validates a repodata subdir name.
func ValidateSubdir(subdir string) error {
	if subdir == "" {
		return New(ErrCodeInvalidSubdir, "subdir cannot be empty")
	}

	if !subdirRegex.MatchString(subdir) {
		return New(ErrCodeInvalidSubdir, "invalid subdir: %q", subdir)
	}

	return nil
}

// ValidateChannelAlias validates a channel alias URL.
// It ensures the alias has a safe scheme (http or https).
func ValidateChannelAlias(alias string) error {
	if alias == "" {
		return New(ErrCodeInvalidInput, "channel alias cannot be empty")
	}

	if !strings.HasPrefix(alias, "http://") && !strings.HasPrefix(alias, "https://") {
		return New(ErrCodeInvalidInput, "channel alias must use http or https scheme")
	}

	return nil
}

// ValidatePath validates a file path within an output tree for safety.
// It prevents path traversal attacks and ensures reasonable path length.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No absolute paths (must be relative)
//   - No path traversal sequences (..)
//   - No backslashes (Windows-style paths)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidPath, "path must be relative (cannot start with /)")
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	if strings.Contains(path, "\\") {
		return New(ErrCodeInvalidPath, "path cannot contain backslashes")
	}

	return nil
}
