package utils

import (
	"path/filepath"
	"strings"
)

// GetPathInfo returns the absolute form of relPath and the directory that
// contains it.
func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ReplaceExt swaps the extension of path for ext, or appends ext when path
// has none.
func ReplaceExt(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// UnitName is the base name of a source file without its extension.
func UnitName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

// OutputPath names the translation output for input: a sibling file with
// extension ext for a file, or <dir>/<dirname><ext> for a directory.
func OutputPath(input string, isDir bool, ext string) (string, error) {
	if !isDir {
		return ReplaceExt(input, ext), nil
	}
	full, _, err := GetPathInfo(input)
	if err != nil {
		return "", err
	}
	return filepath.Join(input, filepath.Base(full)+ext), nil
}
