package backend

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ModelLocator is an optional interface for backends that can locate
// the actual model file to load or execute.
type ModelLocator interface {
	// ResolveModelPath resolves the real model path inside the base downloaded directory.
	ResolveModelPath(basePath string) (string, error)
}

// FindModelFile returns basePath when it is a file, otherwise the first file
// with extension ext found below it in lexical order.
func FindModelFile(basePath, ext string) (string, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return "", fmt.Errorf("model path unavailable: %w", err)
	}
	if !info.IsDir() {
		return basePath, nil
	}

	var matches []string
	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(path), ext) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to scan %s: %w", basePath, err)
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no %s model found in %s", ext, basePath)
	}

	sort.Strings(matches)
	return matches[0], nil
}
