package util

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// SkipFunc reports whether a path should be excluded from the walk.
// rel is the path relative to the walk root, using forward slashes.
type SkipFunc func(rel string, isDir bool) bool

// defaultSkipDirs are build and VCS directories never holding project sources.
var defaultSkipDirs = map[string]bool{
	".git": true, ".svn": true, ".idea": true, ".gradle": true, ".mvn": true,
	"target": true, "build": true, "out": true, "bin": true, "node_modules": true,
}

// WalkSourceFiles returns the files below root with the given extension in a stable
// lexical order. Directories and files rejected by skip are not visited. Unreadable
// directories are logged and skipped.
func WalkSourceFiles(root, ext string, skip SkipFunc, logger *zap.Logger) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, err
	}
	var files []string
	walkDir(root, root, ext, skip, logger, &files)
	return files, nil
}

func walkDir(root, dir, ext string, skip SkipFunc, logger *zap.Logger, files *[]string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("WalkSourceFiles - Failed to read directory", zap.String("path", dir), zap.Error(err))
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		childPath := filepath.Join(dir, entry.Name())
		rel, err := filepath.Rel(root, childPath)
		if err != nil {
			rel = childPath
		}
		rel = filepath.ToSlash(rel)

		if entry.IsDir() {
			if defaultSkipDirs[entry.Name()] || (skip != nil && skip(rel, true)) {
				logger.Debug("WalkSourceFiles - Skipping directory", zap.String("path", rel))
				continue
			}
			walkDir(root, childPath, ext, skip, logger, files)
			continue
		}
		if !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		if skip != nil && skip(rel, false) {
			continue
		}
		*files = append(*files, childPath)
	}
}

// IsJavaTestPath reports whether a project-relative path denotes test code: a
// directory segment named test or tests, or a file name ending in Test.java or Tests.java.
func IsJavaTestPath(rel string, isDir bool) bool {
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	dirs := segments
	if !isDir {
		name := segments[len(segments)-1]
		if strings.HasSuffix(name, "Test.java") || strings.HasSuffix(name, "Tests.java") {
			return true
		}
		dirs = segments[:len(segments)-1]
	}
	for _, seg := range dirs {
		if seg == "test" || seg == "tests" {
			return true
		}
	}
	return false
}
