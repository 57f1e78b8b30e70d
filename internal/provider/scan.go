package provider

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fileInfo is one discovered session log file.
type fileInfo struct {
	Path  string
	Mtime time.Time
	Size  int64
}

// scanRoot walks one source root and collects .jsonl session logs.
// Unreadable directories are skipped, not fatal.
func scanRoot(root string, kind kindLayout) ([]fileInfo, error) {
	var files []fileInfo
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable dirs
		}
		if info.IsDir() {
			if kind.skipDir(filepath.Base(path)) {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".jsonl" {
			return nil
		}
		if kind.skipFile(filepath.Base(path)) {
			return nil
		}
		files = append(files, fileInfo{
			Path:  path,
			Mtime: info.ModTime(),
			Size:  info.Size(),
		})
		return nil
	})
	if err != nil && os.IsNotExist(err) {
		return nil, nil
	}
	return files, err
}

func baseName(path string) string {
	return filepath.Base(path)
}

// statFile probes one file without reading content.
func statFile(path string) (fileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return fileInfo{}, err
	}
	return fileInfo{Path: path, Mtime: info.ModTime(), Size: info.Size()}, nil
}

// kindLayout captures per-agent directory-tree quirks.
type kindLayout struct {
	skipDirs  []string
	skipFiles []string // substring match on base name
}

var claudeLayout = kindLayout{
	skipDirs:  []string{"subagents"},
	skipFiles: []string{"sessions-index"},
}

var codexLayout = kindLayout{}

func (k kindLayout) skipDir(base string) bool {
	for _, d := range k.skipDirs {
		if base == d {
			return true
		}
	}
	return false
}

func (k kindLayout) skipFile(base string) bool {
	for _, s := range k.skipFiles {
		if strings.Contains(base, s) {
			return true
		}
	}
	return false
}
