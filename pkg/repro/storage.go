package repro

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/jihwankim/viewharness/pkg/eventlog"
)

// Storage persists repro bundles to disk, one framed zstd-compressed
// bundle file per captured failure, pruning down to the most recent
// KeepLastN once a save pushes past it.
type Storage struct {
	outputDir string
	keepLastN int
}

// NewStorage creates outputDir if needed and returns a Storage rooted
// there. keepLastN <= 0 disables pruning.
func NewStorage(outputDir string, keepLastN int) (*Storage, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("repro: creating output directory: %w", err)
	}
	return &Storage{outputDir: outputDir, keepLastN: keepLastN}, nil
}

// filename uses the scenario name and seed as the natural dedup key.
func (s *Storage) filename(b *eventlog.Bundle) string {
	return fmt.Sprintf("bundle-%s-seed%d.vwhb", b.ScenarioID, b.Seed)
}

// SaveBundle writes b's framed binary encoding to outputDir and returns
// the path written.
func (s *Storage) SaveBundle(b *eventlog.Bundle) (string, error) {
	data, err := b.Write()
	if err != nil {
		return "", fmt.Errorf("repro: encoding bundle: %w", err)
	}
	path := filepath.Join(s.outputDir, s.filename(b))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("repro: writing bundle: %w", err)
	}
	if s.keepLastN > 0 {
		if err := s.cleanupOldBundles(); err != nil {
			return path, fmt.Errorf("repro: bundle saved but cleanup failed: %w", err)
		}
	}
	return path, nil
}

// LoadBundle reads and decodes a bundle previously written by SaveBundle
// (or produced by any other build stamping the same format version).
func LoadBundle(path string, eventLogCapacity int) (*eventlog.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("repro: reading bundle: %w", err)
	}
	return eventlog.ReadBundle(data, eventLogCapacity, eventlog.OverflowSpill)
}

// cleanupOldBundles removes the oldest bundle files (by filesystem mtime)
// once the directory holds more than keepLastN.
func (s *Storage) cleanupOldBundles() error {
	entries, err := os.ReadDir(s.outputDir)
	if err != nil {
		return fmt.Errorf("listing output directory: %w", err)
	}

	type fileInfo struct {
		path    string
		name    string
		modTime int64
	}
	var files []fileInfo
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".vwhb" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return fmt.Errorf("reading bundle info %s: %w", e.Name(), err)
		}
		files = append(files, fileInfo{path: filepath.Join(s.outputDir, e.Name()), name: e.Name(), modTime: info.ModTime().UnixNano()})
	}
	if len(files) <= s.keepLastN {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].modTime != files[j].modTime {
			return files[i].modTime < files[j].modTime
		}
		return files[i].name < files[j].name
	})
	for _, f := range files[:len(files)-s.keepLastN] {
		if err := os.Remove(f.path); err != nil {
			return fmt.Errorf("removing old bundle %s: %w", f.path, err)
		}
	}
	return nil
}
