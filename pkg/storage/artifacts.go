// Package storage persists the per-aggregate request documents the
// scheduler sends to providers, so an operator can replay or inspect
// exactly what was asked for on each attempt.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kimjh/vlanstitch/pkg/reporting"
)

// ArtifactStore writes request documents under a caller-provided
// directory.
type ArtifactStore struct {
	dir    string
	logger *reporting.Logger
}

// NewArtifactStore creates the directory if needed and returns a store.
func NewArtifactStore(dir string, logger *reporting.Logger) (*ArtifactStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &ArtifactStore{dir: dir, logger: logger}, nil
}

// WriteRequest persists one request document as
// <opName>-request-<pceCallIdx><allocateTries>.xml.
func (s *ArtifactStore) WriteRequest(opName string, pceCallIdx, allocateTries int, doc []byte) error {
	filename := fmt.Sprintf("%s-request-%d%d.xml", opName, pceCallIdx, allocateTries)
	path := filepath.Join(s.dir, filename)

	if err := os.WriteFile(path, doc, 0644); err != nil {
		return fmt.Errorf("failed to write request artifact: %w", err)
	}

	s.logger.Debug("Request artifact saved", "path", path)
	return nil
}

// ListRequests returns the persisted request filenames for opName,
// sorted by name. The counters in the names are not zero-padded, so
// this matches attempt order only while both are single digits.
func (s *ArtifactStore) ListRequests(opName string) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact directory: %w", err)
	}

	var names []string
	prefix := opName + "-request-"
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasPrefix(entry.Name(), prefix) && filepath.Ext(entry.Name()) == ".xml" {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Dir returns the artifact directory path.
func (s *ArtifactStore) Dir() string {
	return s.dir
}
