// Package loader reads FHIR patient bundles from disk.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fhir-dataset-forge/pkg/fhir"
)

// Loader reads patient bundle JSON files.
type Loader struct {
	logger *logrus.Logger
}

// NewLoader creates a bundle loader.
func NewLoader(logger *logrus.Logger) *Loader {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loader{logger: logger}
}

// LoadFile reads one bundle from a JSON file.
func (l *Loader) LoadFile(path string) (*fhir.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file: %w", err)
	}

	var bundle fhir.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse bundle %s: %w", filepath.Base(path), err)
	}
	return &bundle, nil
}

// LoadDir reads every *.json bundle in a directory, in filename order.
// Files that fail to parse are logged and skipped.
func (l *Loader) LoadDir(dir string) ([]*fhir.Bundle, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	var bundles []*fhir.Bundle
	for _, name := range names {
		bundle, err := l.LoadFile(filepath.Join(dir, name))
		if err != nil {
			l.logger.WithError(err).WithField("file", name).Warn("Skipping unreadable bundle")
			continue
		}
		bundles = append(bundles, bundle)
	}

	if len(bundles) == 0 {
		return nil, fmt.Errorf("no readable bundles in %s", dir)
	}

	l.logger.WithFields(logrus.Fields{
		"dir":     dir,
		"bundles": len(bundles),
	}).Info("Loaded patient bundles")

	return bundles, nil
}
