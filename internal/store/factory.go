package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Factory opens index writers.
type Factory interface {
	// Open opens or creates the writer for location. An empty location
	// opens an in-memory index.
	Open(location string, analysis AnalysisConfig) (Writer, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(location string, analysis AnalysisConfig) (Writer, error)

// Open implements Factory.
func (f FactoryFunc) Open(location string, analysis AnalysisConfig) (Writer, error) {
	return f(location, analysis)
}

// ParseBackend converts a backend name to a Backend.
// The empty string selects bleve.
func ParseBackend(name string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(name))) {
	case BackendBleve, "":
		return BackendBleve, nil
	case BackendSQLite:
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unknown index backend: %s (valid options: bleve, sqlite)", name)
	}
}

// NewFactory returns the Factory for backend.
//
// backend options:
//   - "bleve" (default): bleve v2 index directory at the location
//   - "sqlite": SQLite FTS5 database file inside the location directory
func NewFactory(backend string) (Factory, error) {
	b, err := ParseBackend(backend)
	if err != nil {
		return nil, err
	}

	switch b {
	case BackendSQLite:
		return FactoryFunc(func(location string, analysis AnalysisConfig) (Writer, error) {
			var path string
			if location != "" {
				path = filepath.Join(location, sqliteFileName)
			}
			return NewSQLiteWriter(path, analysis)
		}), nil
	default:
		return FactoryFunc(func(location string, analysis AnalysisConfig) (Writer, error) {
			return NewBleveWriter(location, analysis)
		}), nil
	}
}
