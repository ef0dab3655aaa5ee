package store

import (
	"fmt"
	"path/filepath"
)

// New creates a Store based on the backend name.
//
// Supported backends:
//
//	"json"   - single document file at dataDir/catalog.json
//	"csv"    - users.csv and movies.csv in dataDir
//	"sqlite" - SQLite database at dataDir/catalog.db
//
// Any other value, including the empty string, is a configuration error.
func New(backend, dataDir string) (Store, error) {
	switch backend {
	case "json":
		return NewJSONStore(dataDir)
	case "csv":
		return NewCSVStore(dataDir)
	case "sqlite":
		return NewSqliteStore(filepath.Join(dataDir, "catalog.db"))
	default:
		return nil, fmt.Errorf("%w: %q (supported: json, csv, sqlite)", ErrUnknownBackend, backend)
	}
}
