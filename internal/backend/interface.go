package backend

import (
	"context"

	"envelopes/internal/repository"
)

// CleanupFunc releases resources held by a backend
type CleanupFunc func() error

// BackendResult contains the repository and an optional cleanup function
type BackendResult struct {
	Repository repository.Repository
	Cleanup    CleanupFunc
}

// Close runs the cleanup function if one was set
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates repositories based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Memory specific: optional YAML seed
	SeedFile string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
