package store

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration is returned for incomplete backend configuration.
	ErrConfiguration = errors.New("invalid backend configuration")
	// ErrUnsupportedBackend is returned when no strategy matches the configured backend.
	ErrUnsupportedBackend = errors.New("unsupported backend")
)

// BackendType selects the persistence strategy.
type BackendType string

const (
	// Relational is a SQL table read and written per request (PostgreSQL or SQLite).
	Relational BackendType = "relational"
	// Document is a MongoDB collection read and written per request.
	Document BackendType = "document"
	// AtomicRemoteKV is a Redis counter incremented atomically with expiry.
	AtomicRemoteKV BackendType = "atomic-remote-kv"
	// Memory keeps records in process. Not shared between instances.
	Memory BackendType = "memory"
	// MemoryAtomic keeps expiring counters in process. Not shared between instances.
	MemoryAtomic BackendType = "memory-atomic"
)

// DefaultPrefix namespaces counter keys when no prefix is configured.
const DefaultPrefix = "ratelimit"

// DefaultDatabase is the document database used when none is configured.
const DefaultDatabase = "guardflux"

// Config describes the backend to open.
type Config struct {
	Type     BackendType
	URI      string
	Prefix   string
	Database string

	// MaxRetries bounds conflict retries for record stores. Zero selects the default.
	MaxRetries int
}

// Validate reports missing or unsupported settings.
func (c Config) Validate() error {
	switch c.Type {
	case "":
		return fmt.Errorf("%w: backend type is required", ErrConfiguration)
	case Memory, MemoryAtomic:
		return nil
	case Relational:
		if c.URI == "" {
			return fmt.Errorf("%w: connection uri is required", ErrConfiguration)
		}

		if _, ok := relationalDriver(c.URI); !ok {
			return fmt.Errorf("%w: no relational driver for uri %q", ErrUnsupportedBackend, redactURI(c.URI))
		}

		return nil
	case Document:
		if c.URI == "" {
			return fmt.Errorf("%w: connection uri is required", ErrConfiguration)
		}

		return nil
	case AtomicRemoteKV:
		if c.URI == "" {
			return fmt.Errorf("%w: connection uri is required", ErrConfiguration)
		}

		if c.Prefix == "" {
			return fmt.Errorf("%w: key prefix is required for %s", ErrConfiguration, AtomicRemoteKV)
		}

		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedBackend, c.Type)
	}
}

type sqlDriver int

const (
	driverPostgres sqlDriver = iota
	driverSQLite
)

func relationalDriver(uri string) (sqlDriver, bool) {
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return driverPostgres, true
	case strings.HasPrefix(uri, "sqlite://"), strings.HasPrefix(uri, "file:"):
		return driverSQLite, true
	default:
		return 0, false
	}
}

func sqliteDSN(uri string) string {
	return strings.TrimPrefix(uri, "sqlite://")
}

// redactURI keeps the scheme only, so credentials never reach logs or errors.
func redactURI(uri string) string {
	if i := strings.Index(uri, "://"); i != -1 {
		return uri[:i+3] + "..."
	}

	return "..."
}
