// Package storage provides an abstract key-path operator over pluggable
// object-storage backends (in-memory, local filesystem, S3-compatible, Redis).
// Backends are selected by URI scheme via Open.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Storage errors.
var (
	// ErrNotFound is returned when a path does not exist in the backend.
	ErrNotFound = errors.New("storage: path not found")
	// ErrUnsupportedScheme is returned by Open for an unrecognized URI scheme.
	ErrUnsupportedScheme = errors.New("storage: unsupported URI scheme")
	// ErrEmptyPath is returned when an empty path is given to an operator.
	ErrEmptyPath = errors.New("storage: path must not be empty")
)

// Operator is the abstract storage surface consumed by the audit ledger.
// Paths are forward-slash separated keys relative to the backend root.
type Operator interface {
	// Exists reports whether the path exists.
	Exists(ctx context.Context, path string) (bool, error)

	// Read returns the full content at path. Returns ErrNotFound if absent.
	Read(ctx context.Context, path string) ([]byte, error)

	// Write replaces the content at path in a single operation.
	// Partial writes must never be observable by concurrent readers.
	Write(ctx context.Context, path string, data []byte) error

	// CreateDir ensures the directory prefix exists. Backends with a flat
	// keyspace treat this as a no-op or marker write.
	CreateDir(ctx context.Context, path string) error

	// List returns all paths under the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Options carries backend credentials that cannot be expressed in the URI.
type Options struct {
	// S3-compatible backend settings.
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
}

// Open creates an Operator for the given URI. Supported schemes:
//
//	memory://           in-process map, for tests and development
//	fs:///var/data      local filesystem rooted at the given directory
//	s3://bucket         S3-compatible object storage (endpoint from opts)
//	redis://host:port/0 Redis keyspace
func Open(uri string, opts Options) (Operator, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty URI", ErrUnsupportedScheme)
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid URI %q: %w", trimmed, err)
	}

	switch parsed.Scheme {
	case "memory":
		return NewMemory(), nil
	case "fs":
		root := parsed.Path
		if parsed.Host != "" {
			// fs://relative/dir parses the first segment as a host.
			root = parsed.Host + parsed.Path
		}
		if root == "" {
			return nil, fmt.Errorf("storage: fs URI %q has no root directory", trimmed)
		}
		return NewFS(root), nil
	case "s3":
		if parsed.Host == "" {
			return nil, fmt.Errorf("storage: s3 URI %q has no bucket", trimmed)
		}
		return NewS3(parsed.Host, opts), nil
	case "redis", "rediss":
		return NewRedis(trimmed)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
}
