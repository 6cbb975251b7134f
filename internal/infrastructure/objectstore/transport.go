// Package objectstore implements the object store gateway over pluggable
// transports (local directory, S3, FTP).
package objectstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// Transport opens connections to one object store
type Transport interface {
	// Dial opens a connection; ctx bounds connection setup
	Dial(ctx context.Context) (Conn, error)

	// Backend names the transport type
	Backend() string
}

// Conn is a single connection to the object store. Methods report missing
// objects with repository.ErrObjectNotFound.
type Conn interface {
	List(ctx context.Context) ([]entities.ObjectInfo, error)
	Upload(ctx context.Context, name string, r io.Reader) error
	// Download returns a reader that stays valid until the connection is closed
	Download(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (*entities.ObjectInfo, error)
	Rename(ctx context.Context, oldName, newName string) error
	Remove(ctx context.Context, name string) error
	Close() error
}

// Config selects and configures a transport
type Config struct {
	Type             string
	OperationTimeout time.Duration
	Local            LocalConfig
	S3               S3Config
	FTP              FTPConfig
}

// NewTransport builds the transport named by cfg.Type
func NewTransport(cfg Config) (Transport, error) {
	switch repository.StoreBackend(cfg.Type) {
	case repository.StoreBackendLocal, "":
		return NewLocalTransport(cfg.Local)
	case repository.StoreBackendS3:
		return NewS3Transport(cfg.S3)
	case repository.StoreBackendFTP:
		return NewFTPTransport(cfg.FTP)
	default:
		return nil, fmt.Errorf("unsupported object store type: %s", cfg.Type)
	}
}
