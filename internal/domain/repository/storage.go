package repository

import (
	"context"
	"errors"
	"io"

	"github.com/zots0127/fileshare/internal/domain/entities"
)

// ObjectStore is the gateway to the remote object store.
// Each call acquires and releases its own connection.
type ObjectStore interface {
	// Exists lists the namespace and reports whether name is present
	Exists(ctx context.Context, name string) (bool, error)

	// Put uploads a staged local file under name
	Put(ctx context.Context, localPath, name string) error

	// Get opens an object for streaming; the connection is released on Close
	Get(ctx context.Context, name string) (io.ReadCloser, error)

	// Stat returns live size and modification time of an object
	Stat(ctx context.Context, name string) (*entities.ObjectInfo, error)

	// Rename moves an object; may be copy+delete on stores without atomic rename.
	// A copy whose source delete failed is reported as ErrRenameIncomplete.
	Rename(ctx context.Context, oldName, newName string) error

	// Remove deletes an object; removing a missing object is not an error
	Remove(ctx context.Context, name string) error

	// Backend returns the transport type identifier ("s3", "ftp", "local")
	Backend() string
}

// StoreBackend identifies an object store transport
type StoreBackend string

const (
	StoreBackendLocal StoreBackend = "local"
	StoreBackendS3    StoreBackend = "s3"
	StoreBackendFTP   StoreBackend = "ftp"
)

// Object store errors
var (
	ErrObjectNotFound   = errors.New("object not found")
	ErrStoreTimeout     = errors.New("object store operation timed out")
	ErrRenameIncomplete = errors.New("rename target written but source not removed")
)

// StoreError wraps a transport failure with the operation that caused it
type StoreError struct {
	Op   string
	Name string
	Err  error
}

func (e *StoreError) Error() string {
	return "object store " + e.Op + " " + e.Name + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
