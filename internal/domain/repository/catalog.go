package repository

import (
	"context"
	"errors"

	"github.com/zots0127/fileshare/internal/domain/entities"
)

// Catalog is the authoritative record of files and their permission matrix.
// Every method runs in its own transaction.
type Catalog interface {
	// RegisterFile inserts a file record, failing with ErrFileExists on duplicates
	RegisterFile(ctx context.Context, file *entities.FileObject) error

	// GetFile returns a file record or ErrFileNotFound
	GetFile(ctx context.Context, name string) (*entities.FileObject, error)

	// RenameFile renames a file and every permission row keyed by it
	RenameFile(ctx context.Context, oldName, newName string) error

	// DeleteFile removes a file and all of its permission rows
	DeleteFile(ctx context.Context, name string) error

	// UpsertPermissions inserts or partially updates one permission row
	UpsertPermissions(ctx context.Context, fileName, userEmail string, patch entities.PermissionPatch) error

	// GetPermission returns one permission row or ErrPermissionNotFound
	GetPermission(ctx context.Context, fileName, userEmail string) (*entities.PermissionRecord, error)

	// ListPermissionsForUser returns every permission row held by a user
	ListPermissionsForUser(ctx context.Context, userEmail string) ([]*entities.PermissionRecord, error)

	// ListPermissionsForFile returns every permission row of a file
	ListPermissionsForFile(ctx context.Context, fileName string) ([]*entities.PermissionRecord, error)

	// ListFilesOwnedBy returns the files uploaded by a user
	ListFilesOwnedBy(ctx context.Context, userEmail string) ([]*entities.FileObject, error)

	// Ping verifies the catalog database is reachable
	Ping(ctx context.Context) error
}

// Catalog errors
var (
	ErrFileExists         = errors.New("file already exists in catalog")
	ErrFileNotFound       = errors.New("file not found in catalog")
	ErrPermissionNotFound = errors.New("permission not found")
)
