package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// Supported catalog drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// CatalogConfig configures the SQL catalog connection
type CatalogConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// SQLCatalog implements repository.Catalog on database/sql.
// Queries are written with ? placeholders and rebound for Postgres.
type SQLCatalog struct {
	db     *sql.DB
	driver string
}

var _ repository.Catalog = (*SQLCatalog)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS files (
	name TEXT PRIMARY KEY,
	uploaded_by TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	modified_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_uploaded_by ON files(uploaded_by);

CREATE TABLE IF NOT EXISTS file_permissions (
	file_name TEXT NOT NULL,
	user_email TEXT NOT NULL,
	can_read BOOLEAN NOT NULL DEFAULT 0,
	can_edit BOOLEAN NOT NULL DEFAULT 0,
	can_download BOOLEAN NOT NULL DEFAULT 0,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (file_name, user_email)
);

CREATE INDEX IF NOT EXISTS idx_file_permissions_user ON file_permissions(user_email);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS files (
	name TEXT PRIMARY KEY,
	uploaded_by TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'application/octet-stream',
	size_bytes BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	modified_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_files_uploaded_by ON files(uploaded_by);

CREATE TABLE IF NOT EXISTS file_permissions (
	file_name TEXT NOT NULL,
	user_email TEXT NOT NULL,
	can_read BOOLEAN NOT NULL DEFAULT FALSE,
	can_edit BOOLEAN NOT NULL DEFAULT FALSE,
	can_download BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (file_name, user_email)
);

CREATE INDEX IF NOT EXISTS idx_file_permissions_user ON file_permissions(user_email);
`

// NewSQLCatalog opens the catalog database and creates the schema
func NewSQLCatalog(ctx context.Context, cfg CatalogConfig) (*SQLCatalog, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported catalog driver: %s", driver)
	}

	dsn := cfg.DSN
	if driver == DriverSQLite {
		dsn = sqliteDSN(dsn)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	catalog, err := NewSQLCatalogFromDB(ctx, db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	return catalog, nil
}

// NewSQLCatalogFromDB wraps an open database and creates the schema
func NewSQLCatalogFromDB(ctx context.Context, db *sql.DB, driver string) (*SQLCatalog, error) {
	c := &SQLCatalog{db: db, driver: driver}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach catalog database: %w", err)
	}

	schema := sqliteSchema
	if driver == DriverPostgres {
		schema = postgresSchema
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}

	return c, nil
}

// sqliteDSN adds a busy timeout so concurrent writers wait instead of failing
func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "fileshare.db"
	}
	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=busy_timeout(5000)"
}

// DB returns the underlying database handle
func (c *SQLCatalog) DB() *sql.DB {
	return c.db
}

// Close closes the database connection
func (c *SQLCatalog) Close() error {
	return c.db.Close()
}

// Ping verifies the database is reachable
func (c *SQLCatalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// RegisterFile inserts a file record
func (c *SQLCatalog) RegisterFile(ctx context.Context, file *entities.FileObject) error {
	now := time.Now().UTC()
	createdAt := file.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	modifiedAt := file.ModifiedAt
	if modifiedAt.IsZero() {
		modifiedAt = now
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return c.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := c.fileExists(ctx, tx, file.Name)
		if err != nil {
			return err
		}
		if exists {
			return repository.ErrFileExists
		}

		_, err = tx.ExecContext(ctx, c.rebind(
			`INSERT INTO files (name, uploaded_by, content_type, size_bytes, created_at, modified_at)
			 VALUES (?, ?, ?, ?, ?, ?)`),
			file.Name, entities.NormalizeEmail(file.UploadedBy), contentType, file.SizeBytes, createdAt, modifiedAt)
		if isUniqueViolation(err) {
			return repository.ErrFileExists
		}
		if err != nil {
			return fmt.Errorf("register file: %w", err)
		}
		return nil
	})
}

// GetFile returns a file record
func (c *SQLCatalog) GetFile(ctx context.Context, name string) (*entities.FileObject, error) {
	row := c.db.QueryRowContext(ctx, c.rebind(
		`SELECT name, uploaded_by, content_type, size_bytes, created_at, modified_at
		 FROM files WHERE name = ?`), name)

	file, err := scanFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	return file, nil
}

// RenameFile renames a file and cascades the new name to its permission rows
func (c *SQLCatalog) RenameFile(ctx context.Context, oldName, newName string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := c.fileExists(ctx, tx, oldName)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrFileNotFound
		}

		taken, err := c.fileExists(ctx, tx, newName)
		if err != nil {
			return err
		}
		if taken {
			return repository.ErrFileExists
		}

		if _, err := tx.ExecContext(ctx, c.rebind(
			`UPDATE files SET name = ?, modified_at = ? WHERE name = ?`),
			newName, time.Now().UTC(), oldName); err != nil {
			return fmt.Errorf("rename file: %w", err)
		}

		if _, err := tx.ExecContext(ctx, c.rebind(
			`UPDATE file_permissions SET file_name = ? WHERE file_name = ?`),
			newName, oldName); err != nil {
			return fmt.Errorf("rename file permissions: %w", err)
		}
		return nil
	})
}

// DeleteFile removes a file and all of its permission rows
func (c *SQLCatalog) DeleteFile(ctx context.Context, name string) error {
	return c.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, c.rebind(
			`DELETE FROM file_permissions WHERE file_name = ?`), name); err != nil {
			return fmt.Errorf("delete file permissions: %w", err)
		}

		res, err := tx.ExecContext(ctx, c.rebind(`DELETE FROM files WHERE name = ?`), name)
		if err != nil {
			return fmt.Errorf("delete file: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return repository.ErrFileNotFound
		}
		return nil
	})
}

// UpsertPermissions inserts or partially updates one permission row
func (c *SQLCatalog) UpsertPermissions(ctx context.Context, fileName, userEmail string, patch entities.PermissionPatch) error {
	userEmail = entities.NormalizeEmail(userEmail)

	return c.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := c.fileExists(ctx, tx, fileName)
		if err != nil {
			return err
		}
		if !exists {
			return repository.ErrFileNotFound
		}

		query := `SELECT can_read, can_edit, can_download FROM file_permissions
		          WHERE file_name = ? AND user_email = ?`
		if c.driver == DriverPostgres {
			query += " FOR UPDATE"
		}

		var current entities.PermissionFlags
		err = tx.QueryRowContext(ctx, c.rebind(query), fileName, userEmail).
			Scan(&current.CanRead, &current.CanEdit, &current.CanDownload)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("read permission: %w", err)
		}

		next := patch.Apply(current)
		_, err = tx.ExecContext(ctx, c.rebind(
			`INSERT INTO file_permissions (file_name, user_email, can_read, can_edit, can_download, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (file_name, user_email) DO UPDATE SET
			 	can_read = excluded.can_read,
			 	can_edit = excluded.can_edit,
			 	can_download = excluded.can_download,
			 	updated_at = excluded.updated_at`),
			fileName, userEmail, next.CanRead, next.CanEdit, next.CanDownload, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("upsert permission: %w", err)
		}
		return nil
	})
}

// GetPermission returns one permission row
func (c *SQLCatalog) GetPermission(ctx context.Context, fileName, userEmail string) (*entities.PermissionRecord, error) {
	row := c.db.QueryRowContext(ctx, c.rebind(
		`SELECT file_name, user_email, can_read, can_edit, can_download, updated_at
		 FROM file_permissions WHERE file_name = ? AND user_email = ?`),
		fileName, entities.NormalizeEmail(userEmail))

	record, err := scanPermission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrPermissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get permission: %w", err)
	}
	return record, nil
}

// ListPermissionsForUser returns every permission row held by a user
func (c *SQLCatalog) ListPermissionsForUser(ctx context.Context, userEmail string) ([]*entities.PermissionRecord, error) {
	return c.queryPermissions(ctx,
		`SELECT file_name, user_email, can_read, can_edit, can_download, updated_at
		 FROM file_permissions WHERE user_email = ? ORDER BY file_name`,
		entities.NormalizeEmail(userEmail))
}

// ListPermissionsForFile returns every permission row of a file
func (c *SQLCatalog) ListPermissionsForFile(ctx context.Context, fileName string) ([]*entities.PermissionRecord, error) {
	return c.queryPermissions(ctx,
		`SELECT file_name, user_email, can_read, can_edit, can_download, updated_at
		 FROM file_permissions WHERE file_name = ? ORDER BY user_email`,
		fileName)
}

// ListFilesOwnedBy returns the files uploaded by a user
func (c *SQLCatalog) ListFilesOwnedBy(ctx context.Context, userEmail string) ([]*entities.FileObject, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(
		`SELECT name, uploaded_by, content_type, size_bytes, created_at, modified_at
		 FROM files WHERE uploaded_by = ? ORDER BY name`),
		entities.NormalizeEmail(userEmail))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var files []*entities.FileObject
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (c *SQLCatalog) queryPermissions(ctx context.Context, query string, args ...interface{}) ([]*entities.PermissionRecord, error) {
	rows, err := c.db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	var records []*entities.PermissionRecord
	for rows.Next() {
		record, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (c *SQLCatalog) fileExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var exists bool
	err := tx.QueryRowContext(ctx, c.rebind(
		`SELECT EXISTS(SELECT 1 FROM files WHERE name = ?)`), name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check file: %w", err)
	}
	return exists, nil
}

// withTx runs fn in one transaction, rolling back on error
func (c *SQLCatalog) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// rebind converts ? placeholders to $n for Postgres
func (c *SQLCatalog) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFile(s scanner) (*entities.FileObject, error) {
	var f entities.FileObject
	if err := s.Scan(&f.Name, &f.UploadedBy, &f.ContentType, &f.SizeBytes, &f.CreatedAt, &f.ModifiedAt); err != nil {
		return nil, err
	}
	return &f, nil
}

func scanPermission(s scanner) (*entities.PermissionRecord, error) {
	var p entities.PermissionRecord
	if err := s.Scan(&p.FileName, &p.UserEmail, &p.CanRead, &p.CanEdit, &p.CanDownload, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}
