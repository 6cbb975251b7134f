package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// LocalConfig configures the directory-backed transport
type LocalConfig struct {
	Root string
}

// LocalTransport stores objects as flat files in one directory
type LocalTransport struct {
	root string
}

// NewLocalTransport creates the root directory if needed
func NewLocalTransport(cfg LocalConfig) (*LocalTransport, error) {
	if cfg.Root == "" {
		return nil, errors.New("local object store root is required")
	}
	if err := os.MkdirAll(cfg.Root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}
	return &LocalTransport{root: cfg.Root}, nil
}

// Backend returns "local"
func (t *LocalTransport) Backend() string {
	return string(repository.StoreBackendLocal)
}

// Dial checks the root is reachable
func (t *LocalTransport) Dial(ctx context.Context) (Conn, error) {
	info, err := os.Stat(t.root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", t.root)
	}
	return &localConn{root: t.root}, nil
}

type localConn struct {
	root string
}

func (c *localConn) path(name string) string {
	return filepath.Join(c.root, name)
}

func (c *localConn) List(ctx context.Context) ([]entities.ObjectInfo, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, err
	}

	objects := make([]entities.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		objects = append(objects, entities.ObjectInfo{
			Name:       e.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}
	return objects, nil
}

// Upload writes to a temporary file and renames it into place
func (c *localConn) Upload(ctx context.Context, name string, r io.Reader) error {
	tmp, err := os.CreateTemp(c.root, partialPrefix+"*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.path(name))
}

func (c *localConn) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(c.path(name))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

func (c *localConn) Stat(ctx context.Context, name string) (*entities.ObjectInfo, error) {
	info, err := os.Stat(c.path(name))
	if err != nil {
		return nil, notFound(err)
	}
	if info.IsDir() {
		return nil, repository.ErrObjectNotFound
	}
	return &entities.ObjectInfo{
		Name:       name,
		SizeBytes:  info.Size(),
		ModifiedAt: info.ModTime(),
	}, nil
}

func (c *localConn) Rename(ctx context.Context, oldName, newName string) error {
	if _, err := os.Stat(c.path(oldName)); err != nil {
		return notFound(err)
	}
	return os.Rename(c.path(oldName), c.path(newName))
}

func (c *localConn) Remove(ctx context.Context, name string) error {
	return notFound(os.Remove(c.path(name)))
}

func (c *localConn) Close() error {
	return nil
}

const partialPrefix = entities.ReservedNamePrefix

func isPartial(name string) bool {
	return strings.HasPrefix(name, partialPrefix)
}

func notFound(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", repository.ErrObjectNotFound, err)
	}
	return err
}
