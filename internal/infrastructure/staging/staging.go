// Package staging writes incoming uploads to local disk before they are
// moved to the object store.
package staging

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// Stager owns the staging directory
type Stager struct {
	dir     string
	maxSize int64
}

// ErrTooLarge is returned when an upload exceeds the configured limit
var ErrTooLarge = errors.New("upload exceeds maximum size")

// New creates the staging directory if needed. maxSize <= 0 disables the limit.
func New(dir string, maxSize int64) (*Stager, error) {
	if dir == "" {
		return nil, errors.New("staging directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return &Stager{dir: dir, maxSize: maxSize}, nil
}

// Dir returns the staging directory
func (s *Stager) Dir() string {
	return s.dir
}

// Stage copies r to a uniquely named file and detects its content type.
// name is the file name requested by the uploader; it is not used on disk.
func (s *Stager) Stage(name string, r io.Reader) (*File, error) {
	path := filepath.Join(s.dir, uuid.NewString())
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("create staged file: %w", err)
	}

	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}

	size, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxSize > 0 && size > s.maxSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("stage %s: %w", name, err)
	}

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	return &File{path: path, name: name, contentType: contentType, size: size}, nil
}

// File is one staged upload
type File struct {
	path        string
	name        string
	contentType string
	size        int64
}

// Path returns the local path of the staged bytes
func (f *File) Path() string { return f.path }

// Name returns the requested file name
func (f *File) Name() string { return f.name }

// ContentType returns the detected MIME type
func (f *File) ContentType() string { return f.contentType }

// Size returns the staged size in bytes
func (f *File) Size() int64 { return f.size }

// Remove deletes the staged copy; removing twice is not an error
func (f *File) Remove() error {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
