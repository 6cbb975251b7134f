package objectstore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// FTPConfig configures the FTP transport
type FTPConfig struct {
	Address     string
	Username    string
	Password    string
	Root        string
	ExplicitTLS bool
	DialTimeout time.Duration
}

// FTPTransport opens one FTP control connection per gateway call.
// The FTP client does not take a context for transfers; the gateway closes
// the connection when its deadline passes.
type FTPTransport struct {
	cfg FTPConfig
}

// NewFTPTransport validates the FTP configuration
func NewFTPTransport(cfg FTPConfig) (*FTPTransport, error) {
	if cfg.Address == "" {
		return nil, errors.New("ftp address is required")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	return &FTPTransport{cfg: cfg}, nil
}

// Backend returns "ftp"
func (t *FTPTransport) Backend() string {
	return string(repository.StoreBackendFTP)
}

// Dial connects, logs in and enters the configured root directory
func (t *FTPTransport) Dial(ctx context.Context) (Conn, error) {
	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(t.cfg.DialTimeout),
	}
	if t.cfg.ExplicitTLS {
		host, _, err := net.SplitHostPort(t.cfg.Address)
		if err != nil {
			host = t.cfg.Address
		}
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}))
	}

	c, err := ftp.Dial(t.cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", t.cfg.Address, err)
	}

	if err := c.Login(t.cfg.Username, t.cfg.Password); err != nil {
		c.Quit()
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	if t.cfg.Root != "" {
		if err := c.ChangeDir(t.cfg.Root); err != nil {
			c.Quit()
			return nil, fmt.Errorf("ftp change dir %s: %w", t.cfg.Root, err)
		}
	}

	return &ftpConn{c: c}, nil
}

type ftpConn struct {
	c *ftp.ServerConn
}

func (c *ftpConn) List(ctx context.Context) ([]entities.ObjectInfo, error) {
	entries, err := c.c.List("")
	if err != nil {
		return nil, err
	}

	objects := make([]entities.ObjectInfo, 0, len(entries))
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		objects = append(objects, entities.ObjectInfo{
			Name:       e.Name,
			SizeBytes:  int64(e.Size),
			ModifiedAt: e.Time,
		})
	}
	return objects, nil
}

func (c *ftpConn) Upload(ctx context.Context, name string, r io.Reader) error {
	return c.c.Stor(name, r)
}

func (c *ftpConn) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	resp, err := c.c.Retr(name)
	if err != nil {
		return nil, ftpNotFound(err)
	}
	return resp, nil
}

// Stat takes the size from SIZE and the modification time from the listing
func (c *ftpConn) Stat(ctx context.Context, name string) (*entities.ObjectInfo, error) {
	size, err := c.c.FileSize(name)
	if err != nil {
		return nil, ftpNotFound(err)
	}

	info := &entities.ObjectInfo{Name: name, SizeBytes: size}
	entries, err := c.c.List("")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			info.ModifiedAt = e.Time
			break
		}
	}
	return info, nil
}

func (c *ftpConn) Rename(ctx context.Context, oldName, newName string) error {
	return ftpNotFound(c.c.Rename(oldName, newName))
}

func (c *ftpConn) Remove(ctx context.Context, name string) error {
	return ftpNotFound(c.c.Delete(name))
}

func (c *ftpConn) Close() error {
	return c.c.Quit()
}

// ftpNotFound maps reply 550 to repository.ErrObjectNotFound
func ftpNotFound(err error) error {
	if err == nil {
		return nil
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
		return fmt.Errorf("%w: %v", repository.ErrObjectNotFound, err)
	}
	return err
}
