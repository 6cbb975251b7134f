package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
	"github.com/zots0127/fileshare/pkg/metrics"
)

// DefaultOperationTimeout bounds a gateway call when none is configured
const DefaultOperationTimeout = 30 * time.Second

// Gateway implements repository.ObjectStore. Every call dials its own
// connection and releases it before returning, except Get which releases it
// when the returned reader is closed.
type Gateway struct {
	transport Transport
	timeout   time.Duration
	logger    *zap.Logger
}

var _ repository.ObjectStore = (*Gateway)(nil)

// NewGateway creates a gateway over transport
func NewGateway(transport Transport, timeout time.Duration, logger *zap.Logger) *Gateway {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		transport: transport,
		timeout:   timeout,
		logger:    logger.With(zap.String("backend", transport.Backend())),
	}
}

// New builds the transport described by cfg and wraps it in a gateway
func New(cfg Config, logger *zap.Logger) (*Gateway, error) {
	transport, err := NewTransport(cfg)
	if err != nil {
		return nil, err
	}
	return NewGateway(transport, cfg.OperationTimeout, logger), nil
}

// Backend returns the transport type identifier
func (g *Gateway) Backend() string {
	return g.transport.Backend()
}

// Exists lists the namespace and reports an exact name match
func (g *Gateway) Exists(ctx context.Context, name string) (bool, error) {
	return call(g, ctx, "list", name, func(ctx context.Context, conn Conn) (bool, error) {
		objects, err := conn.List(ctx)
		if err != nil {
			return false, err
		}
		for _, obj := range objects {
			if obj.Name == name {
				return true, nil
			}
		}
		return false, nil
	})
}

// Put uploads the local staged file under name
func (g *Gateway) Put(ctx context.Context, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return &repository.StoreError{Op: "put", Name: name, Err: fmt.Errorf("open staged file: %w", err)}
	}
	defer f.Close()

	return g.run(ctx, "put", name, func(ctx context.Context, conn Conn) error {
		return conn.Upload(ctx, name, f)
	})
}

// Get opens name for streaming. The deadline covers opening the object only.
func (g *Gateway) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	start := time.Now()
	openCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	conn, err := g.transport.Dial(openCtx)
	if err != nil {
		err = g.wrap(openCtx, "get", name, err)
		g.observe("get", name, start, err)
		return nil, err
	}
	conn = &onceConn{Conn: conn}

	type result struct {
		rc  io.ReadCloser
		err error
	}
	done := make(chan result, 1)
	go func() {
		rc, err := conn.Download(ctx, name)
		done <- result{rc, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			conn.Close()
			err = g.wrap(openCtx, "get", name, res.err)
			g.observe("get", name, start, err)
			return nil, err
		}
		g.observe("get", name, start, nil)
		return &streamReader{ReadCloser: res.rc, conn: conn}, nil
	case <-openCtx.Done():
		conn.Close()
		go func() {
			if res := <-done; res.rc != nil {
				res.rc.Close()
			}
		}()
		err = g.wrap(openCtx, "get", name, openCtx.Err())
		g.observe("get", name, start, err)
		return nil, err
	}
}

// Stat returns live size and modification time
func (g *Gateway) Stat(ctx context.Context, name string) (*entities.ObjectInfo, error) {
	return call(g, ctx, "stat", name, func(ctx context.Context, conn Conn) (*entities.ObjectInfo, error) {
		return conn.Stat(ctx, name)
	})
}

// Rename moves oldName to newName
func (g *Gateway) Rename(ctx context.Context, oldName, newName string) error {
	return g.run(ctx, "rename", oldName, func(ctx context.Context, conn Conn) error {
		return conn.Rename(ctx, oldName, newName)
	})
}

// Remove deletes name; a missing object is not an error
func (g *Gateway) Remove(ctx context.Context, name string) error {
	err := g.run(ctx, "remove", name, func(ctx context.Context, conn Conn) error {
		return conn.Remove(ctx, name)
	})
	if errors.Is(err, repository.ErrObjectNotFound) {
		return nil
	}
	return err
}

// run is call for operations that return only an error
func (g *Gateway) run(ctx context.Context, op, name string, fn func(context.Context, Conn) error) error {
	_, err := call(g, ctx, op, name, func(ctx context.Context, conn Conn) (struct{}, error) {
		return struct{}{}, fn(ctx, conn)
	})
	return err
}

// call dials a connection, runs fn under the operation deadline and closes the
// connection on every path. Transports that ignore ctx are unblocked by
// closing their connection when the deadline passes. The result travels over
// the channel so an abandoned fn never writes to memory the caller reads.
func call[T any](g *Gateway, ctx context.Context, op, name string, fn func(context.Context, Conn) (T, error)) (val T, err error) {
	start := time.Now()
	defer func() { g.observe(op, name, start, err) }()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.transport.Dial(ctx)
	if err != nil {
		return val, g.wrap(ctx, op, name, err)
	}
	conn := &onceConn{Conn: raw}
	defer conn.Close()

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx, conn)
		done <- result{v, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return val, g.wrap(ctx, op, name, res.err)
		}
		return res.val, nil
	case <-ctx.Done():
		conn.Close()
		return val, g.wrap(ctx, op, name, ctx.Err())
	}
}

// wrap annotates a transport error with the operation and maps deadlines to
// repository.ErrStoreTimeout
func (g *Gateway) wrap(ctx context.Context, op, name string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = errors.Join(repository.ErrStoreTimeout, err)
	}
	return &repository.StoreError{Op: op, Name: name, Err: err}
}

func (g *Gateway) observe(op, name string, start time.Time, err error) {
	elapsed := time.Since(start)
	ok := err == nil || errors.Is(err, repository.ErrObjectNotFound)
	metrics.RecordStoreOperation(g.transport.Backend(), op, elapsed, ok)

	if !ok {
		g.logger.Warn("object store operation failed",
			zap.String("op", op),
			zap.String("file", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	g.logger.Debug("object store operation",
		zap.String("op", op),
		zap.String("file", name),
		zap.Duration("elapsed", elapsed),
	)
}

// onceConn makes Close idempotent so the deadline path and the deferred
// release can both call it
type onceConn struct {
	Conn
	once sync.Once
	err  error
}

func (c *onceConn) Close() error {
	c.once.Do(func() {
		c.err = c.Conn.Close()
	})
	return c.err
}

// streamReader releases the connection after the object reader
type streamReader struct {
	io.ReadCloser
	conn Conn
}

func (s *streamReader) Close() error {
	err := s.ReadCloser.Close()
	if cerr := s.conn.Close(); err == nil {
		err = cerr
	}
	return err
}
