package objectstore

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zots0127/fileshare/internal/domain/repository"
)

func newFakeS3Transport(t *testing.T, prefix string) *S3Transport {
	t.Helper()
	return newFakeS3TransportWith(t, prefix, nil)
}

// newFakeS3TransportWith serves an in-memory bucket, optionally wrapping the
// fake server's handler
func newFakeS3TransportWith(t *testing.T, prefix string, wrap func(http.Handler) http.Handler) *S3Transport {
	t.Helper()

	var h http.Handler = gofakes3.New(s3mem.New()).Server()
	if wrap != nil {
		h = wrap(h)
	}
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	transport, err := NewS3Transport(S3Config{
		Endpoint:        server.URL,
		Region:          "us-east-1",
		Bucket:          "fileshare",
		Prefix:          prefix,
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
		DisableSSL:      true,
	})
	require.NoError(t, err)
	require.NoError(t, transport.EnsureBucket(context.Background()))
	require.NoError(t, transport.EnsureBucket(context.Background()), "ensure is idempotent")
	return transport
}

func TestGateway_S3(t *testing.T) {
	g := NewGateway(newFakeS3Transport(t, ""), 5*time.Second, nil)
	require.Equal(t, "s3", g.Backend())
	exerciseGateway(t, g)
}

func TestGateway_S3WithPrefix(t *testing.T) {
	g := NewGateway(newFakeS3Transport(t, "/uploads/"), 5*time.Second, nil)
	exerciseGateway(t, g)
}

func TestGateway_S3RenameWithFailedSourceDelete(t *testing.T) {
	denyDeletes := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodDelete {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	g := NewGateway(newFakeS3TransportWith(t, "", denyDeletes), 5*time.Second, nil)
	ctx := context.Background()

	require.NoError(t, g.Put(ctx, stageFile(t, "payload"), "a.txt"))

	err := g.Rename(ctx, "a.txt", "b.txt")
	require.ErrorIs(t, err, repository.ErrRenameIncomplete)

	for _, name := range []string{"a.txt", "b.txt"} {
		exists, err := g.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, exists, "%s is present after the copy", name)
	}
}
