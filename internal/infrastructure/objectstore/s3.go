package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/zots0127/fileshare/internal/domain/entities"
	"github.com/zots0127/fileshare/internal/domain/repository"
)

// S3Config configures the S3 transport
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
	DisableSSL      bool
}

// S3Transport stores objects as keys of one bucket. Rename is copy then
// delete and is not atomic.
type S3Transport struct {
	client   *s3.S3
	uploader *s3manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Transport creates an S3 session
func NewS3Transport(cfg S3Config) (*S3Transport, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	awsCfg := &aws.Config{
		Region:           aws.String(cfg.Region),
		S3ForcePathStyle: aws.Bool(cfg.ForcePathStyle),
		DisableSSL:       aws.Bool(cfg.DisableSSL),
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create s3 session: %w", err)
	}

	client := s3.New(sess)
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}

	return &S3Transport{
		client:   client,
		uploader: s3manager.NewUploaderWithClient(client),
		bucket:   cfg.Bucket,
		prefix:   prefix,
	}, nil
}

// Backend returns "s3"
func (t *S3Transport) Backend() string {
	return string(repository.StoreBackendS3)
}

// Dial returns a logical connection; the SDK pools HTTP connections itself
func (t *S3Transport) Dial(ctx context.Context) (Conn, error) {
	return &s3Conn{t: t}, nil
}

// EnsureBucket creates the bucket when it does not exist
func (t *S3Transport) EnsureBucket(ctx context.Context) error {
	_, err := t.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.bucket)})
	if err == nil {
		return nil
	}
	_, err = t.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{Bucket: aws.String(t.bucket)})
	if aerr, ok := err.(awserr.Error); ok && aerr.Code() == s3.ErrCodeBucketAlreadyOwnedByYou {
		return nil
	}
	return err
}

type s3Conn struct {
	t *S3Transport
}

func (c *s3Conn) key(name string) string {
	return c.t.prefix + name
}

func (c *s3Conn) List(ctx context.Context) ([]entities.ObjectInfo, error) {
	var objects []entities.ObjectInfo
	err := c.t.client.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(c.t.bucket),
		Prefix: aws.String(c.t.prefix),
	}, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.StringValue(obj.Key), c.t.prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			objects = append(objects, entities.ObjectInfo{
				Name:       name,
				SizeBytes:  aws.Int64Value(obj.Size),
				ModifiedAt: aws.TimeValue(obj.LastModified),
			})
		}
		return true
	})
	return objects, err
}

// Upload streams r through the multipart uploader
func (c *s3Conn) Upload(ctx context.Context, name string, r io.Reader) error {
	_, err := c.t.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(c.t.bucket),
		Key:    aws.String(c.key(name)),
		Body:   r,
	})
	return err
}

func (c *s3Conn) Download(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := c.t.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.t.bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return nil, s3NotFound(err)
	}
	return out.Body, nil
}

func (c *s3Conn) Stat(ctx context.Context, name string) (*entities.ObjectInfo, error) {
	out, err := c.t.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.t.bucket),
		Key:    aws.String(c.key(name)),
	})
	if err != nil {
		return nil, s3NotFound(err)
	}
	return &entities.ObjectInfo{
		Name:       name,
		SizeBytes:  aws.Int64Value(out.ContentLength),
		ModifiedAt: aws.TimeValue(out.LastModified),
	}, nil
}

// Rename copies the object to the new key and deletes the old one
func (c *s3Conn) Rename(ctx context.Context, oldName, newName string) error {
	source := (&url.URL{Path: c.t.bucket + "/" + c.key(oldName)}).EscapedPath()
	_, err := c.t.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.t.bucket),
		Key:        aws.String(c.key(newName)),
		CopySource: aws.String(source),
	})
	if err != nil {
		return s3NotFound(err)
	}

	_, err = c.t.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.t.bucket),
		Key:    aws.String(c.key(oldName)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s after copy to %s: %w", repository.ErrRenameIncomplete, oldName, newName, err)
	}
	return nil
}

func (c *s3Conn) Remove(ctx context.Context, name string) error {
	_, err := c.t.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.t.bucket),
		Key:    aws.String(c.key(name)),
	})
	return s3NotFound(err)
}

func (c *s3Conn) Close() error {
	return nil
}

func s3NotFound(err error) error {
	if err == nil {
		return nil
	}
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("%w: %v", repository.ErrObjectNotFound, err)
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return fmt.Errorf("%w: %v", repository.ErrObjectNotFound, err)
		}
	}
	return err
}
