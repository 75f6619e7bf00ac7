package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API is the slice of the S3 client surface the store uses. The
// [s3.Client] type satisfies it; tests substitute fakes.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3 implements FileStore on an S3 (or S3-compatible) bucket. The caller
// provides a configured client; region, credentials, and endpoint belong
// to the client, not the store.
type S3 struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates an S3-backed FileStore. Prefix is prepended to all object
// keys; pass "" for none.
func NewS3(client S3API, bucket, prefix string) *S3 {
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

func (s *S3) Read(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := checkPath(p); err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("storage: read %s: %w", p, os.ErrNotExist)
		}
		return nil, fmt.Errorf("storage: read %s: %w", p, err)
	}
	return out.Body, nil
}

// Write streams to S3 through an io.Pipe feeding a background PutObject.
// Close blocks until the upload finishes and returns its error.
func (s *S3) Write(ctx context.Context, p string) (io.WriteCloser, error) {
	if err := checkPath(p); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &s3Writer{pw: pw, done: make(chan struct{})}
	go func() {
		defer close(w.done)
		_, w.err = s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(p)),
			Body:   pr,
		})
		// A failed upload must unblock writers stuck in pipe Write.
		pr.CloseWithError(w.err)
	}()
	return w, nil
}

func (s *S3) Delete(ctx context.Context, p string) error {
	if err := checkPath(p); err != nil {
		return err
	}
	// DeleteObject succeeds for missing keys, matching FileStore
	// semantics.
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", p, err)
	}
	return nil
}

func (s *S3) Exists(ctx context.Context, p string) (bool, error) {
	if err := checkPath(p); err != nil {
		return false, err
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("storage: stat %s: %w", p, err)
	}
	return true, nil
}

type s3Writer struct {
	pw   *io.PipeWriter
	done chan struct{}
	err  error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3Writer) Close() error {
	w.pw.Close()
	<-w.done
	return w.err
}

// isNotFound reports whether err is an S3 missing-object error.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
