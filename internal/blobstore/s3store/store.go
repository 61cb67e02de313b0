// Package s3store implements blobstore.Store over Amazon S3.
package s3store

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"

	"github.com/chatcore/server/internal/chaterr"
)

// Store saves attachment bytes as objects in a single S3 bucket.
type Store struct {
	client *s3.S3
	bucket string
}

// New constructs a Store backed by bucket in region.
func New(bucket, region string) (*Store, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, chaterr.Storage("failed to create S3 session", err)
	}
	return &Store{client: s3.New(sess), bucket: bucket}, nil
}

// Save uploads data as a new object keyed by a generated name and returns its
// key as the opaque location.
func (s *Store) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	ext := filepath.Ext(name)
	key := time.Now().UTC().Format("2006/01/02") + "/" + uuid.NewString() + ext

	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", chaterr.Storage("failed to upload attachment", err)
	}
	return key, nil
}

// Fetch downloads the object at location.
func (s *Store) Fetch(ctx context.Context, location string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		if awsErr, ok := err.(awsRequestFailure); ok && awsErr.StatusCode() == 404 {
			return nil, chaterr.NotFound("attachment not found")
		}
		return nil, chaterr.Storage("failed to fetch attachment", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// Delete removes the object at location.
func (s *Store) Delete(ctx context.Context, location string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(location),
	})
	if err != nil {
		return chaterr.Storage("failed to delete attachment", err)
	}
	return nil
}

// awsRequestFailure is the subset of awserr.RequestFailure this package
// needs, kept narrow so tests can fake it without importing awserr.
type awsRequestFailure interface {
	error
	StatusCode() int
}
