// Package blobstore stores uploaded report media in an S3-compatible bucket
// (DigitalOcean Spaces by default) with deterministic public URLs.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Options configures a Store.
type Options struct {
	Endpoint        string
	Region          string
	Bucket          string
	Domain          string
	AccessKeyID     string
	SecretAccessKey string
	KeyPrefix       string
}

// Store is the media bucket.
type Store struct {
	api     objectAPI
	bucket  string
	baseURL string
	prefix  string
}

// New creates a Store backed by the S3 API at opts.Endpoint.
func New(opts Options) (*Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("storage bucket is required")
	}
	if opts.Domain == "" {
		return nil, fmt.Errorf("storage domain is required")
	}

	client := s3.New(s3.Options{
		Region:       opts.Region,
		BaseEndpoint: aws.String(opts.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
	})
	return newWithAPI(client, opts), nil
}

func newWithAPI(api objectAPI, opts Options) *Store {
	prefix := strings.Trim(opts.KeyPrefix, "/")
	if prefix == "" {
		prefix = "bugspot"
	}
	return &Store{
		api:     api,
		bucket:  opts.Bucket,
		baseURL: fmt.Sprintf("https://%s.%s", opts.Bucket, opts.Domain),
		prefix:  prefix,
	}
}

// BaseURL is the public URL prefix every stored object lives under.
func (s *Store) BaseURL() string { return s.baseURL }

// PublicURL returns the public URL of key.
func (s *Store) PublicURL(key string) string { return s.baseURL + "/" + key }

// KeyFromURL returns the object key of a URL under BaseURL. Only keys this
// store hands out, those under its key prefix, are accepted.
func (s *Store) KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, s.baseURL+"/") {
		return "", false
	}
	key := strings.TrimPrefix(url, s.baseURL+"/")
	if !strings.HasPrefix(key, s.prefix+"/") || key == s.prefix+"/" || strings.Contains(key, "..") {
		return "", false
	}
	return key, true
}

// NewKey returns a fresh object key for a file with the given name.
func (s *Store) NewKey(filename string) string {
	ext := strings.TrimPrefix(path.Ext(filename), ".")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("%s/%s.%s", s.prefix, uuid.NewString(), strings.ToLower(ext))
}

// Put uploads body as a publicly readable object and returns its URL.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return s.PublicURL(key), nil
}

// Delete removes an object.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// DeleteURL removes the object behind url. URLs outside the bucket are
// ignored and failures are only logged.
func (s *Store) DeleteURL(ctx context.Context, url string) {
	key, ok := s.KeyFromURL(url)
	if !ok {
		return
	}
	if err := s.Delete(ctx, key); err != nil {
		log.Printf("[blobstore] Warning: %v", err)
	}
}
