package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Object user metadata keys. MinIO returns them as X-Amz-Meta-* headers.
const (
	metaFileName  = "File-Name"
	metaHash      = "Sha256"
	metaCreatedBy = "Created-By"
)

// MinioConfig holds connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioClient connects to the endpoint described by cfg.
func NewMinioClient(cfg MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return client, nil
}

// MinioBlobStore keeps blobs as objects in a single bucket, keyed by id.
type MinioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore returns a store writing to bucket.
func NewMinioBlobStore(client *minio.Client, bucket string) *MinioBlobStore {
	return &MinioBlobStore{client: client, bucket: bucket}
}

// EnsureBucket creates the bucket if it does not exist yet.
func (s *MinioBlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := readLimited(&meta, content)
	if err != nil {
		return nil, err
	}

	_, err = s.client.PutObject(ctx, s.bucket, meta.ID, bytes.NewReader(data), meta.Size, minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			metaFileName:  meta.FileName,
			metaHash:      meta.Hash,
			metaCreatedBy: meta.CreatedBy,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s/%s: %w", s.bucket, meta.ID, err)
	}
	return &meta, nil
}

func (s *MinioBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, id, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, s.translate(err, id)
	}
	return obj, meta, nil
}

func (s *MinioBlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, s.bucket, id, minio.RemoveObjectOptions{}); err != nil {
		return s.translate(err, id)
	}
	return nil
}

func (s *MinioBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	info, err := s.client.StatObject(ctx, s.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		return nil, s.translate(err, id)
	}
	return objectMetadata(info), nil
}

func objectMetadata(info minio.ObjectInfo) *BlobMetadata {
	return &BlobMetadata{
		ID:          info.Key,
		FileName:    info.Metadata.Get("X-Amz-Meta-" + metaFileName),
		ContentType: info.ContentType,
		Size:        info.Size,
		Hash:        info.Metadata.Get("X-Amz-Meta-" + metaHash),
		CreatedAt:   info.LastModified.UTC(),
		CreatedBy:   info.Metadata.Get("X-Amz-Meta-" + metaCreatedBy),
	}
}

func (s *MinioBlobStore) translate(err error, id string) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return ErrBlobNotFound
	}
	return fmt.Errorf("object %s/%s: %w", s.bucket, id, err)
}
