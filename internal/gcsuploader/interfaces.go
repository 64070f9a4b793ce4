// Package gcsuploader mirrors attachment bytes into Google Cloud Storage.
package gcsuploader

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of storage functionality.
type StorageService interface {
	// UploadObject writes data to bucketName/objectName and returns its gs:// URI.
	UploadObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error)

	// FetchFromGCS downloads object bytes from the given gs:// URI.
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// GCSStorageService is the concrete implementation of StorageService
// that interacts with Google Cloud Storage through one shared client.
type GCSStorageService struct {
	client *storage.Client
}

var _ StorageService = (*GCSStorageService)(nil)

// NewGCSStorageService creates a GCSStorageService using Application Default
// Credentials.
func NewGCSStorageService(ctx context.Context) (*GCSStorageService, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorageService: create storage client: %w", err)
	}
	return &GCSStorageService{client: client}, nil
}

// Close releases the storage client.
func (s *GCSStorageService) Close() error {
	return s.client.Close()
}

// UploadObject implements StorageService.
func (s *GCSStorageService) UploadObject(ctx context.Context, bucketName, objectName string, data []byte, contentType string) (string, error) {
	return UploadObjectWithClient(ctx, s.client, bucketName, objectName, data, contentType)
}

// FetchFromGCS implements StorageService.
func (s *GCSStorageService) FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}
	return DownloadObjectWithClient(ctx, s.client, bucket, object)
}
