package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var ErrUnsupportedImageType = errors.New("unsupported image type")

// allowedImageTypes maps accepted content types to object key extensions
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// StorageService handles S3-compatible storage of item images and avatars
type StorageService struct {
	client     *minio.Client
	bucketName string
	region     string
	urlExpiry  time.Duration
}

// UploadResult contains information about an uploaded file
type UploadResult struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	ETag        string
}

// NewStorageService creates a new S3 storage service
func NewStorageService(endpoint, accessKey, secretKey, bucketName, region string, useSSL bool, urlExpiry time.Duration) (*StorageService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	if urlExpiry <= 0 {
		urlExpiry = time.Hour
	}

	return &StorageService{
		client:     client,
		bucketName: bucketName,
		region:     region,
		urlExpiry:  urlExpiry,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *StorageService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{
			Region: s.region,
		})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// ItemImageKey returns a fresh object key for an item image
func ItemImageKey(ownerID, itemID int, contentType string) (string, error) {
	ext, err := imageExtension(contentType)
	if err != nil {
		return "", err
	}
	return path.Join("items", fmt.Sprint(ownerID), fmt.Sprint(itemID), uuid.NewString()+ext), nil
}

// AvatarKey returns a fresh object key for a profile avatar
func AvatarKey(userID int, contentType string) (string, error) {
	ext, err := imageExtension(contentType)
	if err != nil {
		return "", err
	}
	return path.Join("avatars", fmt.Sprint(userID), uuid.NewString()+ext), nil
}

func imageExtension(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	ext, ok := allowedImageTypes[ct]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImageType, contentType)
	}
	return ext, nil
}

// Upload uploads a file to S3
func (s *StorageService) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*UploadResult, error) {
	info, err := s.client.PutObject(ctx, s.bucketName, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	return &UploadResult{
		Bucket:      info.Bucket,
		Key:         info.Key,
		Size:        info.Size,
		ContentType: contentType,
		ETag:        info.ETag,
	}, nil
}

// GetPresignedURL generates a presigned URL for downloading a file
func (s *StorageService) GetPresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	url, err := s.client.PresignedGetObject(ctx, s.bucketName, key, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// ResolveImageURL prefers an uploaded object over an external URL. Without
// storage, or when signing fails, the external URL is returned as is.
func (s *StorageService) ResolveImageURL(ctx context.Context, key, external *string) *string {
	if s == nil || key == nil || *key == "" {
		return external
	}

	url, err := s.GetPresignedURL(ctx, *key, s.urlExpiry)
	if err != nil {
		log.Printf("storage: %v", err)
		return external
	}
	return &url
}

// Delete deletes a file from S3
func (s *StorageService) Delete(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// DeleteReplaced removes an object that was superseded by a new upload.
// Failures are only logged; the new object is already in place.
func (s *StorageService) DeleteReplaced(ctx context.Context, previous *string) {
	if s == nil || previous == nil || *previous == "" {
		return
	}
	if err := s.Delete(ctx, *previous); err != nil {
		log.Printf("storage: failed to remove replaced object %s: %v", *previous, err)
	}
}

// Subscribe removes superseded avatars once a profile points at the new one
func (s *StorageService) Subscribe(n *Notifier) {
	if s == nil || n == nil {
		return
	}
	n.ProfileImages.Subscribe(func(e ProfileImageChanged) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.DeleteReplaced(ctx, e.PreviousKey)
	})
}
