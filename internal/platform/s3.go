package platform

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"publishd/internal/config"
)

// PlatformS3 serves media from an S3-compatible object store.
const PlatformS3 = "s3"

// S3 uploads media to an S3-compatible bucket, one object prefix per
// media identifier.
type S3 struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// NewS3 creates a provider from the S3 platform config.
func NewS3(cfg config.S3Platform) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

func (s *S3) Name() string {
	return PlatformS3
}

// EnsureBucket makes sure the media bucket exists before use.
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Upload pushes the video and thumbnail under a fresh media prefix.
func (s *S3) Upload(ctx context.Context, filePath string, meta Metadata) (string, error) {
	mediaID := uuid.NewString()

	videoKey := mediaID + "/video" + filepath.Ext(filePath)
	contentType := meta.MimeType
	if contentType == "" {
		contentType = mimeTypeFor(filePath)
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.FPutObject(ctx, s.bucket, videoKey, filePath, opts); err != nil {
		return "", fmt.Errorf("upload media object: %w", err)
	}

	if meta.ThumbnailPath != "" {
		thumbOpts := minio.PutObjectOptions{ContentType: "image/jpeg"}
		if _, err := s.client.FPutObject(ctx, s.bucket, mediaID+"/thumbnail.jpg", meta.ThumbnailPath, thumbOpts); err != nil {
			return "", fmt.Errorf("upload thumbnail object: %w", err)
		}
	}

	return mediaID, nil
}

// Info lists the objects under the media prefix and builds serving links.
func (s *S3) Info(ctx context.Context, mediaID string) (Info, error) {
	info := Info{}
	prefix := mediaID + "/"
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return Info{}, fmt.Errorf("list media objects: %w", object.Err)
		}
		link, err := s.linkFor(ctx, object.Key)
		if err != nil {
			return Info{}, err
		}
		if strings.HasSuffix(object.Key, "thumbnail.jpg") {
			info.Thumbnails = append(info.Thumbnails, link)
			continue
		}
		info.Sources = append(info.Sources, Source{Link: link, MimeType: mimeTypeFor(object.Key)})
	}
	info.Available = len(info.Sources) > 0
	return info, nil
}

// Remove deletes every object under the media prefix.
func (s *S3) Remove(ctx context.Context, mediaID string) error {
	prefix := mediaID + "/"
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix}) {
		if object.Err != nil {
			return fmt.Errorf("list media objects: %w", object.Err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, object.Key, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove media object %s: %w", object.Key, err)
		}
	}
	return nil
}

// linkFor prefers the public base URL and falls back to a presigned URL.
func (s *S3) linkFor(ctx context.Context, key string) (string, error) {
	if s.baseURL != "" {
		return s.baseURL + "/" + key, nil
	}
	presigned, err := s.client.PresignedGetObject(ctx, s.bucket, key, 24*time.Hour, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign media object %s: %w", key, err)
	}
	return presigned.String(), nil
}

var _ Provider = (*S3)(nil)
