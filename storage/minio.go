package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Replayer/config"
	"Replayer/logger"
)

// ObjectScheme 指向媒体桶内对象的音轨 URL 前缀
const ObjectScheme = "minio://"

var errBucketRequired = errors.New("MinIO bucket not configured")

// MediaStore 基于 MinIO 的媒体文件存储
type MediaStore struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

// MediaObject 媒体对象信息
type MediaObject struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	LastModified time.Time `json:"lastModified"`
}

// NewMediaStore 初始化 MinIO 客户端
func NewMediaStore(cfg *config.Config) (*MediaStore, error) {
	if cfg.MinioBucket == "" {
		return nil, errBucketRequired
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &MediaStore{client: client, bucket: cfg.MinioBucket, expiry: expiry}, nil
}

// Bucket 返回媒体桶名
func (s *MediaStore) Bucket() string {
	return s.bucket
}

// EnsureBucket 检查存储桶，不存在时创建
func (s *MediaStore) EnsureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("检查存储桶失败: %w", err)
	}
	if exists {
		logger.Debug("存储桶已存在", logger.String("bucket", s.bucket))
		return nil
	}

	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("创建存储桶失败: %w", err)
	}
	logger.Info("成功创建存储桶", logger.String("bucket", s.bucket))
	return nil
}

// Available 检查媒体对象是否存在
func (s *MediaStore) Available(ctx context.Context, objectKey string) (bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, ObjectKey(objectKey), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", objectKey, err)
	}
	return true, nil
}

// PresignedURL 生成媒体对象的临时访问地址
func (s *MediaStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, ObjectKey(objectKey), s.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}

// List 列出前缀下的媒体对象
func (s *MediaStore) List(ctx context.Context, prefix string) ([]MediaObject, error) {
	var objects []MediaObject
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		objects = append(objects, MediaObject{
			Key:          obj.Key,
			Size:         obj.Size,
			ContentType:  obj.ContentType,
			LastModified: obj.LastModified,
		})
	}
	return objects, nil
}

// ObjectKey 把音轨 URL 转为桶内对象键，支持 "minio://bucket/key" 和普通路径
func ObjectKey(trackURL string) string {
	if rest, ok := strings.CutPrefix(trackURL, ObjectScheme); ok {
		if _, key, found := strings.Cut(rest, "/"); found {
			return key
		}
		return rest
	}
	return strings.TrimPrefix(trackURL, "/")
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return true
	}
	return false
}
