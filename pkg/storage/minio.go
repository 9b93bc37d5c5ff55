package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// originalNameMeta 保存原始文件名的对象元数据键
const originalNameMeta = "Original-Name"

// MinioStorage MinIO存储实现
// 对象名为 <前缀>/<ID>，原始文件名保存在用户元数据中
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
	prefix     string        // 对象名前缀
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
	Prefix    string // 对象名前缀
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	// 检查存储桶是否存在，不存在则创建
	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
		prefix:     cfg.Prefix,
	}, nil
}

// Save 上传文件，大小未知时使用分片上传
func (s *MinioStorage) Save(ctx context.Context, reader io.Reader, filename string) (FileInfo, error) {
	id := newID()
	objectName := s.objectName(id)
	contentType := getMimeType(filename)

	info, err := s.client.PutObject(ctx, s.bucketName, objectName, reader, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{originalNameMeta: filename},
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %w", err)
	}

	return FileInfo{
		ID:       id,
		Name:     filename,
		Size:     info.Size,
		MimeType: contentType,
		Path:     objectName,
	}, nil
}

// Get 获取MinIO中的文件
func (s *MinioStorage) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := s.stat(ctx, id); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, s.objectName(id), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return obj, nil
}

// Delete 从MinIO中删除文件
func (s *MinioStorage) Delete(ctx context.Context, id string) error {
	if err := s.stat(ctx, id); err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, s.objectName(id), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Exists 检查MinIO中是否存在指定ID的文件
func (s *MinioStorage) Exists(ctx context.Context, id string) (bool, error) {
	err := s.stat(ctx, id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *MinioStorage) stat(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	_, err := s.client.StatObject(ctx, s.bucketName, s.objectName(id), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to stat object: %w", err)
	}
	return nil
}

func (s *MinioStorage) objectName(id string) string {
	return path.Join(s.prefix, id)
}

var _ Storage = (*MinioStorage)(nil)
