package service

import (
	"bytes"
	"context"
	"examhub_backend/internal/config"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/logger"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const avatarPrefix = "avatars"

// ObjectStore 按 key 存取用户上传的文件，key 使用 "/" 分隔
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, key string) error
	// URL 返回对外访问地址；KeyOf 为其逆操作，不属于本存储的地址返回 false
	URL(key string) string
	KeyOf(url string) (string, bool)
}

// LocalStore 写入本地目录，通过 /uploads 静态路由访问
type LocalStore struct {
	Root string
}

const localURLPrefix = "/uploads/"

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.Root, filepath.FromSlash(key))
}

func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}

func (s *LocalStore) Remove(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *LocalStore) URL(key string) string {
	return localURLPrefix + key
}

func (s *LocalStore) KeyOf(url string) (string, bool) {
	return keyAfter(url, localURLPrefix)
}

// MinioStore MinIO / S3 兼容存储
type MinioStore struct {
	Client  *minio.Client
	Bucket  string
	baseURL string
}

func NewMinioStore(cfg *config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessID, cfg.MinioSecret, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	scheme := "http"
	if cfg.MinioUseSSL {
		scheme = "https"
	}
	return &MinioStore{
		Client:  client,
		Bucket:  cfg.MinioBucket,
		baseURL: fmt.Sprintf("%s://%s/%s/", scheme, cfg.MinioEndpoint, cfg.MinioBucket),
	}, nil
}

func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.Client.PutObject(ctx, s.Bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

func (s *MinioStore) Remove(ctx context.Context, key string) error {
	return s.Client.RemoveObject(ctx, s.Bucket, key, minio.RemoveObjectOptions{})
}

func (s *MinioStore) URL(key string) string {
	return s.baseURL + key
}

func (s *MinioStore) KeyOf(url string) (string, bool) {
	return keyAfter(url, s.baseURL)
}

// OSSStore 阿里云 OSS
type OSSStore struct {
	Bucket  *oss.Bucket
	baseURL string
}

func NewOSSStore(cfg *config.StorageConfig) (*OSSStore, error) {
	client, err := oss.New(cfg.OSSEndpoint, cfg.OSSAccessKey, cfg.OSSSecretKey)
	if err != nil {
		return nil, err
	}
	bucket, err := client.Bucket(cfg.OSSBucket)
	if err != nil {
		return nil, err
	}
	return &OSSStore{
		Bucket:  bucket,
		baseURL: fmt.Sprintf("https://%s.%s/", cfg.OSSBucket, cfg.OSSEndpoint),
	}, nil
}

func (s *OSSStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.Bucket.PutObject(key, bytes.NewReader(data), oss.ContentType(contentType), oss.WithContext(ctx))
}

func (s *OSSStore) Remove(ctx context.Context, key string) error {
	return s.Bucket.DeleteObject(key, oss.WithContext(ctx))
}

func (s *OSSStore) URL(key string) string {
	return s.baseURL + key
}

func (s *OSSStore) KeyOf(url string) (string, bool) {
	return keyAfter(url, s.baseURL)
}

func keyAfter(url, prefix string) (string, bool) {
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, prefix)
	// 拒绝 ".." 之类跳出前缀的 key
	if key == "" || key == ".." || path.Clean(key) != key || strings.HasPrefix(key, "../") {
		return "", false
	}
	return key, true
}

// StorageService 头像等用户上传文件
type StorageService struct {
	Store ObjectStore
}

// NewStorageService 远程存储初始化失败时回退到本地目录
func NewStorageService(cfg *config.Config) *StorageService {
	var (
		store ObjectStore
		err   error
	)
	switch cfg.Storage.Type {
	case util.StorageMinio:
		store, err = NewMinioStore(&cfg.Storage)
	case util.StorageOSS:
		store, err = NewOSSStore(&cfg.Storage)
	}
	if err != nil {
		logger.Log.Error("Failed to init remote storage, falling back to local",
			zap.String("type", cfg.Storage.Type),
			zap.Error(err),
		)
		store = nil
	}
	if store == nil {
		store = &LocalStore{Root: cfg.Storage.LocalPath}
	}
	return &StorageService{Store: store}
}

// SaveAvatar 每次上传生成新的 key，返回访问地址
func (s *StorageService) SaveAvatar(ctx context.Context, userID uint, data []byte, mimeType string) (string, error) {
	key := fmt.Sprintf("%s/%d/%s%s", avatarPrefix, userID, uuid.NewString(), util.ExtensionForMime(mimeType))
	if err := s.Store.Put(ctx, key, data, mimeType); err != nil {
		return "", errors.Wrapf(err, "store %s", key)
	}
	return s.Store.URL(key), nil
}

// RemoveByURL 删除由本存储生成的文件，外部地址直接忽略
func (s *StorageService) RemoveByURL(ctx context.Context, url string) error {
	key, ok := s.Store.KeyOf(url)
	if !ok || !strings.HasPrefix(key, avatarPrefix+"/") {
		return nil
	}
	return s.Store.Remove(ctx, key)
}
