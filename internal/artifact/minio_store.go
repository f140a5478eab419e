package artifact

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	xerrors "VoiceMCP-Chain/internal/errors"
	"VoiceMCP-Chain/pkg/logger"
)

// MinIOConfig 描述对象存储驱动的连接信息。
type MinIOConfig struct {
	Endpoint  string `json:"endpoint"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Secure    bool   `json:"secure"`
}

// MinIOStore 把产物写入对象存储,对象名为 "产物ID+扩展名"。
type MinIOStore struct {
	client *minio.Client
	bucket string

	mu    sync.RWMutex
	index map[string]Artifact
}

// NewMinIOStore 创建对象存储驱动,启动时做一次健康检查并确保 bucket 存在。
func NewMinIOStore(ctx context.Context, cfg MinIOConfig) (*MinIOStore, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" || strings.TrimSpace(cfg.Bucket) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "对象存储端点和 bucket 不能为空")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建对象存储客户端失败")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "对象存储健康检查失败")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 bucket 失败")
		}
	}

	logger.Named("artifact").Info("对象存储产物驱动已就绪",
		"endpoint", cfg.Endpoint,
		"bucket", cfg.Bucket,
	)
	return &MinIOStore{
		client: client,
		bucket: cfg.Bucket,
		index:  make(map[string]Artifact),
	}, nil
}

// Save 把数据上传为新对象。PutObject 自身就是原子的,
// 半成品对象不会对读者可见。
func (s *MinIOStore) Save(ctx context.Context, data []byte, mimeType string) (Artifact, error) {
	if len(data) == 0 {
		return Artifact{}, xerrors.New(xerrors.CodeInvalidArgument, "产物内容不能为空")
	}

	id := uuid.NewString()
	objectName := id + extensionFor(mimeType)

	_, err := s.client.PutObject(ctx, s.bucket, objectName,
		bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: mimeType})
	if err != nil {
		return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "上传产物失败")
	}

	art := Artifact{
		ID:        id,
		URI:       s.bucket + "/" + objectName,
		MIMEType:  mimeType,
		Size:      int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.index[id] = art
	s.mu.Unlock()

	return art, nil
}

// Open 按 ID 读取对象。索引缺失时按前缀列举对象找回。
func (s *MinIOStore) Open(ctx context.Context, id string) (io.ReadCloser, Artifact, error) {
	if !validID(id) {
		return nil, Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
	}

	s.mu.RLock()
	art, ok := s.index[id]
	s.mu.RUnlock()

	if !ok {
		recovered, err := s.recover(ctx, id)
		if err != nil {
			return nil, Artifact{}, err
		}
		art = recovered
		s.mu.Lock()
		s.index[id] = art
		s.mu.Unlock()
	}

	objectName := strings.TrimPrefix(art.URI, s.bucket+"/")
	object, err := s.client.GetObject(ctx, s.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取产物失败")
	}
	// GetObject 是惰性的,先 Stat 一次把未知对象转成 NOT_FOUND。
	if _, err := object.Stat(); err != nil {
		object.Close()
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
		}
		return nil, Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取产物失败")
	}
	return object, art, nil
}

func (s *MinIOStore) recover(ctx context.Context, id string) (Artifact, error) {
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: id + "."}) {
		if object.Err != nil {
			return Artifact{}, xerrors.Wrap(xerrors.CodeStorageFailure, object.Err, "列举产物失败")
		}
		return Artifact{
			ID:        id,
			URI:       s.bucket + "/" + object.Key,
			MIMEType:  object.ContentType,
			Size:      object.Size,
			CreatedAt: object.LastModified.UTC(),
		}, nil
	}
	return Artifact{}, xerrors.New(xerrors.CodeNotFound, "产物不存在: "+id)
}
