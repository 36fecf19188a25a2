package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"hostcache/pkg/storage"
	"hostcache/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Adapter 实现了 storage.Store 接口，处理 s3://bucket/key 句柄
type Adapter struct {
	client *s3.Client
	bucket string // 句柄没写 bucket 时使用
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端
func NewAdapter(ctx context.Context, cfg Config) (*Adapter, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	// 没有显式凭证时走 SDK 默认链 (环境变量、~/.aws、IMDS)
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		// MinIO 必须使用 Path Style: http://host:9000/bucket/key
		o.UsePathStyle = true
	})

	return &Adapter{
		client: client,
		bucket: cfg.Bucket,
	}, nil
}

// location 把句柄拆成 bucket 和 key
// Logic: "s3://bucket/a/b.bin" -> ("bucket", "a/b.bin")
func (s *Adapter) location(handle types.ResourceHandle) (string, string, error) {
	if handle.Scheme() != "s3" {
		return "", "", fmt.Errorf("%w: %q", storage.ErrUnsupportedScheme, handle.Scheme())
	}
	bucket := handle.Host()
	if bucket == "" {
		bucket = s.bucket
	}
	key := strings.TrimPrefix(handle.Path(), "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %s", storage.ErrInvalidHandle, handle)
	}
	return bucket, key, nil
}

// Open 下载对象，返回的 Body 由调用方关闭
func (s *Adapter) Open(ctx context.Context, handle types.ResourceHandle) (io.ReadCloser, error) {
	bucket, key, err := s.location(handle)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get failed: %w", err)
	}
	return resp.Body, nil
}

// Has 检查对象是否存在
func (s *Adapter) Has(ctx context.Context, handle types.ResourceHandle) (bool, error) {
	bucket, key, err := s.location(handle)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}

	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return false, nil
	}
	// 兼容性：某些 S3 实现可能返回 generic 404 error string
	if strings.Contains(err.Error(), "404") {
		return false, nil
	}
	return false, err
}
