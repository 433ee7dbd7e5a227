package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"portfolio/internal/config"
)

// Client 封装 MinIO 客户端，上传的对象通过公开地址直接访问。
type Client struct {
	minio      *minio.Client
	bucketName string
	publicBase string
}

// NewClient 根据配置初始化 MinIO 客户端，并确保目标 Bucket 存在且公开可读。
func NewClient(cfg config.MinIOConfig) (*Client, error) {
	bucketLookup := minio.BucketLookupAuto
	switch strings.ToLower(strings.TrimSpace(cfg.BucketLookup)) {
	case "", "auto":
		bucketLookup = minio.BucketLookupAuto
	case "dns":
		bucketLookup = minio.BucketLookupDNS
	case "path":
		bucketLookup = minio.BucketLookupPath
	default:
		return nil, fmt.Errorf("invalid minio bucket lookup %q", cfg.BucketLookup)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: bucketLookup,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	publicBase, err := publicBaseURL(cfg.PublicEndpoint, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if !cfg.AutoCreateBucket {
			return nil, fmt.Errorf("bucket %q does not exist (auto create disabled)", cfg.Bucket)
		}
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("make bucket %q: %w", cfg.Bucket, err)
		}
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy %q: %w", cfg.Bucket, err)
		}
	}

	return &Client{
		minio:      client,
		bucketName: cfg.Bucket,
		publicBase: publicBase,
	}, nil
}

func publicBaseURL(endpoint, bucket string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("parse minio public endpoint: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid minio public endpoint %q", endpoint)
	}
	return strings.TrimRight(parsed.String(), "/") + "/" + bucket, nil
}

// publicReadPolicy 只开放已知目录的匿名读取。
func publicReadPolicy(bucket string) string {
	resources := make([]string, 0, len(PublicFolders))
	for _, folder := range PublicFolders {
		resources = append(resources, fmt.Sprintf(`"arn:aws:s3:::%s/%s/*"`, bucket, folder))
	}
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":[%s]}]}`,
		strings.Join(resources, ","))
}

// PutObject 上传对象并返回公开访问地址。
func (c *Client) PutObject(ctx context.Context, objectKey string, reader io.Reader, size int64, contentType string) (string, error) {
	opts := minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
	}
	if _, err := c.minio.PutObject(ctx, c.bucketName, objectKey, reader, size, opts); err != nil {
		return "", fmt.Errorf("put object %q: %w", objectKey, err)
	}
	return c.PublicURL(objectKey), nil
}

// PublicURL 返回 <public endpoint>/<bucket>/<key>。
func (c *Client) PublicURL(objectKey string) string {
	return c.publicBase + "/" + strings.TrimLeft(objectKey, "/")
}

// DeleteObject 删除指定对象。
// 若对象不存在会被视为成功（幂等）。
func (c *Client) DeleteObject(ctx context.Context, objectKey string) error {
	objectKey = strings.TrimSpace(objectKey)
	if objectKey == "" {
		return nil
	}
	if err := c.minio.RemoveObject(ctx, c.bucketName, objectKey, minio.RemoveObjectOptions{}); err != nil {
		if IsNoSuchKey(err) {
			return nil
		}
		return fmt.Errorf("remove object %q: %w", objectKey, err)
	}
	return nil
}

// Ping 检查 Bucket 是否可访问，用于健康检查。
func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.minio.BucketExists(ctx, c.bucketName)
	if err != nil {
		if IsNoSuchBucket(err) {
			return fmt.Errorf("bucket %q missing", c.bucketName)
		}
		return fmt.Errorf("check bucket %q: %w", c.bucketName, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q missing", c.bucketName)
	}
	return nil
}
