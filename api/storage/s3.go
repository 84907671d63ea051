package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const DefaultEndpoint = "s3.amazonaws.com"

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	UseSSL    bool
	PageSize  int
}

// Client is an S3 bucket reached through minio-go. One Client is built
// at startup and shared by every job.
type Client struct {
	mc     *minio.Client
	config Config
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 client: bucket not configured")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	var creds *credentials.Credentials
	if cfg.AccessKey != "" {
		creds = credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
	} else {
		creds = credentials.NewChainCredentials([]credentials.Provider{
			&credentials.EnvAWS{},
			&credentials.IAM{Client: &http.Client{Transport: http.DefaultTransport}},
		})
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  creds,
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	return &Client{mc: mc, config: cfg}, nil
}

func (c *Client) Bucket() string {
	return c.config.Bucket
}

func (c *Client) Region() string {
	return c.config.Region
}

func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// ListPage returns up to PageSize keys that sort after cursor. The
// cursor of the next page is the last key returned.
func (c *Client) ListPage(ctx context.Context, cursor string) (Page, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objects := c.mc.ListObjects(ctx, c.config.Bucket, minio.ListObjectsOptions{
		Recursive:  true,
		StartAfter: cursor,
		MaxKeys:    c.config.PageSize,
	})

	var page Page
	for obj := range objects {
		if obj.Err != nil {
			return Page{}, fmt.Errorf("list %s: %w", c.config.Bucket, obj.Err)
		}
		page.Keys = append(page.Keys, obj.Key)
		if len(page.Keys) == c.config.PageSize {
			page.Cursor = obj.Key
			break
		}
	}
	return page, nil
}

// DeleteObjects removes keys in one batch request (S3 caps a batch at
// 1000 keys; minio-go splits larger inputs).
func (c *Client) DeleteObjects(ctx context.Context, keys []string) error {
	ch := make(chan minio.ObjectInfo, len(keys))
	for _, k := range keys {
		ch <- minio.ObjectInfo{Key: k}
	}
	close(ch)

	var errs []error
	for rerr := range c.mc.RemoveObjects(ctx, c.config.Bucket, ch, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("delete %s: %w", rerr.ObjectName, rerr.Err))
	}
	return errors.Join(errs...)
}

func (c *Client) PutObject(ctx context.Context, key string, body io.Reader, size int64, opts PutOptions) error {
	po := minio.PutObjectOptions{
		ContentType:      opts.ContentType,
		DisableMultipart: !opts.Multipart,
	}
	if opts.Multipart {
		po.PartSize = opts.PartSize
		po.NumThreads = 4
	}
	_, err := c.mc.PutObject(ctx, c.config.Bucket, key, body, size, po)
	return err
}

func (c *Client) BucketExists(ctx context.Context) (bool, error) {
	return c.mc.BucketExists(ctx, c.config.Bucket)
}

func (c *Client) Healthy(ctx context.Context) error {
	ok, err := c.BucketExists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("bucket %s does not exist", c.config.Bucket)
	}
	return nil
}

// errorCode extracts the S3 error code of err, if any.
func errorCode(err error) string {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code
	}
	return minio.ToErrorResponse(err).Code
}

// WebsiteURL is the public static-website endpoint of an S3 bucket.
func WebsiteURL(bucket, region string) string {
	region = strings.TrimSpace(region)
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3-website-%s.amazonaws.com/", bucket, region)
}
