// Package s3 implements the S3-compatible object-store backend. It supports AWS S3,
// MinIO, and other S3-compatible services via a configurable endpoint.
//
// Folders are the bucket's top-level key prefixes; a file's id is its object key.
// Media is read with ranged GetObject calls through storage.ChunkDownloader.
//
// Authentication methods: the default AWS credential chain (recommended for
// EC2/EKS with IAM roles), static key/secret, and AssumeRole for cross-account
// access.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	appconfig "github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/storage"
)

const backendName = "s3"

func init() {
	storage.Register(backendName, func(cfg *appconfig.Config) (storage.Gateway, error) {
		return New(&cfg.Storage.S3, cfg.Storage.ChunkSize)
	})
}

// Backend implements storage.Gateway for an S3-compatible bucket.
type Backend struct {
	client    *s3.Client
	bucket    string
	chunkSize int64
}

// New creates an S3-compatible backend.
//
// Authentication methods:
//   - "default" or empty: Uses AWS default credential chain (env vars, shared config, IAM role, IMDS)
//   - "static": Uses explicit access key and secret key
//   - "assume_role": Assumes an IAM role (optionally with external ID for cross-account)
func New(cfg *appconfig.S3StorageConfig, chunkSize int64) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}

	authMethod := cfg.AuthMethod
	if authMethod == "" {
		if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
			authMethod = "static"
		} else {
			authMethod = "default"
		}
	}

	switch authMethod {
	case "static":
		if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
			return nil, fmt.Errorf("access_key_id and secret_access_key are required for static auth")
		}
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	case "assume_role":
		if cfg.RoleARN == "" {
			return nil, fmt.Errorf("role_arn is required for assume_role auth")
		}
	case "default":
		// AWS default credential chain
	default:
		return nil, fmt.Errorf("unsupported auth_method: %s (must be 'default', 'static', or 'assume_role')", authMethod)
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if authMethod == "assume_role" {
		var assumeRoleOpts []func(*stscreds.AssumeRoleOptions)
		if cfg.RoleSessionName != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.RoleSessionName = cfg.RoleSessionName
			})
		}
		if cfg.ExternalID != "" {
			assumeRoleOpts = append(assumeRoleOpts, func(o *stscreds.AssumeRoleOptions) {
				o.ExternalID = aws.String(cfg.ExternalID)
			})
		}
		provider := stscreds.NewAssumeRoleProvider(sts.NewFromConfig(awsCfg), cfg.RoleARN, assumeRoleOpts...)
		awsCfg.Credentials = aws.NewCredentialsCache(provider)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// S3-compatible services generally need path-style addressing
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, s3Opts...), cfg.Bucket, chunkSize), nil
}

// NewWithClient wraps an already configured S3 client.
func NewWithClient(client *s3.Client, bucket string, chunkSize int64) *Backend {
	if chunkSize <= 0 {
		chunkSize = storage.DefaultChunkSize
	}
	return &Backend{client: client, bucket: bucket, chunkSize: chunkSize}
}

// Name implements storage.Gateway.
func (b *Backend) Name() string { return backendName }

// classify maps AWS SDK errors to storage error kinds.
func classify(op, id string, err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
		case "ExpiredToken", "ExpiredTokenException", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return storage.NewError(backendName, op, id, storage.ErrAuthExpired, err)
		}
	}
	if statusCode(err) == http.StatusNotFound {
		return storage.NewError(backendName, op, id, storage.ErrNotFound, err)
	}
	return storage.Wrap(backendName, op, id, storage.ErrBackendUnavailable, err)
}

func statusCode(err error) int {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

func (b *Backend) listV2(ctx context.Context, op, prefix, delimiter, token string) (*s3.ListObjectsV2Output, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket)}
	if prefix != "" {
		in.Prefix = aws.String(prefix)
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}
	out, err := b.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, classify(op, prefix, err)
	}
	slog.Debug("s3 page fetched", "op", op, "prefix", prefix, "keys", len(out.Contents), "truncated", aws.ToBool(out.IsTruncated))
	return out, nil
}

func nextToken(out *s3.ListObjectsV2Output) string {
	if !aws.ToBool(out.IsTruncated) {
		return ""
	}
	return aws.ToString(out.NextContinuationToken)
}

// ListFolders returns the bucket's top-level prefixes.
func (b *Backend) ListFolders(ctx context.Context) ([]storage.Entry, error) {
	return storage.DrainPages(ctx, func(ctx context.Context, token string) ([]storage.Entry, string, error) {
		out, err := b.listV2(ctx, "list_folders", "", "/", token)
		if err != nil {
			return nil, "", err
		}
		folders := make([]storage.Entry, 0, len(out.CommonPrefixes))
		for _, p := range out.CommonPrefixes {
			folders = append(folders, storage.FolderFromPrefix(aws.ToString(p.Prefix)))
		}
		return folders, nextToken(out), nil
	})
}

func (b *Backend) listObjects(ctx context.Context, op, prefix string) ([]storage.ObjectInfo, error) {
	return storage.DrainPages(ctx, func(ctx context.Context, token string) ([]storage.ObjectInfo, string, error) {
		out, err := b.listV2(ctx, op, prefix, "", token)
		if err != nil {
			return nil, "", err
		}
		objs := make([]storage.ObjectInfo, 0, len(out.Contents))
		for _, o := range out.Contents {
			objs = append(objs, storage.ObjectInfo{Key: aws.ToString(o.Key), LastModified: aws.ToTime(o.LastModified)})
		}
		return objs, nextToken(out), nil
	})
}

// ListFiles returns every object under the folder prefix, newest first.
func (b *Backend) ListFiles(ctx context.Context, folderID string) ([]storage.Entry, error) {
	objs, err := b.listObjects(ctx, "list_files", storage.FolderPrefix(folderID))
	if err != nil {
		return nil, err
	}
	return storage.FilesFromObjects(objs), nil
}

// Search matches query against object basenames across the bucket.
func (b *Backend) Search(ctx context.Context, query string) ([]string, error) {
	objs, err := b.listObjects(ctx, "search", "")
	if err != nil {
		return nil, err
	}
	return storage.MatchNames(storage.FilesFromObjects(objs), query), nil
}

// GetFile reads a whole object.
func (b *Backend) GetFile(ctx context.Context, id string) ([]byte, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(id),
	})
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, classify("get_file", id, err)
	}
	return data, nil
}

// DownloadTo copies an object into w one ranged chunk at a time.
func (b *Backend) DownloadTo(ctx context.Context, id string, w io.Writer) error {
	if _, err := storage.NewChunkDownloader(b.fetchRange(id), b.chunkSize).CopyTo(ctx, w); err != nil {
		return classify("download_to", id, err)
	}
	return nil
}

// StreamMedia returns a lazily fetched chunk stream of an object.
func (b *Backend) StreamMedia(ctx context.Context, id string) (storage.ChunkStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return storage.NewDownloaderStream(ctx, b.fetchRange(id), b.chunkSize), nil
}

func (b *Backend) fetchRange(id string) storage.ChunkFetcher {
	return func(ctx context.Context, offset, length int64) ([]byte, int64, error) {
		out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket),
			Key:    aws.String(id),
			Range:  aws.String(storage.RangeHeader(offset, length)),
		})
		if err != nil {
			if statusCode(err) == http.StatusRequestedRangeNotSatisfiable {
				return nil, offset, nil
			}
			return nil, 0, classify("get_media", id, err)
		}
		defer out.Body.Close()

		contentLength := int64(-1)
		if out.ContentLength != nil {
			contentLength = *out.ContentLength
		}
		data, total, err := storage.ReadRangeBody(out.Body, aws.ToString(out.ContentRange), contentLength, offset, length)
		if err != nil {
			return nil, 0, classify("get_media", id, err)
		}
		return data, total, nil
	}
}
