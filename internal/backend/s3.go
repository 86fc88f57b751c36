package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Backend implements Backend on top of an S3-compatible object store: a
// repo's directory tree is modeled as a key prefix
// "<repoID>/<parentDir>/<name>", and gen_unique_filename's directory
// listing is a delimited ListObjectsV2 call.
//
// Access-token resolution and quota accounting are delegated to a
// TokenStore/QuotaChecker pair rather than S3 itself, since neither has a
// natural S3 representation.
type S3Backend struct {
	client *s3.Client
	bucket string

	tokens TokenStore
	quota  QuotaChecker
}

// TokenStore resolves opaque upload tokens. Swappable so tests can avoid a
// real auth backend.
type TokenStore interface {
	Resolve(ctx context.Context, token string) (Token, error)
}

// QuotaChecker reports whether a repo has room for more data.
type QuotaChecker interface {
	CheckQuota(ctx context.Context, repoID string) error
}

// NewS3Backend builds an S3Backend. client is a ready-to-use
// *s3.Client (see config.LoadDefaultConfig in cmd/seafhttpd).
func NewS3Backend(client *s3.Client, bucket string, tokens TokenStore, quota QuotaChecker) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, tokens: tokens, quota: quota}
}

func (b *S3Backend) CheckAccessToken(ctx context.Context, token string) (Token, error) {
	return b.tokens.Resolve(ctx, token)
}

func (b *S3Backend) CheckQuota(ctx context.Context, repoID string) error {
	return b.quota.CheckQuota(ctx, repoID)
}

func objectKey(repoID, parentDir, name string) string {
	return path.Join(repoID, strings.TrimPrefix(parentDir, "/"), name)
}

func (b *S3Backend) ListDir(ctx context.Context, repoID, parentDir string) ([]DirEntry, error) {
	prefix := objectKey(repoID, parentDir, "")
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []DirEntry
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("backend: list %s: %w", prefix, err)
		}
		for _, obj := range out.Contents {
			entries = append(entries, DirEntry{Name: strings.TrimPrefix(aws.ToString(obj.Key), prefix)})
		}
		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			entries = append(entries, DirEntry{Name: name, IsDir: true})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return entries, nil
}

func (b *S3Backend) putFile(ctx context.Context, repoID, srcPath, parentDir, name string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("backend: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("backend: stat %s: %w", srcPath, err)
	}

	key := objectKey(repoID, parentDir, name)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          io.Reader(f),
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("backend: put %s: %w", key, err)
	}
	return nil
}

func (b *S3Backend) PostFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error {
	key := objectKey(repoID, parentDir, name)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err == nil {
		return errors.New(MsgFileExists)
	}
	var nf *types.NotFound
	if !errors.As(err, &nf) {
		return fmt.Errorf("backend: head %s: %w", key, err)
	}
	return b.putFile(ctx, repoID, srcPath, parentDir, name)
}

func (b *S3Backend) PutFile(ctx context.Context, repoID, srcPath, parentDir, name, user string) error {
	key := objectKey(repoID, parentDir, name)
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(key)})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return errors.New(MsgFileDoesNotExist)
		}
		return fmt.Errorf("backend: head %s: %w", key, err)
	}
	return b.putFile(ctx, repoID, srcPath, parentDir, name)
}
