// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"context"
	"strings"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// S3API is the subset of the S3 API used by S3Fetcher.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Fetcher lists the objects stored under a bucket prefix. Each object is
// a record keyed by its object key.
type S3Fetcher struct {
	api    S3API
	bucket string
	prefix string
	pager  *tokenPager
}

// NewS3Fetcher returns a fetcher over bucket/prefix.
func NewS3Fetcher(api S3API, bucket, prefix string, pageSize int) *S3Fetcher {
	f := S3Fetcher{
		api:    api,
		bucket: bucket,
		prefix: prefix,
	}
	f.pager = newTokenPager(f.list, pageSize)

	return &f
}

// Bucket returns the listed bucket.
func (f *S3Fetcher) Bucket() string {
	return f.bucket
}

// Count implements remote.Fetcher.
func (f *S3Fetcher) Count(ctx context.Context) (int, error) {
	return f.pager.count(ctx)
}

// Fetch implements remote.Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, offset, limit int) ([]datasource.Record, error) {
	return f.pager.fetch(ctx, offset, limit)
}

func (f *S3Fetcher) list(ctx context.Context, token *string, limit int32) ([]datasource.Record, *string, error) {
	in := s3.ListObjectsV2Input{
		Bucket:            &f.bucket,
		ContinuationToken: token,
		MaxKeys:           aws.Int32(limit),
	}
	if f.prefix != "" {
		in.Prefix = &f.prefix
	}

	out, err := f.api.ListObjectsV2(ctx, &in)
	if err != nil {
		return nil, nil, WrapAWSError(err, "list objects")
	}
	logger.Debug("Listed objects",
		zap.String("bucket", f.bucket),
		zap.String("prefix", f.prefix),
		zap.Int("count", len(out.Contents)),
	)

	rr := make([]datasource.Record, 0, len(out.Contents))
	for _, o := range out.Contents {
		rr = append(rr, objectRecord(o))
	}
	if !aws.ToBool(out.IsTruncated) {
		return rr, nil, nil
	}

	return rr, out.NextContinuationToken, nil
}

func objectRecord(o types.Object) datasource.Record {
	key := aws.ToString(o.Key)
	r := datasource.Record{
		datasource.IDKey: key,
		"key":            key,
		"size":           aws.ToInt64(o.Size),
		"storageClass":   string(o.StorageClass),
		"etag":           strings.Trim(aws.ToString(o.ETag), `"`),
	}
	if o.LastModified != nil {
		r["lastModified"] = o.LastModified.UTC().Format(time.RFC3339)
	}

	return r
}
