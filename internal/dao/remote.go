// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package dao

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a1s/gridsource/internal/aws"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/a1s/gridsource/internal/remote"
	"github.com/a1s/gridsource/internal/sqlsrc"
	"go.uber.org/zap"
)

func init() {
	Register("s3", openS3)
	Register("cloudcontrol", openCloudControl)
	for _, s := range []string{"postgres", "postgresql", "mysql", "sqlserver"} {
		Register(s, openSQL)
	}
}

func remoteOptions(f *Factory, name string) remote.Options {
	opts := f.Options()
	return remote.Options{
		Name:        name,
		PageSize:    opts.PageSize,
		CacheTTL:    opts.CacheTTL,
		RefreshRate: opts.RefreshRate,
	}
}

func openRemote(ctx context.Context, fetcher remote.Fetcher, opts remote.Options) (Source, error) {
	s := remote.New(fetcher, opts)
	if err := s.Open(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// readOnly drops the Updater side of a fetcher.
type readOnly struct {
	remote.Fetcher
}

func (r readOnly) Close() error {
	if c, ok := r.Fetcher.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func maybeReadOnly(f *Factory, fetcher remote.Fetcher) remote.Fetcher {
	if f.Options().ReadOnly {
		return readOnly{Fetcher: fetcher}
	}
	return fetcher
}

// openS3 serves s3://bucket/prefix.
func openS3(ctx context.Context, f *Factory, l Location) (Source, error) {
	bucket, prefix, _ := strings.Cut(l.Target, "/")
	if bucket == "" {
		return nil, fmt.Errorf("invalid location %q, expected s3://bucket/prefix", l.Raw)
	}
	conn, err := f.Connection()
	if err != nil {
		return nil, err
	}

	api, err := conn.S3(l.Param("region", ""))
	if err != nil {
		return nil, err
	}
	region, err := aws.BucketRegion(ctx, api, bucket)
	if err != nil {
		return nil, err
	}
	if api, err = conn.S3(region); err != nil {
		return nil, err
	}

	opts := remoteOptions(f, l.String())
	return openRemote(ctx, aws.NewS3Fetcher(api, bucket, prefix, opts.PageSize), opts)
}

// openCloudControl serves cloudcontrol://AWS::EC2::VPC or an alias such as
// cloudcontrol://vpc.
func openCloudControl(ctx context.Context, f *Factory, l Location) (Source, error) {
	typeName, ok := ResolveCloudFormationType(l.Target)
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", l.Target)
	}
	conn, err := f.Connection()
	if err != nil {
		return nil, err
	}
	region := l.Param("region", conn.Region())

	api, err := conn.CloudControl(region)
	if err != nil {
		return nil, err
	}
	var schema *aws.ResourceSchema
	if cf, err := conn.CloudFormation(region); err == nil {
		if schema, err = aws.DescribeSchema(ctx, cf, typeName); err != nil {
			logger.Warn("Cannot read resource schema, all properties are editable",
				zap.String("type", typeName),
				zap.Error(err),
			)
		}
	}

	opts := remoteOptions(f, typeName)
	fetcher := aws.NewCloudControlFetcher(api, typeName, schema, opts.PageSize)

	return openRemote(ctx, maybeReadOnly(f, fetcher), opts)
}

// openSQL serves postgres://, mysql:// and sqlserver:// DSNs. The table and
// key column come from the table and key query parameters or the options.
func openSQL(ctx context.Context, f *Factory, l Location) (Source, error) {
	opts := f.Options()
	table := l.Param("table", opts.Table)
	if table == "" {
		return nil, fmt.Errorf("no table given for %s", l.Scheme)
	}

	fetcher, err := sqlsrc.Open(stripParams(l.Raw, "table", "key"), table, l.Param("key", opts.Key))
	if err != nil {
		return nil, err
	}

	return openRemote(ctx, maybeReadOnly(f, fetcher), remoteOptions(f, table))
}

// stripParams removes query parameters meant for the opener from a DSN.
func stripParams(dsn string, keys ...string) string {
	base, query, ok := strings.Cut(dsn, "?")
	if !ok {
		return dsn
	}

	kept := make([]string, 0)
	for _, kv := range strings.Split(query, "&") {
		k, _, _ := strings.Cut(kv, "=")
		drop := false
		for _, key := range keys {
			if k == key {
				drop = true
				break
			}
		}
		if !drop && kv != "" {
			kept = append(kept, kv)
		}
	}
	if len(kept) == 0 {
		return base
	}

	return base + "?" + strings.Join(kept, "&")
}
