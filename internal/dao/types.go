// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package dao opens data sources from location URLs.
package dao

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/a1s/gridsource/internal/datasource"
)

// Location is a parsed source URL of the form scheme://target?query. A bare
// path is a file location.
type Location struct {
	Raw    string
	Scheme string
	Target string
	Query  url.Values
}

// ParseLocation splits raw into its scheme, target and query.
func ParseLocation(raw string) (Location, error) {
	if raw == "" {
		return Location{}, fmt.Errorf("a source location is required")
	}

	l := Location{Raw: raw, Scheme: "file", Target: raw, Query: url.Values{}}
	i := strings.Index(raw, "://")
	if i < 1 {
		return l, nil
	}
	l.Scheme, l.Target = strings.ToLower(raw[:i]), raw[i+3:]
	if q := strings.IndexByte(l.Target, '?'); q >= 0 {
		vv, err := url.ParseQuery(l.Target[q+1:])
		if err != nil {
			return Location{}, fmt.Errorf("invalid query in %q: %w", raw, err)
		}
		l.Target, l.Query = l.Target[:q], vv
	}

	return l, nil
}

// Param returns the query value for key or def when absent.
func (l Location) Param(key, def string) string {
	if v := l.Query.Get(key); v != "" {
		return v
	}
	return def
}

func (l Location) String() string {
	return l.Scheme + "://" + l.Target
}

// Options tunes the sources built by an Opener.
type Options struct {
	PageSize    int
	CacheTTL    time.Duration
	RefreshRate time.Duration
	RangePolicy datasource.RangePolicy
	ReadOnly    bool
	Table       string
	Key         string
	Profile     string
	Region      string
}

// Source is an opened data source along with its lifecycle.
type Source interface {
	datasource.DataSource
	Close() error
}

// Opener builds and opens the source at l.
type Opener func(ctx context.Context, f *Factory, l Location) (Source, error)

// CloudFormationType maps short resource aliases to CloudFormation type names.
var CloudFormationType = map[string]string{
	"instance":      "AWS::EC2::Instance",
	"volume":        "AWS::EC2::Volume",
	"securitygroup": "AWS::EC2::SecurityGroup",
	"vpc":           "AWS::EC2::VPC",
	"subnet":        "AWS::EC2::Subnet",
	"bucket":        "AWS::S3::Bucket",
	"user":          "AWS::IAM::User",
	"role":          "AWS::IAM::Role",
	"policy":        "AWS::IAM::ManagedPolicy",
	"cluster":       "AWS::EKS::Cluster",
	"nodegroup":     "AWS::EKS::Nodegroup",
	"function":      "AWS::Lambda::Function",
	"loggroup":      "AWS::Logs::LogGroup",
}

// ResolveCloudFormationType expands an alias. Fully qualified type names
// pass through.
func ResolveCloudFormationType(s string) (string, bool) {
	if strings.Count(s, "::") == 2 {
		return s, true
	}
	t, ok := CloudFormationType[strings.ToLower(s)]
	return t, ok
}
