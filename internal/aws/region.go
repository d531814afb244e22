// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// DefaultRegion is used when neither the caller nor the profile names one.
const DefaultRegion = "us-east-1"

// ResolveRegion returns the requested region, falling back to the profile
// region then DefaultRegion.
func ResolveRegion(requested, profile string) string {
	switch {
	case requested != "":
		return requested
	case profile != "":
		return profile
	default:
		return DefaultRegion
	}
}

// BucketLocator is the subset of the S3 API used to find a bucket region.
type BucketLocator interface {
	GetBucketLocation(ctx context.Context, in *s3.GetBucketLocationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLocationOutput, error)
}

// BucketRegion returns the region hosting bucket.
func BucketRegion(ctx context.Context, api BucketLocator, bucket string) (string, error) {
	out, err := api.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: &bucket})
	if err != nil {
		return "", WrapAWSError(err, "get bucket location")
	}

	// An empty constraint means us-east-1.
	if out.LocationConstraint == "" {
		return DefaultRegion, nil
	}

	return string(out.LocationConstraint), nil
}
