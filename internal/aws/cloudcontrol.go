// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol/types"
	"github.com/google/uuid"
	"github.com/wI2L/jsondiff"
	"go.uber.org/zap"
)

// Cloud Control errors
var (
	ErrGetResourceFailed    = errors.New("failed to get resource")
	ErrUpdateResourceFailed = errors.New("failed to update resource")
	ErrNotEditable          = errors.New("property cannot be updated")
)

// CloudControlAPI is the subset of the Cloud Control API used by
// CloudControlFetcher.
type CloudControlAPI interface {
	ListResources(ctx context.Context, in *cloudcontrol.ListResourcesInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.ListResourcesOutput, error)
	GetResource(ctx context.Context, in *cloudcontrol.GetResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.GetResourceOutput, error)
	UpdateResource(ctx context.Context, in *cloudcontrol.UpdateResourceInput, optFns ...func(*cloudcontrol.Options)) (*cloudcontrol.UpdateResourceOutput, error)
}

// CloudControlFetcher lists the resources of a CloudFormation type. Each
// resource is a record holding its properties, keyed by its identifier.
type CloudControlFetcher struct {
	api      CloudControlAPI
	typeName string
	schema   *ResourceSchema
	pager    *tokenPager
}

// NewCloudControlFetcher returns a fetcher over typeName, e.g. AWS::EC2::VPC.
// A nil schema allows updates to every property.
func NewCloudControlFetcher(api CloudControlAPI, typeName string, schema *ResourceSchema, pageSize int) *CloudControlFetcher {
	f := CloudControlFetcher{
		api:      api,
		typeName: typeName,
		schema:   schema,
	}
	f.pager = newTokenPager(f.list, pageSize)

	return &f
}

// TypeName returns the listed resource type.
func (f *CloudControlFetcher) TypeName() string {
	return f.typeName
}

// Count implements remote.Fetcher.
func (f *CloudControlFetcher) Count(ctx context.Context) (int, error) {
	return f.pager.count(ctx)
}

// Fetch implements remote.Fetcher.
func (f *CloudControlFetcher) Fetch(ctx context.Context, offset, limit int) ([]datasource.Record, error) {
	return f.pager.fetch(ctx, offset, limit)
}

func (f *CloudControlFetcher) list(ctx context.Context, token *string, limit int32) ([]datasource.Record, *string, error) {
	out, err := f.api.ListResources(ctx, &cloudcontrol.ListResourcesInput{
		TypeName:   &f.typeName,
		NextToken:  token,
		MaxResults: aws.Int32(limit),
	})
	if err != nil {
		return nil, nil, WrapAWSError(err, "list "+f.typeName)
	}
	logger.Debug("Listed resources",
		zap.String("type", f.typeName),
		zap.Int("count", len(out.ResourceDescriptions)),
	)

	rr := make([]datasource.Record, 0, len(out.ResourceDescriptions))
	for _, d := range out.ResourceDescriptions {
		r, err := resourceRecord(d)
		if err != nil {
			return nil, nil, err
		}
		rr = append(rr, r)
	}

	return rr, out.NextToken, nil
}

func resourceRecord(d types.ResourceDescription) (datasource.Record, error) {
	r := make(datasource.Record)
	if d.Properties != nil {
		if err := json.Unmarshal([]byte(*d.Properties), &r); err != nil {
			return nil, fmt.Errorf("failed to parse properties of %s: %w", aws.ToString(d.Identifier), err)
		}
	}
	r[datasource.IDKey] = aws.ToString(d.Identifier)

	return r, nil
}

// Update implements remote.Updater. The change is sent as a JSON Patch
// computed against the current resource state.
func (f *CloudControlFetcher) Update(ctx context.Context, id datasource.ID, key string, value any) error {
	if !f.schema.Editable(key) {
		return fmt.Errorf("%w: %s.%s", ErrNotEditable, f.typeName, key)
	}

	ident := id.String()
	cur, err := f.state(ctx, ident)
	if err != nil {
		return err
	}
	next := make(map[string]any, len(cur)+1)
	for k, v := range cur {
		next[k] = v
	}
	if value == nil {
		delete(next, key)
	} else {
		next[key] = value
	}

	patch, err := jsondiff.Compare(cur, next)
	if err != nil {
		return fmt.Errorf("failed to compute patch: %w", err)
	}
	if len(patch) == 0 {
		return nil
	}
	doc, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to encode patch: %w", err)
	}

	out, err := f.api.UpdateResource(ctx, &cloudcontrol.UpdateResourceInput{
		TypeName:      &f.typeName,
		Identifier:    &ident,
		PatchDocument: aws.String(string(doc)),
		ClientToken:   aws.String(uuid.NewString()),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpdateResourceFailed, f.typeName, WrapAWSError(err, "update resource"))
	}
	if ev := out.ProgressEvent; ev != nil && ev.ErrorCode != "" {
		return fmt.Errorf("%w: %s: %s", ErrUpdateResourceFailed, ev.ErrorCode, aws.ToString(ev.StatusMessage))
	}
	logger.Info("Requested resource update",
		zap.String("type", f.typeName),
		zap.String("identifier", ident),
		zap.String("property", key),
	)

	return nil
}

func (f *CloudControlFetcher) state(ctx context.Context, ident string) (map[string]any, error) {
	out, err := f.api.GetResource(ctx, &cloudcontrol.GetResourceInput{
		TypeName:   &f.typeName,
		Identifier: &ident,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrGetResourceFailed, f.typeName, WrapAWSError(err, "get resource"))
	}
	if out.ResourceDescription == nil || out.ResourceDescription.Properties == nil {
		return nil, fmt.Errorf("%w: no properties returned for %s", ErrGetResourceFailed, ident)
	}

	var props map[string]any
	if err := json.Unmarshal([]byte(*out.ResourceDescription.Properties), &props); err != nil {
		return nil, fmt.Errorf("failed to parse resource properties: %w", err)
	}

	return props, nil
}
