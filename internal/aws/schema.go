// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
)

// TypeDescriber is the subset of the CloudFormation API used to read a
// resource type schema.
type TypeDescriber interface {
	DescribeType(ctx context.Context, in *cloudformation.DescribeTypeInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeTypeOutput, error)
}

// ResourceSchema lists the properties of a resource type that cannot be
// updated in place.
type ResourceSchema struct {
	TypeName   string
	ReadOnly   []string
	CreateOnly []string
}

type schemaJSON struct {
	ReadOnlyProperties              []string `json:"readOnlyProperties"`
	CreateOnlyProperties            []string `json:"createOnlyProperties"`
	ConditionalCreateOnlyProperties []string `json:"conditionalCreateOnlyProperties"`
}

// DescribeSchema fetches the registry schema of typeName.
func DescribeSchema(ctx context.Context, api TypeDescriber, typeName string) (*ResourceSchema, error) {
	out, err := api.DescribeType(ctx, &cloudformation.DescribeTypeInput{
		Type:     types.RegistryTypeResource,
		TypeName: aws.String(typeName),
	})
	if err != nil {
		return nil, WrapAWSError(err, "describe type "+typeName)
	}
	if out.Schema == nil {
		return nil, fmt.Errorf("no schema available for type %s", typeName)
	}

	return ParseSchema(typeName, []byte(*out.Schema))
}

// ParseSchema extracts property classifications from a raw schema.
func ParseSchema(typeName string, raw []byte) (*ResourceSchema, error) {
	var s schemaJSON
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse schema for %s: %w", typeName, err)
	}

	return &ResourceSchema{
		TypeName:   typeName,
		ReadOnly:   propertyNames(s.ReadOnlyProperties),
		CreateOnly: propertyNames(append(s.CreateOnlyProperties, s.ConditionalCreateOnlyProperties...)),
	}, nil
}

// Editable checks whether a top level property may be updated.
func (s *ResourceSchema) Editable(prop string) bool {
	if s == nil {
		return true
	}
	for _, p := range s.ReadOnly {
		if p == prop {
			return false
		}
	}
	for _, p := range s.CreateOnly {
		if p == prop {
			return false
		}
	}

	return true
}

func propertyNames(paths []string) []string {
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		if n := propertyName(p); n != "" {
			names = append(names, n)
		}
	}

	return names
}

// propertyName maps "/properties/VpcConfig/SubnetIds" to "VpcConfig".
func propertyName(path string) string {
	parts := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(parts) >= 2 && parts[0] == "properties" {
		return parts[1]
	}

	return ""
}
