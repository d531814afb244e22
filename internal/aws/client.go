// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package aws implements record fetchers over AWS APIs.
package aws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudcontrol"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"
)

type Error string

const (
	ErrNoCredentials      = Error("no AWS credentials found")
	ErrExpiredCredentials = Error("AWS credentials have expired")
	ErrNoConnection       = Error("no connection to AWS")
	ErrInvalidProfile     = Error("invalid AWS profile")
	ErrAccessDenied       = Error("access denied")
	ErrThrottled          = Error("request throttled")
)

func (e Error) Error() string {
	return string(e)
}

// Connection hands out service clients bound to a profile.
type Connection interface {
	Profile() string
	Region() string
	AccountID() string
	CheckConnectivity(ctx context.Context) error
	S3(region string) (*s3.Client, error)
	CloudControl(region string) (*cloudcontrol.Client, error)
	CloudFormation(region string) (*cloudformation.Client, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Profile string
	Region  string
	Timeout time.Duration
}

type serviceClients struct {
	s3             *s3.Client
	cloudcontrol   *cloudcontrol.Client
	cloudformation *cloudformation.Client
	sts            *sts.Client
}

// Client lazily creates service clients per region.
type Client struct {
	config    ClientConfig
	clients   map[string]*serviceClients
	accountID string
	mx        sync.RWMutex
}

var _ Connection = (*Client)(nil)

// NewClient returns a client for the given profile. An empty region resolves
// to the profile's configured region.
func NewClient(cfg ClientConfig, profiles *Profiles) (*Client, error) {
	if profiles != nil && cfg.Profile != "" {
		p, err := profiles.Lookup(cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidProfile, cfg.Profile)
		}
		cfg.Region = ResolveRegion(cfg.Region, p.Region)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	return &Client{
		config:  cfg,
		clients: make(map[string]*serviceClients),
	}, nil
}

// Profile returns the profile in use.
func (c *Client) Profile() string {
	return c.config.Profile
}

// Region returns the default region.
func (c *Client) Region() string {
	return c.config.Region
}

// AccountID returns the account id discovered by CheckConnectivity.
func (c *Client) AccountID() string {
	c.mx.RLock()
	defer c.mx.RUnlock()
	return c.accountID
}

// CheckConnectivity calls STS GetCallerIdentity and caches the account id.
func (c *Client) CheckConnectivity(ctx context.Context) error {
	cc, err := c.get(c.config.Region)
	if err != nil {
		return err
	}
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	out, err := cc.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNoConnection, WrapAWSError(err, "get caller identity"))
	}

	c.mx.Lock()
	c.accountID = aws.ToString(out.Account)
	c.mx.Unlock()

	return nil
}

// S3 returns an S3 client for region.
func (c *Client) S3(region string) (*s3.Client, error) {
	cc, err := c.get(region)
	if err != nil {
		return nil, err
	}
	return cc.s3, nil
}

// CloudControl returns a Cloud Control client for region.
func (c *Client) CloudControl(region string) (*cloudcontrol.Client, error) {
	cc, err := c.get(region)
	if err != nil {
		return nil, err
	}
	return cc.cloudcontrol, nil
}

// CloudFormation returns a CloudFormation client for region.
func (c *Client) CloudFormation(region string) (*cloudformation.Client, error) {
	cc, err := c.get(region)
	if err != nil {
		return nil, err
	}
	return cc.cloudformation, nil
}

func (c *Client) get(region string) (*serviceClients, error) {
	if region == "" {
		region = c.config.Region
	}

	c.mx.RLock()
	if cc, ok := c.clients[region]; ok {
		c.mx.RUnlock()
		return cc, nil
	}
	c.mx.RUnlock()

	c.mx.Lock()
	defer c.mx.Unlock()
	if cc, ok := c.clients[region]; ok {
		return cc, nil
	}
	cc, err := c.create(region)
	if err != nil {
		return nil, err
	}
	c.clients[region] = cc

	return cc, nil
}

func (c *Client) create(region string) (*serviceClients, error) {
	ctx := context.Background()
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	oo := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if c.config.Profile != "" {
		oo = append(oo, config.WithSharedConfigProfile(c.config.Profile))
	}
	cfg, err := config.LoadDefaultConfig(ctx, oo...)
	if err != nil {
		return nil, WrapAWSError(err, "load AWS config")
	}

	return &serviceClients{
		s3:             s3.NewFromConfig(cfg),
		cloudcontrol:   cloudcontrol.NewFromConfig(cfg),
		cloudformation: cloudformation.NewFromConfig(cfg),
		sts:            sts.NewFromConfig(cfg),
	}, nil
}

// WrapAWSError wraps AWS SDK errors with additional context.
func WrapAWSError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "AccessDeniedException":
			return fmt.Errorf("%w for %s: %w", ErrAccessDenied, operation, err)
		case "ExpiredToken", "ExpiredTokenException":
			return fmt.Errorf("%w: %s", ErrExpiredCredentials, operation)
		case "ThrottlingException", "Throttling", "SlowDown":
			return fmt.Errorf("%w during %s: %w", ErrThrottled, operation, err)
		case "InvalidClientTokenId":
			return fmt.Errorf("%w: %s", ErrNoCredentials, operation)
		default:
			return fmt.Errorf("%s failed: %s (%s)", operation, apiErr.ErrorMessage(), apiErr.ErrorCode())
		}
	}

	return fmt.Errorf("%s failed: %w", operation, err)
}
