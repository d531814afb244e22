// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package dao

import (
	"context"
	"sync"

	"github.com/a1s/gridsource/internal/aws"
	"github.com/a1s/gridsource/internal/logger"
	"go.uber.org/zap"
)

// Factory opens sources sharing one set of options and one AWS connection.
type Factory struct {
	opts Options
	conn aws.Connection
	mx   sync.Mutex
}

// NewFactory returns a factory using opts.
func NewFactory(opts Options) *Factory {
	return &Factory{opts: opts}
}

// Options returns the factory options.
func (f *Factory) Options() Options {
	return f.opts
}

// SetConnection overrides the AWS connection.
func (f *Factory) SetConnection(c aws.Connection) {
	f.mx.Lock()
	defer f.mx.Unlock()
	f.conn = c
}

// Connection returns the AWS connection, creating it on first use.
func (f *Factory) Connection() (aws.Connection, error) {
	f.mx.Lock()
	defer f.mx.Unlock()

	if f.conn != nil {
		return f.conn, nil
	}
	profiles := aws.NewProfiles()
	profile := f.opts.Profile
	if profile == "" {
		profile = profiles.Default()
	}
	c, err := aws.NewClient(aws.ClientConfig{Profile: profile, Region: f.opts.Region}, profiles)
	if err != nil {
		return nil, err
	}
	logger.Debug("Created AWS client", zap.String("profile", c.Profile()), zap.String("region", c.Region()))
	f.conn = c

	return c, nil
}

// Open opens the source at the given location.
func (f *Factory) Open(ctx context.Context, location string) (Source, error) {
	s, err := open(ctx, f, location)
	if err != nil {
		return nil, err
	}
	logger.Info("Opened data source", zap.String("location", location))

	return s, nil
}
