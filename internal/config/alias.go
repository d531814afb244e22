// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package config

import (
	"maps"
	"sync"

	"github.com/a1s/gridsource/internal/config/data"
)

// Aliases maps short names to source locations.
type Aliases struct {
	Alias map[string]string `yaml:"aliases"`
	mx    sync.RWMutex      `yaml:"-"`
}

// DefaultAliases are the built-in source aliases.
var DefaultAliases = map[string]string{
	"vpc":     "cloudcontrol://AWS::EC2::VPC",
	"subnet":  "cloudcontrol://AWS::EC2::Subnet",
	"sg":      "cloudcontrol://AWS::EC2::SecurityGroup",
	"ec2":     "cloudcontrol://AWS::EC2::Instance",
	"bucket":  "cloudcontrol://AWS::S3::Bucket",
	"role":    "cloudcontrol://AWS::IAM::Role",
	"cluster": "cloudcontrol://AWS::EKS::Cluster",
}

// NewAliases creates an Aliases with default aliases loaded.
func NewAliases() *Aliases {
	return &Aliases{Alias: maps.Clone(DefaultAliases)}
}

// Load loads aliases from the default aliases file.
func (a *Aliases) Load() error {
	return a.LoadFrom(AppAliasesFile)
}

// LoadFrom merges the aliases stored at path, file aliases taking precedence.
// A missing file keeps the current aliases.
func (a *Aliases) LoadFrom(path string) error {
	loaded := Aliases{Alias: make(map[string]string)}
	if err := data.LoadOptionalYAML(path, &loaded); err != nil {
		return err
	}

	a.mx.Lock()
	defer a.mx.Unlock()
	maps.Copy(a.Alias, loaded.Alias)

	return nil
}

// SaveTo saves aliases to a specific file path.
func (a *Aliases) SaveTo(path string) error {
	a.mx.RLock()
	defer a.mx.RUnlock()

	return data.SaveYAML(path, a)
}

// Resolve returns the location for an alias, or the original if not found.
func (a *Aliases) Resolve(alias string) string {
	a.mx.RLock()
	defer a.mx.RUnlock()

	if location, ok := a.Alias[alias]; ok {
		return location
	}
	return alias
}

// Set sets an alias.
func (a *Aliases) Set(alias, location string) {
	a.mx.Lock()
	defer a.mx.Unlock()

	a.Alias[alias] = location
}

// All returns a copy of all aliases.
func (a *Aliases) All() map[string]string {
	a.mx.RLock()
	defer a.mx.RUnlock()

	return maps.Clone(a.Alias)
}
