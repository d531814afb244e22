// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package aws

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/ini.v1"
)

// Profile describes a named AWS profile.
type Profile struct {
	Name          string
	Region        string
	RoleARN       string
	SourceProfile string
	HasKeys       bool
}

// Profiles discovers profiles from the shared credentials and config files.
type Profiles struct {
	credentialsPath string
	configPath      string
}

// NewProfiles returns a discovery over the default shared files, honoring
// AWS_SHARED_CREDENTIALS_FILE and AWS_CONFIG_FILE.
func NewProfiles() *Profiles {
	p := Profiles{
		credentialsPath: filepath.Join(expandHomeDir("~"), ".aws", "credentials"),
		configPath:      filepath.Join(expandHomeDir("~"), ".aws", "config"),
	}
	if v := os.Getenv("AWS_SHARED_CREDENTIALS_FILE"); v != "" {
		p.credentialsPath = v
	}
	if v := os.Getenv("AWS_CONFIG_FILE"); v != "" {
		p.configPath = v
	}

	return &p
}

// NewProfilesAt returns a discovery over explicit files.
func NewProfilesAt(credentialsPath, configPath string) *Profiles {
	return &Profiles{credentialsPath: credentialsPath, configPath: configPath}
}

// Names returns the sorted names of all known profiles. Missing files yield
// no profiles rather than an error.
func (p *Profiles) Names() ([]string, error) {
	seen := make(map[string]struct{})

	creds, err := loadOptional(p.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials file: %w", err)
	}
	if creds != nil {
		for _, s := range creds.Sections() {
			if s.Name() != ini.DefaultSection {
				seen[s.Name()] = struct{}{}
			}
		}
	}

	cfg, err := loadOptional(p.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if cfg != nil {
		for _, s := range cfg.Sections() {
			switch name := s.Name(); {
			case name == "default":
				seen["default"] = struct{}{}
			case strings.HasPrefix(name, "profile "):
				seen[strings.TrimPrefix(name, "profile ")] = struct{}{}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	slices.Sort(names)

	return names, nil
}

// Default returns the profile named by AWS_PROFILE, or "default".
func (p *Profiles) Default() string {
	if v := os.Getenv("AWS_PROFILE"); v != "" {
		return v
	}
	return "default"
}

// Lookup returns the named profile. Credentials file entries take precedence
// over config file entries.
func (p *Profiles) Lookup(name string) (*Profile, error) {
	var (
		prof  = Profile{Name: name}
		found bool
	)

	creds, err := loadOptional(p.credentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials file: %w", err)
	}
	if creds != nil {
		if s, err := creds.GetSection(name); err == nil {
			found = true
			readSection(s, &prof)
		}
	}

	cfg, err := loadOptional(p.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	if cfg != nil {
		section := "profile " + name
		if name == "default" {
			section = "default"
		}
		if s, err := cfg.GetSection(section); err == nil {
			found = true
			readSection(s, &prof)
		}
	}

	if !found {
		return nil, fmt.Errorf("profile %q not found in credentials or config files", name)
	}

	return &prof, nil
}

func readSection(s *ini.Section, p *Profile) {
	if s.HasKey("aws_access_key_id") && s.HasKey("aws_secret_access_key") {
		p.HasKeys = true
	}
	if p.Region == "" && s.HasKey("region") {
		p.Region = s.Key("region").String()
	}
	if p.RoleARN == "" && s.HasKey("role_arn") {
		p.RoleARN = s.Key("role_arn").String()
	}
	if p.SourceProfile == "" && s.HasKey("source_profile") {
		p.SourceProfile = s.Key("source_profile").String()
	}
}

func loadOptional(path string) (*ini.File, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	return ini.Load(path)
}

// expandHomeDir expands ~ to the user's home directory.
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}
