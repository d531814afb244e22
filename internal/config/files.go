// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package config

import (
	"os"
	"path/filepath"
)

const AppName = "gridsource"

var (
	// AppConfigDir is ~/.config/gridsource
	AppConfigDir string

	// AppStateDir is ~/.local/state/gridsource
	AppStateDir string

	// AppConfigFile is ~/.config/gridsource/gridsource.yaml
	AppConfigFile string

	// AppAliasesFile is ~/.config/gridsource/aliases.yaml
	AppAliasesFile string

	// AppLogFile is ~/.local/state/gridsource/gridsource.log
	AppLogFile string
)

// InitLocs initializes all application directory paths.
// It respects XDG environment variables if set.
func InitLocs() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(home, ".config")
	}

	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}

	AppConfigDir = filepath.Join(configHome, AppName)
	AppStateDir = filepath.Join(stateHome, AppName)

	AppConfigFile = filepath.Join(AppConfigDir, AppName+".yaml")
	AppAliasesFile = filepath.Join(AppConfigDir, "aliases.yaml")
	AppLogFile = filepath.Join(AppStateDir, AppName+".log")

	for _, dir := range []string{AppConfigDir, AppStateDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}

	return nil
}

// InitLogLoc ensures the log directory exists.
func InitLogLoc(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0700)
}
