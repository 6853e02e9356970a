// Copyright 2024 Raamsri Kumar <raam@tinkershack.in>
// Copyright 2025 The StrataSTOR Authors and Contributors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var (
	configDir string // Directory for configuration files
	keysDir   string // Directory for keys
	sshDir    string // Directory for SSH configurations
	cpDir     string // Directory for ssh ControlPath sockets
)

func init() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Sprintf("failed to get home directory: %v", err))
	}

	if os.Geteuid() == 0 {
		configDir = "/etc/rodent"
	} else {
		// Otherwise, use user config directory
		configDir = filepath.Join(homeDir, ".rodent")
	}
	keysDir = filepath.Join(configDir, "keys")
	sshDir = filepath.Join(keysDir, "ssh")
	cpDir = filepath.Join(homeDir, ".ansible", "cp")

	// Ensure the directories exist
	if err := EnsureDirectories(); err != nil {
		panic(fmt.Sprintf("failed to ensure configuration directories: %v", err))
	}
}

// GetConfigDir returns the appropriate configuration directory
// If running as root, it returns the system config directory
// Otherwise, it returns the user config directory
func GetConfigDir() string {
	return configDir
}

// GetKeysDir returns the directory for keys
func GetKeysDir() string {
	return keysDir
}

// GetSSHDir returns the directory for SSH configurations
func GetSSHDir() string {
	return sshDir
}

// GetControlPathDir returns the default directory for ssh ControlPath
// sockets, mirroring OpenSSH's conventional $HOME/.ansible/cp location.
func GetControlPathDir() string {
	return cpDir
}

// GetKnownHostsFilePath returns the rodent-managed known_hosts file,
// honouring a config override and expanding a leading "~".
func GetKnownHostsFilePath() string {
	cfg := GetConfig()
	path := cfg.Keys.SSH.KnownHostsFile
	if path == "" {
		return filepath.Join(GetSSHDir(), "known_hosts")
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}

// EnsureDirectories creates necessary directories if they do not exist
func EnsureDirectories() error {
	dirs := []string{
		configDir,
		keysDir,
		sshDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
