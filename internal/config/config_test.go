// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/trctl/internal/domain"
)

const gib = uint64(1) << 30

func TestDatabasePathResolution(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(t *testing.T, tmpDir string) (configPath string, envDataDir string, expectedDBPath string)
	}{
		{
			name: "default_next_to_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				content := "rpcUrl = \"http://localhost:9091/transmission/rpc\"\n"
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(tmpDir, databaseFileName)
			},
		},
		{
			name: "explicit_data_dir_in_config",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				dataDir := filepath.Join(tmpDir, "data")
				require.NoError(t, os.MkdirAll(dataDir, 0o755))
				content := fmt.Sprintf("dataDir = %q\n", dataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, "", filepath.Join(dataDir, databaseFileName)
			},
		},
		{
			name: "env_var_override",
			prepare: func(t *testing.T, tmpDir string) (string, string, string) {
				configPath := filepath.Join(tmpDir, "config.toml")
				configDataDir := filepath.Join(tmpDir, "config-data")
				envDataDir := filepath.Join(tmpDir, "env-data")
				require.NoError(t, os.MkdirAll(configDataDir, 0o755))
				require.NoError(t, os.MkdirAll(envDataDir, 0o755))
				content := fmt.Sprintf("dataDir = %q\n", configDataDir)
				require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
				return configPath, envDataDir, filepath.Join(envDataDir, databaseFileName)
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			configPath, envValue, expectedDBPath := tt.prepare(t, tmpDir)
			if envValue != "" {
				t.Setenv(envPrefix+"DATA_DIR", envValue)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			assert.Equal(t, filepath.Clean(expectedDBPath), filepath.Clean(cfg.GetDatabasePath()))
		})
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte("\n"), 0o644))

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9091/transmission/rpc", cfg.Config.RPCURL)
	assert.Equal(t, "/var/cache/torrents/", cfg.Config.BaseDir)
	assert.Equal(t, []string{"/var/cache/torrents/dl"}, cfg.Config.DlDirs)
	assert.True(t, cfg.Config.AskExisting)
	assert.True(t, cfg.Config.SqliteDB)
	assert.Equal(t, domain.Limits{
		QuotaPerDlDir:       100 * gib,
		FreeSpacePerDlDir:   100 * gib,
		DstFreeSpaceToLeave: 40 * gib,
		MagnetSizeEstimate:  5 * gib,
	}, cfg.Config.Limits)
	assert.False(t, cfg.IsRemote())
}

func TestNewWritesDefaultConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := New(configPath)
	require.NoError(t, err)

	content, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), `rpcUrl = "http://127.0.0.1:9091/transmission/rpc"`)
	assert.Contains(t, string(content), `dlDirs = ["/var/cache/torrents/dl"]`)
	assert.Equal(t, []string{"/var/cache/torrents/dl"}, cfg.Config.DlDirs)
}

func TestLimitsParsing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    uint64
		wantErr bool
	}{
		{name: "binary_units", content: `magnetSizeEstimate = "2GiB"`, want: 2 * gib},
		{name: "decimal_units", content: `magnetSizeEstimate = "1 GB"`, want: 1000 * 1000 * 1000},
		{name: "plain_bytes", content: `magnetSizeEstimate = "1024"`, want: 1024},
		{name: "garbage", content: `magnetSizeEstimate = "lots"`, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "config.toml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.content+"\n"), 0o644))

			cfg, err := New(configPath)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "magnetSizeEstimate")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Config.Limits.MagnetSizeEstimate)
		})
	}
}

func TestIsRemote(t *testing.T) {
	tests := []struct {
		name     string
		rpcURL   string
		forceNot bool
		want     bool
	}{
		{name: "loopback_v4", rpcURL: "http://127.0.0.1:9091/transmission/rpc", want: false},
		{name: "loopback_v4_other", rpcURL: "http://127.1.2.3:9091/transmission/rpc", want: false},
		{name: "localhost", rpcURL: "http://localhost:9091/transmission/rpc", want: false},
		{name: "loopback_v6", rpcURL: "http://[::1]:9091/transmission/rpc", want: false},
		{name: "lan_host", rpcURL: "http://192.168.1.10:9091/transmission/rpc", want: true},
		{name: "named_host", rpcURL: "https://seedbox.example.com/transmission/rpc", want: true},
		{name: "forced_local", rpcURL: "https://seedbox.example.com/transmission/rpc", forceNot: true, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			cfg := &domain.Config{RPCURL: tt.rpcURL, ForceNotRemote: tt.forceNot}
			assert.Equal(t, tt.want, isRemote(cfg))
		})
	}
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			fileIsDir:      false,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			inputPath := filepath.Join(tmpDir, filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					require.NoError(t, os.MkdirAll(inputPath, 0o755))
				} else {
					require.NoError(t, os.WriteFile(inputPath, []byte("test"), 0o644))
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestBindOrReadFromFile(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		fileValue     string
		expectedValue string
	}{
		{name: "only_file_env_var", fileValue: "pass-from-file\n", expectedValue: "pass-from-file"},
		{name: "only_plain_env_var", envValue: "pass-from-env", expectedValue: "pass-from-env"},
		{name: "file_wins", envValue: "pass-from-env", fileValue: "pass-from-file", expectedValue: "pass-from-file"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			envVar := envPrefix + "RPC_PASS"

			if tt.envValue != "" {
				t.Setenv(envVar, tt.envValue)
			}
			if tt.fileValue != "" {
				keyFile := filepath.Join(tmpDir, "rpc-pass.txt")
				require.NoError(t, os.WriteFile(keyFile, []byte(tt.fileValue), 0o600))
				t.Setenv(envVar+"_FILE", keyFile)
			}

			configPath := filepath.Join(tmpDir, "config.toml")
			require.NoError(t, os.WriteFile(configPath, []byte("rpcUser = \"admin\"\n"), 0o644))

			cfg, err := New(configPath)
			require.NoError(t, err)
			assert.Equal(t, "admin", cfg.Config.RPCUser)
			assert.Equal(t, tt.expectedValue, cfg.Config.RPCPass)
		})
	}
}
