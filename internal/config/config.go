// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/trctl/internal/domain"
)

var envPrefix = "TRCTL__"

const databaseFileName = "fetched.sqlite3"

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	dataDir string
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	c.defaults()

	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	c.loadFromEnv()

	if err := c.unmarshal(); err != nil {
		return nil, err
	}

	c.resolveDataDir()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("rpcUrl", "http://127.0.0.1:9091/transmission/rpc")
	c.viper.SetDefault("rpcUser", "")
	c.viper.SetDefault("rpcPass", "")
	c.viper.SetDefault("rpcTimeout", 30)
	c.viper.SetDefault("forceNotRemote", false)
	c.viper.SetDefault("baseDir", "/var/cache/torrents/")
	c.viper.SetDefault("dlDirs", []string{"/var/cache/torrents/dl"})
	c.viper.SetDefault("destinationDirs", []string{"/var/cache/torrents/completed"})
	c.viper.SetDefault("defaultDestination", "/var/cache/torrents/completed")
	c.viper.SetDefault("verify", false)
	c.viper.SetDefault("askExisting", true)
	c.viper.SetDefault("copyDir", "")
	c.viper.SetDefault("watchDir", "")
	c.viper.SetDefault("moveCommand", "/usr/lib/trctl/move.sh")
	c.viper.SetDefault("sqliteDb", true)
	c.viper.SetDefault("dataDir", "") // Empty means next to the config file
	c.viper.SetDefault("quotaPerDlDir", "100GiB")
	c.viper.SetDefault("freeSpacePerDlDir", "100GiB")
	c.viper.SetDefault("dstFreeSpaceToLeave", "40GiB")
	c.viper.SetDefault("magnetSizeEstimate", "5GiB")
	c.viper.SetDefault("metricsTextfile", "")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("color", "auto")
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		if err := c.viper.ReadInConfig(); err != nil {
			// SetConfigFile reports a missing file as a plain os error
			if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
				if err := c.writeDefaultConfig(configPath); err != nil {
					return err
				}
				if err := c.viper.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read newly created config: %w", err)
				}
				return nil
			}
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
			if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
				return err
			}
			c.viper.SetConfigFile(defaultConfigPath)
			if err := c.viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read newly created config: %w", err)
			}
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

func (c *AppConfig) loadFromEnv() {
	// Bind explicitly, AutomaticEnv would pick up unrelated variables
	c.viper.BindEnv("rpcUrl", envPrefix+"RPC_URL")
	c.viper.BindEnv("rpcUser", envPrefix+"RPC_USER")
	c.bindOrReadFromFile("rpcPass", envPrefix+"RPC_PASS")
	c.viper.BindEnv("rpcTimeout", envPrefix+"RPC_TIMEOUT")
	c.viper.BindEnv("forceNotRemote", envPrefix+"FORCE_NOT_REMOTE")
	c.viper.BindEnv("baseDir", envPrefix+"BASE_DIR")
	c.viper.BindEnv("copyDir", envPrefix+"COPY_DIR")
	c.viper.BindEnv("watchDir", envPrefix+"WATCH_DIR")
	c.viper.BindEnv("moveCommand", envPrefix+"MOVE_COMMAND")
	c.viper.BindEnv("sqliteDb", envPrefix+"SQLITE_DB")
	c.viper.BindEnv("dataDir", envPrefix+"DATA_DIR")
	c.viper.BindEnv("quotaPerDlDir", envPrefix+"QUOTA_PER_DL_DIR")
	c.viper.BindEnv("freeSpacePerDlDir", envPrefix+"FREE_SPACE_PER_DL_DIR")
	c.viper.BindEnv("dstFreeSpaceToLeave", envPrefix+"DST_FREE_SPACE_TO_LEAVE")
	c.viper.BindEnv("magnetSizeEstimate", envPrefix+"MAGNET_SIZE_ESTIMATE")
	c.viper.BindEnv("metricsTextfile", envPrefix+"METRICS_TEXTFILE")
	c.viper.BindEnv("logLevel", envPrefix+"LOG_LEVEL")
	c.viper.BindEnv("logPath", envPrefix+"LOG_PATH")
	c.viper.BindEnv("logMaxSize", envPrefix+"LOG_MAX_SIZE")
	c.viper.BindEnv("logMaxBackups", envPrefix+"LOG_MAX_BACKUPS")
	c.viper.BindEnv("color", envPrefix+"COLOR")
}

func (c *AppConfig) unmarshal() error {
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	limits, err := parseLimits(c.Config)
	if err != nil {
		return err
	}
	c.Config.Limits = limits

	return nil
}

func parseLimits(cfg *domain.Config) (domain.Limits, error) {
	var limits domain.Limits

	fields := []struct {
		key   string
		value string
		dst   *uint64
	}{
		{"quotaPerDlDir", cfg.QuotaPerDlDir, &limits.QuotaPerDlDir},
		{"freeSpacePerDlDir", cfg.FreeSpacePerDlDir, &limits.FreeSpacePerDlDir},
		{"dstFreeSpaceToLeave", cfg.DstFreeSpaceToLeave, &limits.DstFreeSpaceToLeave},
		{"magnetSizeEstimate", cfg.MagnetSizeEstimate, &limits.MagnetSizeEstimate},
	}

	for _, f := range fields {
		n, err := humanize.ParseBytes(f.value)
		if err != nil {
			return limits, fmt.Errorf("invalid %s %q: %w", f.key, f.value, err)
		}
		*f.dst = n
	}

	return limits, nil
}

// WatchConfig reloads the configuration whenever the file changes.
// Only long running commands need this.
func (c *AppConfig) WatchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		if err := c.unmarshal(); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}

		c.ApplyLogConfig()
		c.notifyListeners()
	})
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := *c.Config
	for _, listener := range listeners {
		listener(&copied)
	}
}

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	log.Debug().Msgf("Created config directory: %s", dir)

	configTemplate := `# config.toml - Auto-generated on first run

# Transmission RPC endpoint
# Default: "{{ .rpcUrl }}"
rpcUrl = "{{ .rpcUrl }}"

# RPC credentials
# Optional
#rpcUser = ""
#rpcPass = ""

# Treat the daemon as local even when rpcUrl points elsewhere
# Default: false
#forceNotRemote = false

# Root of the torrent tree. Download directories given to "add --dldir" are relative to it.
baseDir = "{{ .baseDir }}"

# Staging directories for incomplete downloads
dlDirs = [{{ range $i, $d := .dlDirs }}{{ if $i }}, {{ end }}"{{ $d }}"{{ end }}]

# Destinations for "mv"
#destinationDirs = ["/var/cache/torrents/completed"]
#defaultDestination = "/var/cache/torrents/completed"

# Verify data after "mv"
#verify = false

# Ask before re-adding a torrent that was fetched before
#askExisting = true

# Directory of archived <hash>.torrent files consulted before the database
#copyDir = ""

# Directory watched by "trctl watch"
#watchDir = ""

# Command executed by "trctl mv", split with shell quoting rules
#moveCommand = "{{ .moveCommand }}"

# Remember fetched hashes in {{ .databaseFile }}
#sqliteDb = true

# Data directory (default: next to config file)
#dataDir = ""

# Space accounting
# New torrents start paused when the space left after them drops below freeSpacePerDlDir
#quotaPerDlDir = "{{ .quotaPerDlDir }}"
#freeSpacePerDlDir = "{{ .freeSpacePerDlDir }}"
#dstFreeSpaceToLeave = "{{ .dstFreeSpaceToLeave }}"

# Size assumed for magnet links until their metadata arrives
#magnetSizeEstimate = "{{ .magnetSizeEstimate }}"

# Write prometheus metrics to this file after each command (node_exporter textfile collector)
#metricsTextfile = ""

# Log file path
# If not defined, logs to stderr
#logPath = "log/trctl.log"
#logMaxSize = {{ .logMaxSize }}
#logMaxBackups = {{ .logMaxBackups }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Colored log output: "auto", "always" or "never"
#color = "auto"
`

	data := map[string]any{
		"rpcUrl":              c.viper.GetString("rpcUrl"),
		"baseDir":             c.viper.GetString("baseDir"),
		"dlDirs":              c.viper.GetStringSlice("dlDirs"),
		"moveCommand":         c.viper.GetString("moveCommand"),
		"databaseFile":        databaseFileName,
		"quotaPerDlDir":       c.viper.GetString("quotaPerDlDir"),
		"freeSpacePerDlDir":   c.viper.GetString("freeSpacePerDlDir"),
		"dstFreeSpaceToLeave": c.viper.GetString("dstFreeSpaceToLeave"),
		"magnetSizeEstimate":  c.viper.GetString("magnetSizeEstimate"),
		"logLevel":            c.viper.GetString("logLevel"),
		"logMaxSize":          c.viper.GetInt("logMaxSize"),
		"logMaxBackups":       c.viper.GetInt("logMaxBackups"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "trctl")
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "trctl")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "trctl")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "trctl")
	}
}

// IsRemote reports whether the daemon runs on another host.
// Local file operations (rmdir of hash dirs, mv) are refused for remote daemons.
func (c *AppConfig) IsRemote() bool {
	return isRemote(c.Config)
}

func isRemote(cfg *domain.Config) bool {
	if cfg.ForceNotRemote {
		return false
	}

	u, err := url.Parse(cfg.RPCURL)
	if err != nil {
		return true
	}

	host := u.Hostname()
	switch {
	case host == "localhost", host == "::1", strings.HasPrefix(host, "127."):
		return false
	default:
		return true
	}
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := baseLogWriter(c.version, c.Config.Color)

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

// SetVerbosity raises the log level for -v flags; it never lowers a configured level.
func SetVerbosity(count int) {
	var lvl zerolog.Level
	switch {
	case count <= 0:
		return
	case count == 1:
		lvl = zerolog.DebugLevel
	default:
		lvl = zerolog.TraceLevel
	}

	if lvl < zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = log.Logger.Level(lvl)
	}
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}

	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version, color string) io.Writer {
	isTTY := term.IsTerminal(int(os.Stderr.Fd()))
	if !isDevBuild(version) && !isTTY {
		return os.Stderr
	}

	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	switch strings.ToLower(strings.TrimSpace(color)) {
	case "never":
		writer.NoColor = true
	case "always":
		writer.NoColor = false
	default:
		writer.NoColor = !isTTY
	}
	writer.PartsOrder = []string{zerolog.LevelFieldName, zerolog.MessageFieldName}
	writer.FormatMessage = func(i any) string {
		if i == nil {
			return ""
		}
		return strings.TrimSpace(fmt.Sprint(i))
	}
	return writer
}

// DefaultLogWriter returns the base log writer for the provided version.
func DefaultLogWriter(version string) io.Writer {
	return baseLogWriter(version, "auto")
}

// InitDefaultLogger configures zerolog with the default writer for this version.
// This is used by CLI entry points before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(DefaultLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath determines the actual config file path from the provided directory or file path
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

// ResolveConfigPath maps a --config-dir value to the config file it designates.
func ResolveConfigPath(configDirOrPath string) string {
	if configDirOrPath == "" {
		return filepath.Join(GetDefaultConfigDir(), "config.toml")
	}
	return (&AppConfig{}).resolveConfigPath(configDirOrPath)
}

func (c *AppConfig) resolveDataDir() {
	switch {
	case c.Config.DataDir != "":
		c.dataDir = c.Config.DataDir
	case c.viper.ConfigFileUsed() != "":
		c.dataDir = filepath.Dir(c.viper.ConfigFileUsed())
	default:
		c.dataDir = "."
	}
}

// GetDatabasePath returns the path to the dedup database file
func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.dataDir, databaseFileName)
}

// GetDataDir returns the resolved data directory path.
func (c *AppConfig) GetDataDir() string {
	return c.dataDir
}

// GetConfigPath returns the config file in use.
func (c *AppConfig) GetConfigPath() string {
	if used := c.viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(GetDefaultConfigDir(), "config.toml")
}

func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}

// Sets viper variable if environment variable with _FILE suffix is present
func (c *AppConfig) bindOrReadFromFile(viperVar string, envVar string) {
	if filePath := os.Getenv(envVar + "_FILE"); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", filePath).Msg("Could not read " + envVar + "_FILE")
		}
		c.viper.Set(viperVar, strings.TrimSpace(string(content)))
		return
	}
	c.viper.BindEnv(viperVar, envVar)
}
