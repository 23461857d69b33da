// Package diag is the ambient diagnostics layer: configuration loading, a
// BLAKE2b device fingerprint, a small bbolt-backed history cache keyed by
// that fingerprint, and a host environment snapshot. None of it is on the
// mount/read/write hot path; it exists for operators and the demo/daemon
// front ends.
package diag

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds the handful of values an operator might want to override.
// Grounded on the teacher's two config-loading idioms: an .env walk-up to
// project root (internal/config/config.go) plus a JSON file search path
// (pkg/hashing/factory/config.go). LoadConfig implements only the first;
// the second survives as ConfigSearchPaths, whose files nothing reads.
type Config struct {
	// DriveWaitTimeout bounds how long Initialize waits for a USB MSC
	// device to enumerate.
	DriveWaitTimeout time.Duration
	// DefaultPartitionIndex names an MBR partition table entry, with -1
	// meaning "first FAT partition found". internal/mount.Initialize does
	// not read it: it always mounts the first FAT-typed entry.
	DefaultPartitionIndex int
	// HTTPListenAddr is the introspection daemon's listen address.
	HTTPListenAddr string
	// HistoryPath is where the bbolt device-history cache is stored.
	HistoryPath string
}

// DefaultConfig mirrors the factory's DefaultHashMethodConfig pattern: a
// fully-populated zero-argument baseline callers can override piecemeal.
func DefaultConfig() Config {
	return Config{
		DriveWaitTimeout:      10 * time.Second,
		DefaultPartitionIndex: -1,
		HTTPListenAddr:        ":8761",
		HistoryPath:           defaultHistoryPath(),
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./nx-fatdrive-history.db"
	}
	return filepath.Join(home, ".nx-fatdrive", "history.db")
}

var (
	loadedConfig Config
	configLoaded bool
)

// LoadConfig reads an .env file walked up from the working directory to
// the nearest go.mod (the teacher's findProjectRoot), applies environment
// variable overrides, and caches the result for the process lifetime — the
// same "load once, cache" shape as the teacher's LoadDeviceConfig.
func LoadConfig() Config {
	if configLoaded {
		return loadedConfig
	}
	cfg := DefaultConfig()

	root := findProjectRoot()
	if data, err := os.ReadFile(filepath.Join(root, ".env")); err == nil {
		applyEnvFile(string(data), &cfg)
	}
	applyEnvVars(&cfg)

	loadedConfig = cfg
	configLoaded = true
	return cfg
}

func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

func applyEnvFile(content string, cfg *Config) {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		setField(cfg, strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]))
	}
}

func applyEnvVars(cfg *Config) {
	for _, key := range []string{
		"NX_FATDRIVE_DRIVE_WAIT_TIMEOUT_MS",
		"NX_FATDRIVE_DEFAULT_PARTITION_INDEX",
		"NX_FATDRIVE_HTTP_LISTEN_ADDR",
		"NX_FATDRIVE_HISTORY_PATH",
	} {
		if v := os.Getenv(key); v != "" {
			setField(cfg, key, v)
		}
	}
}

func setField(cfg *Config, key, value string) {
	switch key {
	case "NX_FATDRIVE_DRIVE_WAIT_TIMEOUT_MS":
		if ms, err := strconv.Atoi(value); err == nil {
			cfg.DriveWaitTimeout = time.Duration(ms) * time.Millisecond
		}
	case "NX_FATDRIVE_DEFAULT_PARTITION_INDEX":
		if idx, err := strconv.Atoi(value); err == nil {
			cfg.DefaultPartitionIndex = idx
		}
	case "NX_FATDRIVE_HTTP_LISTEN_ADDR":
		cfg.HTTPListenAddr = value
	case "NX_FATDRIVE_HISTORY_PATH":
		cfg.HistoryPath = value
	}
}

// ConfigSearchPaths mirrors the factory package's ConfigPaths: a fixed
// precedence list of JSON config file locations, for callers that prefer a
// file over .env/environment variables. Not consulted by LoadConfig itself
// (which stays .env-first per the teacher's own primary config path), and
// no command in this module reads these files: cmd/nx-fatdrived uses
// LoadConfig alone.
func ConfigSearchPaths() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".nx-fatdrive", "config.json"),
		"/etc/nx-fatdrive/config.json",
		"./nx-fatdrive.json",
	}
}
