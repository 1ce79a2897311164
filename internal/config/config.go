// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "GITLICENSE_"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken     string
	GitHubRepo      string // owner/repo
	GitHubPath      string
	GitHubBranch    string
	AdminSecret     string
	ListenAddr      string
	MaxAttempts     int
	RemoteTimeout   time.Duration
	HashIdentifiers bool
}

// Load reads an optional .env file, then configuration from environment
// variables, and returns a validated Config. Variables already present in the
// environment take precedence over the file. GITLICENSE_ENV_FILE overrides the
// file location.
//
// Required: GITLICENSE_GITHUB_TOKEN, GITLICENSE_GITHUB_REPO, GITLICENSE_ADMIN_SECRET.
// Optional variables with defaults: GITLICENSE_GITHUB_PATH (data/licenses.json),
// GITLICENSE_GITHUB_BRANCH (main), GITLICENSE_LISTEN_ADDR (127.0.0.1:8080),
// GITLICENSE_MAX_ATTEMPTS (5), GITLICENSE_REMOTE_TIMEOUT (10s),
// GITLICENSE_HASH_IDENTIFIERS (false).
func Load() (*Config, error) {
	envFile := ".env"
	if v, ok := os.LookupEnv(envPrefix + "ENV_FILE"); ok && v != "" {
		envFile = v
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	cfg := &Config{
		GitHubToken:     os.Getenv(envPrefix + "GITHUB_TOKEN"),
		GitHubRepo:      strings.TrimSpace(os.Getenv(envPrefix + "GITHUB_REPO")),
		GitHubPath:      "data/licenses.json",
		GitHubBranch:    "main",
		AdminSecret:     os.Getenv(envPrefix + "ADMIN_SECRET"),
		ListenAddr:      "127.0.0.1:8080",
		MaxAttempts:     5,
		RemoteTimeout:   10 * time.Second,
		HashIdentifiers: false,
	}

	if cfg.GitHubToken == "" {
		return nil, errors.New(envPrefix + "GITHUB_TOKEN is required")
	}
	if !isValidRepoName(cfg.GitHubRepo) {
		return nil, fmt.Errorf("%sGITHUB_REPO must be owner/repo, got %q", envPrefix, cfg.GitHubRepo)
	}
	if cfg.AdminSecret == "" {
		return nil, errors.New(envPrefix + "ADMIN_SECRET is required")
	}

	if v, ok := lookup("GITHUB_PATH"); ok {
		cfg.GitHubPath = strings.Trim(v, "/")
	}
	if v, ok := lookup("GITHUB_BRANCH"); ok {
		cfg.GitHubBranch = v
	}
	if v, ok := lookup("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}

	if v, ok := lookup("MAX_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("%sMAX_ATTEMPTS must be a positive integer, got %q", envPrefix, v)
		}
		cfg.MaxAttempts = n
	}

	if v, ok := lookup("REMOTE_TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%sREMOTE_TIMEOUT has invalid duration %q: %w", envPrefix, v, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%sREMOTE_TIMEOUT must be positive, got %s", envPrefix, d)
		}
		cfg.RemoteTimeout = d
	}

	if v, ok := lookup("HASH_IDENTIFIERS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%sHASH_IDENTIFIERS has invalid boolean %q: %w", envPrefix, v, err)
		}
		cfg.HashIdentifiers = b
	}

	if cfg.GitHubPath == "" {
		return nil, errors.New(envPrefix + "GITHUB_PATH must not be empty")
	}

	return cfg, nil
}

// lookup returns a non-empty, trimmed GITLICENSE_ variable.
func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// isValidRepoName validates that name is in owner/repo format where each part
// contains only alphanumeric characters, hyphens, dots, or underscores.
func isValidRepoName(name string) bool {
	parts := strings.SplitN(name, "/", 3)
	if len(parts) != 2 {
		return false
	}

	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, ch := range part {
			if !isValidRepoChar(ch) {
				return false
			}
		}
	}

	return true
}

// isValidRepoChar returns true if the rune is allowed in a repository owner or name.
func isValidRepoChar(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9') ||
		ch == '-' || ch == '.' || ch == '_'
}
