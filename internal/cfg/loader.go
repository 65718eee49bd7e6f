package cfg

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSecretsDir is where a sidecar (Vault Agent, k8s secret mount) drops
// .env files. SECRETS_DIR overrides it.
const DefaultSecretsDir = "/vault/secrets"

type Loader struct {
	errs []error
}

func NewLoader() *Loader {
	loadDotEnvFiles()
	return &Loader{errs: make([]error, 0)}
}

func (l *Loader) HasErrors() bool {
	return len(l.errs) > 0
}

func (l *Loader) Error() error {
	if len(l.errs) > 0 {
		return errors.Join(l.errs...)
	}
	return nil
}

func (l *Loader) addErr(msg string) {
	l.errs = append(l.errs, errors.New(msg))
}

// loadDotEnvFiles fills unset variables from ./.env and from every *.env file
// in the secrets directory. Variables already in the environment win.
func loadDotEnvFiles() {
	files := []string{}
	if _, err := os.Stat(".env"); err == nil {
		files = append(files, ".env")
	}

	dir := os.Getenv("SECRETS_DIR")
	if dir == "" {
		dir = DefaultSecretsDir
	}
	if entries, err := os.ReadDir(dir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".env") {
				continue
			}
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}

	if len(files) > 0 {
		// godotenv.Load never overrides variables that are already set.
		_ = godotenv.Load(files...)
	}
}

func (l *Loader) requireEnv(key string) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		l.addErr("missing env: " + key)
	}
	return value
}

// requireAnyEnv returns the first non-empty variable among keys.
func (l *Loader) requireAnyEnv(keys ...string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	l.addErr("missing env: " + strings.Join(keys, " or "))
	return ""
}

func (l *Loader) getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (l *Loader) getEnvIntOrDefault(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		l.addErr("invalid int for " + key + ": " + value)
		return defaultValue
	}
	return intValue
}

func (l *Loader) getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		l.addErr("invalid duration for " + key + ": " + value)
		return defaultValue
	}
	return duration
}

func (l *Loader) getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultValue
	}
	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.addErr("invalid float for " + key + ": " + value)
		return defaultValue
	}
	return floatValue
}
