package startup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"media-refiner/internal/logging"
)

// LoadEnvFile loads ENV_FILE (default .env) into the environment without
// overriding variables that are already set. A missing default file is not
// an error; a missing file named explicitly is.
func LoadEnvFile() (string, error) {
	name, explicit := os.LookupEnv("ENV_FILE")
	if !explicit || name == "" {
		name = ".env"
	}
	if err := godotenv.Load(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return "", nil
		}
		return name, fmt.Errorf("load %s: %w", name, err)
	}
	return name, nil
}

// envValue parses key with parse. Unset keys and values parse rejects
// yield def; rejected values are logged.
func envValue[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		logging.Warn("Ignoring %s=%q (%v), using default %v", key, raw, err, def)
		return def
	}
	return v
}

func envString(key, def string) string {
	return envValue(key, def, func(s string) (string, error) { return s, nil })
}

func envBool(key string, def bool) bool {
	return envValue(key, def, strconv.ParseBool)
}

func envInt(key string, def int) int {
	return envValue(key, def, strconv.Atoi)
}

func envDuration(key string, def time.Duration) time.Duration {
	return envValue(key, def, func(s string) (time.Duration, error) {
		d, err := time.ParseDuration(s)
		if err == nil && d < 0 {
			err = errors.New("negative duration")
		}
		return d, err
	})
}
