package utils

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadEnv loads the .env file for the given mode. It tries ".env.<mode>"
// first and falls back to ".env". Missing files are reported to the caller
// so startup can continue on defaults.
func LoadEnv(mode string) error {
	candidates := []string{".env"}
	if mode != "" {
		candidates = []string{".env." + mode, ".env"}
	}
	for _, file := range candidates {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		return godotenv.Load(file)
	}
	return fmt.Errorf("no .env file found for mode %q", mode)
}

// GetStringOrDefault returns the environment value or def when unset/empty.
func GetStringOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntOrDefault parses the environment value as int, falling back to def.
func GetIntOrDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// GetBoolOrDefault parses the environment value as bool, falling back to def.
func GetBoolOrDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// GetStringSliceOrDefault splits a comma-separated environment value,
// trimming whitespace around each element.
func GetStringSliceOrDefault(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
