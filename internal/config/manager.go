package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Load reads a local .env file if present (development convenience,
// matching the teacher's cmd/*/main.go bootstrap), then loads and returns
// the process config via Get. Missing .env is not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("config: error reading .env file", "error", err)
	}
	return Get()
}
